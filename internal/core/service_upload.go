package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/dataset"
	"github.com/JonMunkholm/sheetsync/internal/extract"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/workbook"
	"github.com/google/uuid"
)

// UploadResult describes a received workbook and what was stored from it.
type UploadResult struct {
	FileInfo
	Message string     `json:"message"`
	Sync    SyncReport `json:"sync"`
}

// Collection is one sheet written to a bucket.
type Collection struct {
	Sheet   string `json:"sheet_name"`
	Bucket  string `json:"collection_name"`
	Records int    `json:"records_inserted"`
}

// SheetError is one sheet that could not be extracted or stored.
type SheetError struct {
	Sheet string `json:"sheet_name"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SyncReport lists per-sheet outcomes of a sync.
type SyncReport struct {
	Collections []Collection `json:"collections"`
	Errors      []SheetError `json:"errors"`
}

func (r *SyncReport) failed(sheet string, err error) {
	r.Errors = append(r.Errors, SheetError{Sheet: sheet, Error: err.Error(), Code: MapError(err).Code})
}

// Upload stores the workbook read from r under a new id, lists its sheets,
// classifies it by name and syncs the relevant sheets to the store. Sync
// failures are reported in the result, not returned as errors.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*UploadResult, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, ErrNoFile
	}
	if !workbook.Supported(name) {
		return nil, fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedFile, name, strings.Join(workbook.Extensions(), ", "))
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	id := uuid.NewString()
	log := logging.WithFields(ctx, "file_id", id, "file", name)
	path := filepath.Join(s.uploadDir, id+strings.ToLower(filepath.Ext(name)))

	size, err := s.save(path, r)
	if err != nil {
		return nil, err
	}

	sheets, err := listSheets(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	ip, ua := clientFromContext(ctx)
	info := &FileInfo{
		ID:           id,
		OriginalName: name,
		Kind:         dataset.Classify(name),
		Sheets:       sheets,
		Size:         size,
		UploadedAt:   s.now(),
		ClientIP:     ip,
		UserAgent:    ua,
		path:         path,
	}
	s.register(info)
	log.Info("workbook received", "kind", info.Kind, "sheets", len(sheets), "bytes", size)

	report := s.Sync(ctx, info)

	msg := fmt.Sprintf("File uploaded. %d sheets available (SQL sheets excluded).", len(sheets))
	if info.Kind != dataset.KindUnknown {
		msg += fmt.Sprintf(" Stored %d of them as %s data.", len(report.Collections), info.Kind)
	}
	if len(report.Errors) > 0 {
		msg += fmt.Sprintf(" %d sheets failed.", len(report.Errors))
	}

	return &UploadResult{FileInfo: *info, Message: msg, Sync: report}, nil
}

// save copies r to path, enforcing the size limit.
func (s *Service) save(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if s.maxFileSize > 0 {
		src = io.LimitReader(r, s.maxFileSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("save upload: %w", err)
	case n == 0:
		err = ErrEmptyFile
	case s.maxFileSize > 0 && n > s.maxFileSize:
		err = fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxFileSize)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

// listSheets opens the workbook once to read its sheet names, SQL sheets
// excluded.
func listSheets(path string) ([]string, error) {
	wb, err := workbook.Open(path)
	if err != nil {
		if errors.Is(err, workbook.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer wb.Close()
	return extract.SheetNames(wb, true), nil
}

// withWorkbook opens the file at path for the duration of fn.
func withWorkbook(path string, fn func(workbook.Workbook) error) error {
	wb, err := workbook.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer wb.Close()
	return fn(wb)
}

func readSheet(path, sheet string) ([]extract.Record, error) {
	var records []extract.Record
	err := withWorkbook(path, func(wb workbook.Workbook) error {
		var err error
		records, err = extract.ReadSheet(wb, sheet)
		return err
	})
	return records, err
}

func readGoalSheet(path, sheet string, opts extract.GoalOptions) (*extract.GoalSheet, error) {
	var gs *extract.GoalSheet
	err := withWorkbook(path, func(wb workbook.Workbook) error {
		var err error
		gs, err = extract.ReadGoalSheet(wb, sheet, opts)
		return err
	})
	return gs, err
}

// Sync extracts and stores the sheets relevant to the file's kind. Each
// sheet is handled on its own: a failure is recorded and the next sheet
// proceeds. Sheets that yield no records are not written.
func (s *Service) Sync(ctx context.Context, info *FileInfo) SyncReport {
	report := SyncReport{Collections: []Collection{}, Errors: []SheetError{}}
	if info.Kind == dataset.KindUnknown {
		return report
	}

	if s.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.syncTimeout)
		defer cancel()
	}
	log := logging.WithFields(ctx, "file_id", info.ID, "kind", info.Kind)
	started := time.Now()

	for _, sheet := range info.Sheets {
		if !info.Kind.Persists(sheet) {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.failed(sheet, err)
			continue
		}

		var records []extract.Record
		var err error
		switch info.Kind {
		case dataset.KindExecution:
			records, err = readSheet(info.path, sheet)
		case dataset.KindGoals:
			var gs *extract.GoalSheet
			gs, err = readGoalSheet(info.path, sheet, s.goals)
			if gs != nil {
				records = gs.Records
			}
		}
		if err != nil {
			log.Warn("sheet extraction failed", "sheet", sheet, "error", err)
			report.failed(sheet, err)
			continue
		}
		if len(records) == 0 {
			log.Debug("sheet has no records", "sheet", sheet)
			continue
		}

		bucket := info.Kind.Bucket(sheet)
		n, err := s.store.Replace(ctx, bucket, records)
		if err != nil {
			log.Error("sheet sync failed", "sheet", sheet, "bucket", bucket, "error", err)
			report.failed(sheet, err)
			continue
		}
		log.Info("sheet synced", "sheet", sheet, "bucket", bucket, "records", n)
		report.Collections = append(report.Collections, Collection{Sheet: sheet, Bucket: bucket, Records: n})
	}

	log.Info("sync finished",
		"collections", len(report.Collections),
		"errors", len(report.Errors),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report
}
