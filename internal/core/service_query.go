package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/JonMunkholm/sheetsync/internal/extract"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// SheetPage is a window over a sheet's extracted records.
type SheetPage struct {
	FileID       string           `json:"file_id"`
	Sheet        string           `json:"sheet_name"`
	TotalRecords int              `json:"total_records"`
	Offset       int              `json:"offset"`
	Limit        *int             `json:"limit"` // nil when unbounded
	Records      []extract.Record `json:"data"`
}

// sheetOf returns the file's path after checking sheet belongs to it.
func (s *Service) sheetOf(fileID, sheet string) (*FileInfo, error) {
	info, err := s.File(fileID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(info.Sheets, sheet) {
		return nil, &extract.NotFoundError{Sheet: sheet}
	}
	return info, nil
}

// Sheets returns the listed sheets of a registered file.
func (s *Service) Sheets(fileID string) ([]string, error) {
	info, err := s.File(fileID)
	if err != nil {
		return nil, err
	}
	return info.Sheets, nil
}

// SheetData runs the generic extractor over one sheet and returns the
// records in [offset, offset+limit). A non-positive limit returns every
// record from offset on.
func (s *Service) SheetData(ctx context.Context, fileID, sheet string, offset, limit int) (*SheetPage, error) {
	info, err := s.sheetOf(fileID, sheet)
	if err != nil {
		return nil, err
	}
	offset = max(offset, 0)

	records, err := readSheet(info.path, sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	start := min(offset, len(records))
	end := len(records)
	page := &SheetPage{
		FileID:       fileID,
		Sheet:        sheet,
		TotalRecords: len(records),
		Offset:       offset,
	}
	if limit > 0 {
		end = start + min(limit, end-start)
		page.Limit = &limit
	}
	page.Records = records[start:end]
	return page, nil
}

// GoalData runs the structured extractor over one sheet of a file.
func (s *Service) GoalData(ctx context.Context, fileID, sheet string) (*extract.GoalSheet, error) {
	info, err := s.sheetOf(fileID, sheet)
	if err != nil {
		return nil, err
	}
	gs, err := readGoalSheet(info.path, sheet, s.goals)
	if err != nil {
		return nil, fmt.Errorf("read goal sheet %q: %w", sheet, err)
	}
	return gs, nil
}

// Buckets lists persisted buckets.
func (s *Service) Buckets(ctx context.Context) ([]store.BucketInfo, error) {
	return s.store.Buckets(ctx)
}

// Records pages through a persisted bucket.
func (s *Service) Records(ctx context.Context, bucket string, q store.Query) (*store.Page, error) {
	return s.store.Find(ctx, bucket, q)
}

// Aggregate groups a persisted bucket.
func (s *Service) Aggregate(ctx context.Context, bucket string, q store.AggregateQuery) ([]store.Group, error) {
	return s.store.Aggregate(ctx, bucket, q)
}
