package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/extract"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/workbook"
)

// SheetExport is the document written for one sheet.
type SheetExport struct {
	Sheet        string           `json:"sheet_name"`
	TotalRecords int              `json:"total_records"`
	GeneratedAt  string           `json:"generated_at"`
	Records      []extract.Record `json:"data"`
}

// ExportedFile is the outcome of exporting one sheet. Error is set instead
// of the file fields when the sheet failed.
type ExportedFile struct {
	Sheet       string `json:"sheet_name"`
	Filename    string `json:"filename,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Records     int    `json:"records"`
	Error       string `json:"error,omitempty"`
}

// ExportResult lists the files written for a workbook.
type ExportResult struct {
	FileID          string         `json:"file_id,omitempty"`
	SourceFile      string         `json:"source_file,omitempty"`
	OutputDirectory string         `json:"output_directory,omitempty"`
	SheetsProcessed int            `json:"sheets_processed"`
	Files           []ExportedFile `json:"exported_files"`
}

// ExportOptions controls ExportWorkbook.
type ExportOptions struct {
	// BaseName prefixes output files. Defaults to the source file name
	// without its extension.
	BaseName string

	// Compact disables indentation.
	Compact bool

	// Now stamps generated_at. Defaults to time.Now.
	Now func() time.Time
}

// ExportWorkbook writes every non-SQL sheet of the workbook at path to
// outDir as <base>_<sheet>.json. A sheet that fails is reported in the
// result and does not stop the others.
func ExportWorkbook(path, outDir string, opts ExportOptions) (*ExportResult, error) {
	if opts.BaseName == "" {
		opts.BaseName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	sheets, err := listSheets(path)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{
		OutputDirectory: outDir,
		SheetsProcessed: len(sheets),
		Files:           make([]ExportedFile, 0, len(sheets)),
	}
	for _, sheet := range sheets {
		res.Files = append(res.Files, exportSheet(path, outDir, sheet, opts))
	}
	return res, nil
}

func exportSheet(path, outDir, sheet string, opts ExportOptions) ExportedFile {
	out := ExportedFile{Sheet: sheet}

	records, err := readSheet(path, sheet)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	name := ExportFilename(opts.BaseName, sheet)
	target := filepath.Join(outDir, name)
	doc := SheetExport{
		Sheet:        sheet,
		TotalRecords: len(records),
		GeneratedAt:  opts.Now().Format(time.RFC3339),
		Records:      records,
	}
	if err := writeJSONFile(target, doc, !opts.Compact); err != nil {
		out.Error = err.Error()
		return out
	}

	out.Filename = name
	out.OutputPath = target
	out.Records = len(records)
	return out
}

// ExportFilename builds <base>_<sheet>.json with path separators replaced.
func ExportFilename(base, sheet string) string {
	r := strings.NewReplacer("/", "_", "\\", "_")
	return r.Replace(base + "_" + sheet + ".json")
}

// writeJSONFile writes v without HTML escaping so accented text and
// symbols are kept as-is.
func writeJSONFile(path string, v any, indent bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	err = enc.Encode(v)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Export writes every sheet of a registered file to the output directory.
func (s *Service) Export(ctx context.Context, fileID string) (*ExportResult, error) {
	info, err := s.File(fileID)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(info.OriginalName, filepath.Ext(info.OriginalName))
	res, err := ExportWorkbook(info.path, s.outputDir, ExportOptions{BaseName: base, Now: s.now})
	if err != nil {
		return nil, err
	}
	res.FileID = fileID
	res.OutputDirectory = ""

	failed := 0
	for i := range res.Files {
		f := &res.Files[i]
		if f.Error != "" {
			failed++
			continue
		}
		f.DownloadURL = "/download/" + url.PathEscape(f.Filename)
		f.OutputPath = ""
	}
	logging.WithFields(ctx, "file_id", fileID).Info("workbook exported",
		"sheets", len(res.Files), "failed", failed)
	return res, nil
}

// ProcessLocal exports a workbook already on the server's disk. outDir
// defaults to an "output" directory next to the file.
func (s *Service) ProcessLocal(ctx context.Context, path, outDir string) (*ExportResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoFile
	}
	if !workbook.Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if outDir == "" {
		outDir = filepath.Join(filepath.Dir(path), "output")
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	res, err := ExportWorkbook(path, outDir, ExportOptions{Now: s.now})
	if err != nil {
		return nil, err
	}
	res.SourceFile = path
	logging.FromContext(ctx).Info("local workbook exported",
		"source", path, "output_dir", outDir, "sheets", res.SheetsProcessed)
	return res, nil
}

// DownloadPath resolves an exported file name inside the output directory.
// Names that would escape it are rejected.
func (s *Service) DownloadPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	path := filepath.Join(s.outputDir, name)
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return path, nil
}
