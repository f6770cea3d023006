package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/dataset"
	"github.com/JonMunkholm/sheetsync/internal/extract"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrNoFile             = errors.New("no file provided")
	ErrEmptyFile          = errors.New("empty file")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnsupportedFile    = errors.New("unsupported file type")
	ErrUnreadableWorkbook = errors.New("unreadable workbook")
	ErrInvalidFilename    = errors.New("invalid file name")
)

// FileInfo is a registered upload.
type FileInfo struct {
	ID           string       `json:"file_id"`
	OriginalName string       `json:"original_name"`
	Kind         dataset.Kind `json:"kind"`
	Sheets       []string     `json:"sheets"`
	Size         int64        `json:"size"`
	UploadedAt   time.Time    `json:"uploaded_at"`
	ClientIP     string       `json:"client_ip,omitempty"`
	UserAgent    string       `json:"-"`

	path string
}

// Service owns the file registry and the store handle.
type Service struct {
	store   store.Store
	limiter *UploadLimiter

	uploadDir   string
	outputDir   string
	maxFileSize int64
	syncTimeout time.Duration
	goals       extract.GoalOptions
	now         func() time.Time

	mu    sync.RWMutex
	files map[string]*FileInfo
}

// NewService creates the upload and output directories and returns a
// service writing to st.
func NewService(st store.Store, cfg *config.Config) (*Service, error) {
	uploadDir := cfg.Upload.Dir
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "sheetsync_uploads")
	}
	outputDir := cfg.Upload.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "sheetsync_output")
	}
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &Service{
		store:       st,
		limiter:     NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		uploadDir:   uploadDir,
		outputDir:   outputDir,
		maxFileSize: cfg.Upload.MaxFileSize,
		syncTimeout: cfg.Upload.SyncTimeout,
		goals: extract.GoalOptions{
			Period:   cfg.Goals.Period,
			ScanRows: cfg.Goals.ScanRows,
		},
		now:   time.Now,
		files: make(map[string]*FileInfo),
	}, nil
}

// OutputDir is where exports are written and downloads are served from.
func (s *Service) OutputDir() string { return s.outputDir }

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// UploadLimiterStatus reports the processing slots in use.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until running uploads finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) register(info *FileInfo) {
	s.mu.Lock()
	s.files[info.ID] = info
	s.mu.Unlock()
}

// File returns a registered file.
func (s *Service) File(id string) (*FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	cp := *info
	cp.Sheets = slices.Clone(info.Sheets)
	return &cp, nil
}

// Files lists registered files, oldest first.
func (s *Service) Files() []FileInfo {
	s.mu.RLock()
	out := make([]FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		cp.Sheets = slices.Clone(info.Sheets)
		out = append(out, cp)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b FileInfo) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Delete removes a file from disk and from the registry. Stored buckets
// are left in place.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	info, ok := s.files[id]
	if ok {
		delete(s.files, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	if err := os.Remove(info.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.FromContext(ctx).Warn("remove uploaded file", "file_id", id, "error", err)
	}
	return nil
}
