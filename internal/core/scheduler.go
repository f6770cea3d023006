package core

// scheduler.go runs the retention sweep for uploads and exports.
//
// Each pass drops registered uploads older than the retention window and
// removes exported JSON files whose modification time falls outside it.
// Stored buckets are never touched. Failures are logged and the next pass
// tries again.

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupConfig holds settings for the retention sweep.
type CleanupConfig struct {
	MaxAge   time.Duration // Age after which uploads and exports are removed
	Interval time.Duration // How often to sweep (default: 1h)
}

// CleanupStats reports what one sweep removed.
type CleanupStats struct {
	Uploads int
	Exports int
}

// StartCleanupScheduler sweeps expired files immediately, then every
// Interval, until ctx is cancelled. It returns at once when MaxAge is not
// positive.
func (s *Service) StartCleanupScheduler(ctx context.Context, cfg CleanupConfig) {
	if cfg.MaxAge <= 0 {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	slog.Info("cleanup scheduler started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.Interval.String(),
	)

	s.runCleanup(ctx, cfg.MaxAge)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.runCleanup(ctx, cfg.MaxAge)
		}
	}
}

func (s *Service) runCleanup(ctx context.Context, maxAge time.Duration) CleanupStats {
	start := time.Now()
	cutoff := s.now().Add(-maxAge)

	stats := CleanupStats{Uploads: s.expireUploads(ctx, cutoff)}

	exports, err := s.expireExports(cutoff)
	if err != nil {
		slog.Error("export cleanup failed", "dir", s.outputDir, "error", err)
	}
	stats.Exports = exports

	slog.Info("cleanup completed",
		"uploads_removed", stats.Uploads,
		"exports_removed", stats.Exports,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats
}

// expireUploads deletes registered files uploaded before cutoff.
func (s *Service) expireUploads(ctx context.Context, cutoff time.Time) int {
	s.mu.RLock()
	var expired []string
	for id, info := range s.files {
		if info.UploadedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		// A concurrent Delete may have won; that still counts as gone.
		if err := s.Delete(ctx, id); err != nil && !errors.Is(err, ErrFileNotFound) {
			slog.Warn("expire upload", "file_id", id, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// expireExports removes .json files in the output directory last written
// before cutoff.
func (s *Service) expireExports(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.outputDir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("expire export", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
