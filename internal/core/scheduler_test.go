package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/store"
)

func TestRunCleanup(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	base := svc.now()

	data := xlsxBytes(t, sheet{name: "Hoja1", rows: executionRows()})
	old, err := svc.Upload(ctx, "viejo.xlsx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(90 * time.Minute) }
	fresh, err := svc.Upload(ctx, "nuevo.xlsx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	stale := filepath.Join(svc.OutputDir(), "viejo_Hoja1.json")
	recent := filepath.Join(svc.OutputDir(), "nuevo_Hoja1.json")
	notes := filepath.Join(svc.OutputDir(), "notes.txt")
	for _, p := range []string{stale, recent, notes} {
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chtimes(stale, base, base); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(notes, base, base); err != nil {
		t.Fatal(err)
	}
	later := base.Add(2 * time.Hour)
	if err := os.Chtimes(recent, later, later); err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	stats := svc.runCleanup(ctx, time.Hour)

	if stats.Uploads != 1 || stats.Exports != 1 {
		t.Errorf("runCleanup() = %+v, want 1 upload and 1 export", stats)
	}
	if _, err := svc.File(old.ID); err == nil {
		t.Error("expired upload still registered")
	}
	if _, err := svc.File(fresh.ID); err != nil {
		t.Errorf("fresh upload removed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale export still present: %v", err)
	}
	for _, p := range []string{recent, notes} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed: %v", filepath.Base(p), err)
		}
	}
}

func TestStartCleanupScheduler_Disabled(t *testing.T) {
	svc := newTestService(t, store.NewMemory())

	done := make(chan struct{})
	go func() {
		svc.StartCleanupScheduler(context.Background(), CleanupConfig{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero MaxAge should return immediately")
	}
}

func TestStartCleanupScheduler_StopsOnCancel(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.StartCleanupScheduler(ctx, CleanupConfig{MaxAge: time.Hour, Interval: time.Hour})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
