package core

// upload_limiter.go bounds how many workbooks are processed at once.
//
// Parsing a workbook holds its whole grid in memory, so uploads and local
// processing runs take a slot before opening a file. When every slot is
// busy a caller waits up to maxWait, then fails with ErrTooManyUploads.
// WaitForDrain lets shutdown wait for running jobs.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when no slot frees up within the wait time.
var ErrTooManyUploads = errors.New("too many uploads in progress, try again later")

const (
	DefaultMaxConcurrentUploads = 4
	DefaultMaxWaitTime          = 30 * time.Second
)

// UploadLimiter is a counting semaphore with observable state.
type UploadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	waiting int
	drained chan struct{} // closed while active == 0
}

// NewUploadLimiter allows maxConcurrent jobs at once; callers wait at most
// maxWait for a slot. Non-positive values select the defaults.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	drained := make(chan struct{})
	close(drained)
	return &UploadLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		drained: drained,
	}
}

// Acquire takes a slot, waiting up to the limiter's wait time. The caller
// must Release the slot when done.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.started()
		return nil
	default:
	}

	l.mu.Lock()
	l.waiting++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.waiting--
		l.mu.Unlock()
	}()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.started()
		return nil
	case <-timer.C:
		return ErrTooManyUploads
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *UploadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.started()
		return true
	default:
		return false
	}
}

func (l *UploadLimiter) started() {
	l.mu.Lock()
	if l.active == 0 {
		l.drained = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *UploadLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.drained)
	}
	l.mu.Unlock()
	<-l.slots
}

// WaitForDrain blocks until no job holds a slot or ctx ends.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	drained := l.drained
	l.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UploadLimiterStatus is a snapshot of the limiter.
type UploadLimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *UploadLimiter) Status() UploadLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return UploadLimiterStatus{
		Active:        l.active,
		Waiting:       l.waiting,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
	}
}
