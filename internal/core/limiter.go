package core

// limiter.go bounds how many files are processed at the same time.
//
// Each file holds one slot from acquisition until it reaches a terminal
// state. When all slots are occupied, new files wait up to maxWait before
// failing with ErrTooManyUploads. WaitForDrain lets shutdown wait for the
// files already running.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTooManyUploads is returned when all slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// DefaultMaxConcurrentUploads is the default number of files processed in parallel.
const DefaultMaxConcurrentUploads = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// UploadLimiter is a counting semaphore over file slots.
type UploadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64

	mu      sync.Mutex
	drained chan struct{} // closed whenever active drops to zero
}

// NewUploadLimiter creates a limiter with maxConcurrent slots.
// Non-positive arguments fall back to the defaults.
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

// Acquire waits for a slot. It returns ErrTooManyUploads when maxWait
// elapses, or the context error when ctx ends first.
// Callers must Release every slot they acquire.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.enter()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyUploads
	}
}

// TryAcquire takes a slot without blocking.
func (l *UploadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.enter()
		return true
	default:
		return false
	}
}

// Release returns a slot.
func (l *UploadLimiter) Release() {
	<-l.slots

	l.mu.Lock()
	if l.active.Add(-1) == 0 {
		close(l.drained)
	}
	l.mu.Unlock()
}

func (l *UploadLimiter) enter() {
	l.mu.Lock()
	if l.active.Add(1) == 1 {
		l.drained = make(chan struct{})
	}
	l.mu.Unlock()
}

// ActiveCount returns the number of slots in use.
func (l *UploadLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the number of slots.
func (l *UploadLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *UploadLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no slot is in use or ctx ends.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	for {
		l.mu.Lock()
		drained := l.drained
		idle := l.active.Load() == 0
		l.mu.Unlock()

		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-drained:
		}
	}
}

// UploadLimiterStatus is a snapshot of the limiter for monitoring.
type UploadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *UploadLimiter) Status() UploadLimiterStatus {
	return UploadLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
