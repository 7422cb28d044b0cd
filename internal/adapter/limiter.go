// Package adapter holds what the upload transports share: a process-wide
// concurrency limiter that wraps any core.Adapter, and the factory that
// builds the configured transport.
package adapter

// limiter.go caps how many adapter calls run at once across every upload
// manager of a process. Each manager bounds its own batches; the limiter
// bounds the sum, so many sessions cannot exhaust the transport. A call that
// cannot get a slot within maxWait fails with a retryable error and the
// record becomes interrupted.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

// ErrTooManyUploads is returned when all upload slots stay occupied for the
// whole wait.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// DefaultMaxConcurrentUploads is the default number of process-wide slots.
const DefaultMaxConcurrentUploads = 8

// DefaultMaxWaitTime is how long a call waits for a slot before failing.
const DefaultMaxWaitTime = 30 * time.Second

// Limiter is a counting semaphore for adapter calls.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
}

// NewLimiter allows at most maxConcurrent calls at once. Non-positive
// arguments fall back to the defaults.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. It returns ctx.Err() when the
// caller gives up first and ErrTooManyUploads when the wait runs out.
// Every successful Acquire must be paired with Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.track(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyUploads
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.track(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	l.track(-1)
	<-l.slots
}

func (l *Limiter) track(delta int) {
	l.mu.Lock()
	l.active += delta
	l.mu.Unlock()
}

// Active returns the number of calls holding a slot.
func (l *Limiter) Active() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the number of slots.
func (l *Limiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *Limiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no call holds a slot. The server uses it during
// shutdown so in-flight transfers can finish.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a snapshot for monitoring endpoints.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current slot usage.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.Active(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}

// Limit wraps next so every Upload holds a slot of l for its duration.
// Cancel and Delete are forwarded when next supports them and do not take a
// slot.
func Limit(next core.Adapter, l *Limiter) core.Adapter {
	return &limited{next: next, limiter: l}
}

type limited struct {
	next    core.Adapter
	limiter *Limiter
}

func (a *limited) Upload(ctx context.Context, in core.UploadInput) (core.Result, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return core.Result{}, core.Retryable("waiting for an upload slot", err)
	}
	defer a.limiter.Release()

	return a.next.Upload(ctx, in)
}

func (a *limited) Cancel(ctx context.Context, fileID string) error {
	if c, ok := a.next.(core.Canceler); ok {
		return c.Cancel(ctx, fileID)
	}
	return nil
}

func (a *limited) Delete(ctx context.Context, fileID string) error {
	if d, ok := a.next.(core.Deleter); ok {
		return d.Delete(ctx, fileID)
	}
	return nil
}
