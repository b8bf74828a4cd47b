package ratelimit

import (
	"sync"
	"time"
)

type windowEntry struct {
	failures    int
	windowStart time.Time
}

// FailureWindow tracks authentication failures per key (client IP) inside a
// fixed window. Entries are deleted when the window expires or on explicit
// Reset after a successful authentication.
type FailureWindow struct {
	mu          sync.Mutex
	entries     map[string]*windowEntry
	maxFailures int
	window      time.Duration

	now func() time.Time
}

// NewFailureWindow builds a window limiter, e.g. 5 failures per 900 seconds.
func NewFailureWindow(maxFailures int, window time.Duration) *FailureWindow {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FailureWindow{
		entries:     make(map[string]*windowEntry),
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}
}

// Limited reports whether key has exhausted its failure budget.
func (w *FailureWindow) Limited(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok {
		return false
	}
	if w.now().Sub(e.windowStart) > w.window {
		delete(w.entries, key)
		return false
	}
	return e.failures >= w.maxFailures
}

// RecordFailure counts one failed attempt for key.
func (w *FailureWindow) RecordFailure(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.entries[key]; ok {
		if now.Sub(e.windowStart) > w.window {
			e.failures = 1
			e.windowStart = now
			return
		}
		e.failures++
		return
	}
	w.entries[key] = &windowEntry{failures: 1, windowStart: now}
}

// Remaining reports how many failures key may still make in this window.
func (w *FailureWindow) Remaining(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok || w.now().Sub(e.windowStart) > w.window {
		return w.maxFailures
	}
	if e.failures >= w.maxFailures {
		return 0
	}
	return w.maxFailures - e.failures
}

// RetryAfter reports the seconds until the window for key resets.
func (w *FailureWindow) RetryAfter(key string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok {
		return 0
	}
	elapsed := w.now().Sub(e.windowStart)
	if elapsed >= w.window {
		return 0
	}
	secs := int64((w.window - elapsed).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Reset deletes the entry for key, typically after a successful login.
func (w *FailureWindow) Reset(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, key)
}

// Cleanup drops expired entries; callers run it periodically.
func (w *FailureWindow) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for key, e := range w.entries {
		if now.Sub(e.windowStart) > w.window {
			delete(w.entries, key)
		}
	}
}
