package ratelimit

import (
	"testing"
	"time"
)

func TestFailureWindowAllowsInitialAttempts(t *testing.T) {
	w := NewFailureWindow(5, 900*time.Second)

	if w.Limited("192.168.1.1") {
		t.Error("fresh key should not be limited")
	}
	if got := w.Remaining("192.168.1.1"); got != 5 {
		t.Errorf("remaining = %d, want 5", got)
	}
}

func TestFailureWindowBlocksAfterMaxFailures(t *testing.T) {
	w := NewFailureWindow(3, 900*time.Second)
	ip := "192.168.1.2"

	for i := 0; i < 3; i++ {
		w.RecordFailure(ip)
	}

	if !w.Limited(ip) {
		t.Error("key should be limited after max failures")
	}
	if got := w.Remaining(ip); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
	if got := w.RetryAfter(ip); got <= 0 {
		t.Errorf("retryAfter = %d, want > 0", got)
	}
}

func TestFailureWindowReset(t *testing.T) {
	w := NewFailureWindow(3, 900*time.Second)
	ip := "192.168.1.3"

	for i := 0; i < 3; i++ {
		w.RecordFailure(ip)
	}
	if !w.Limited(ip) {
		t.Fatal("key should be limited")
	}

	w.Reset(ip)

	if w.Limited(ip) {
		t.Error("key should not be limited after reset")
	}
	if got := w.Remaining(ip); got != 3 {
		t.Errorf("remaining = %d, want 3", got)
	}
}

func TestFailureWindowExpiry(t *testing.T) {
	w := NewFailureWindow(3, time.Second)
	clock := time.Now()
	w.now = func() time.Time { return clock }
	ip := "192.168.1.4"

	for i := 0; i < 3; i++ {
		w.RecordFailure(ip)
	}
	if !w.Limited(ip) {
		t.Fatal("key should be limited")
	}

	clock = clock.Add(2 * time.Second)

	if w.Limited(ip) {
		t.Error("window expiry should clear the limit")
	}
	if got := w.Remaining(ip); got != 3 {
		t.Errorf("remaining after expiry = %d, want 3", got)
	}
}

func TestFailureWindowCleanup(t *testing.T) {
	w := NewFailureWindow(3, time.Second)
	clock := time.Now()
	w.now = func() time.Time { return clock }

	w.RecordFailure("a")
	w.RecordFailure("b")
	clock = clock.Add(2 * time.Second)
	w.RecordFailure("c")

	w.Cleanup()

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries["a"]; ok {
		t.Error("expired entry a survived cleanup")
	}
	if _, ok := w.entries["c"]; !ok {
		t.Error("live entry c removed by cleanup")
	}
}
