package http

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRateLimiterCapsConcurrentFrames(t *testing.T) {
	r := newRateLimiter(100)
	stop := make(chan struct{})
	r.startReset(stop)
	defer close(stop)

	// Hammer the limiter from several goroutines while the reset goroutine
	// is live; exactly limit frames may pass.
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if r.allow() {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 100 {
		t.Fatalf("expected 100 allowed frames, got %d", got)
	}
	if r.allow() {
		t.Fatal("limiter should stay closed past the limit")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(0)
	for i := 0; i < 500; i++ {
		if !r.allow() {
			t.Fatal("disabled limiter rejected a frame")
		}
	}
}
