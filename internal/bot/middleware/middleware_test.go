package middleware

import (
	"testing"
	"time"

	"serotonyl.ru/support-bot/internal/clock"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	clk := clock.Fake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(clk, 3, time.Minute)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.Allow(1) {
			t.Fatalf("request %d must pass", i+1)
		}
		clk.Advance(10 * time.Second)
	}
	if rl.Allow(1) {
		t.Fatal("4th request inside the window must be limited")
	}
	if !rl.Allow(2) {
		t.Fatal("limit is per user")
	}

	// первый запрос вышел из окна
	clk.Advance(31 * time.Second)
	if !rl.Allow(1) {
		t.Fatal("request after the window must pass")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	clk := clock.Fake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(clk, 5, time.Minute)
	defer rl.Close()

	rl.Allow(1)
	rl.Allow(2)
	clk.Advance(2 * time.Minute)
	rl.Allow(2)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.requests[1]; ok {
		t.Fatal("idle user must be dropped")
	}
	if len(rl.requests[2]) != 1 {
		t.Fatalf("user 2 = %v", rl.requests[2])
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(nil, 0, time.Minute)
	defer rl.Close()
	for i := 0; i < 100; i++ {
		if !rl.Allow(1) {
			t.Fatal("limit 0 must disable limiting")
		}
	}
}

func TestRecoverFromPanicRunsHook(t *testing.T) {
	called := false
	func() {
		defer RecoverFromPanic(func() { called = true })
		panic("boom")
	}()
	if !called {
		t.Fatal("onPanic hook not called")
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	if got := truncate("привет", 3); got != "при..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("ok", 3); got != "ok" {
		t.Fatalf("truncate = %q", got)
	}
}
