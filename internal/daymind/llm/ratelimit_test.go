package llm_test

import (
	"testing"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/llm"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	const limit = 5
	rl := llm.NewRateLimiter(limit, time.Minute)

	for i := 0; i < limit; i++ {
		if !rl.Allow("acct-1") {
			t.Fatalf("Allow returned false on call %d/%d", i+1, limit)
		}
	}
}

func TestRateLimiter_RejectsWhenLimitExceeded(t *testing.T) {
	const limit = 3
	rl := llm.NewRateLimiter(limit, time.Minute)

	for i := 0; i < limit; i++ {
		rl.Allow("acct-2")
	}
	if rl.Allow("acct-2") {
		t.Error("expected false after limit exhausted")
	}
}

func TestRateLimiter_IndependentPerAccount(t *testing.T) {
	const limit = 2
	rl := llm.NewRateLimiter(limit, time.Minute)

	rl.Allow("acct-a")
	rl.Allow("acct-a")
	if rl.Allow("acct-a") {
		t.Error("acct-a should be rate-limited")
	}
	if !rl.Allow("acct-b") {
		t.Error("acct-b should be independent of acct-a")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	const limit = 1
	window := 50 * time.Millisecond
	rl := llm.NewRateLimiter(limit, window)

	if !rl.Allow("acct-c") {
		t.Fatal("first call should be allowed")
	}
	if rl.Allow("acct-c") {
		t.Fatal("second immediate call should be rejected")
	}
	time.Sleep(window + 20*time.Millisecond)
	if !rl.Allow("acct-c") {
		t.Error("call after window expiry should be allowed again")
	}
}

func TestRateLimiter_RemainingTracksUsage(t *testing.T) {
	rl := llm.NewRateLimiter(3, time.Minute)
	if got := rl.Remaining("acct-d"); got != 3 {
		t.Fatalf("Remaining before any calls: got %d, want 3", got)
	}
	rl.Allow("acct-d")
	if got := rl.Remaining("acct-d"); got != 2 {
		t.Errorf("Remaining after one call: got %d, want 2", got)
	}
}
