package scheduler_test

import (
	"errors"
	"testing"

	"github.com/soraya-vance/daymind/internal/daymind/scheduler"
)

func testConfig() scheduler.Config {
	return scheduler.Config{ActiveMinutes: 5, NormalMinutes: 15, IdleMinutes: 60, MaxBackoffMinutes: 120}
}

func TestNextInterval_PerState(t *testing.T) {
	cfg := testConfig()

	cases := []struct {
		state State
		want  int
	}{
		{state: State{Name: scheduler.StateActive}, want: 5},
		{state: State{Name: scheduler.StateNormal}, want: 15},
		{state: State{Name: scheduler.StateIdle}, want: 60},
	}
	for _, tc := range cases {
		got := scheduler.NextInterval(tc.state, cfg, 0)
		if got.DelayMinutes != tc.want {
			t.Errorf("state %v: DelayMinutes got %d, want %d", tc.state, got.DelayMinutes, tc.want)
		}
	}
}

type State = scheduler.State

func TestNextInterval_ErrorBackoffDoublesAndCaps(t *testing.T) {
	cfg := testConfig()

	got0 := scheduler.NextInterval(State{Name: scheduler.StateError, RetryCount: 0}, cfg, 0)
	if got0.DelayMinutes != 5 {
		t.Errorf("retry 0: got %d, want 5", got0.DelayMinutes)
	}

	got1 := scheduler.NextInterval(State{Name: scheduler.StateError, RetryCount: 1}, cfg, 0)
	if got1.DelayMinutes != 10 {
		t.Errorf("retry 1: got %d, want 10", got1.DelayMinutes)
	}

	got5 := scheduler.NextInterval(State{Name: scheduler.StateError, RetryCount: 5}, cfg, 0)
	if got5.DelayMinutes != cfg.MaxBackoffMinutes {
		t.Errorf("retry 5: got %d, want capped at %d", got5.DelayMinutes, cfg.MaxBackoffMinutes)
	}
}

func TestNextInterval_JitterIsDeterministicAndBounded(t *testing.T) {
	cfg := testConfig()
	got1 := scheduler.NextInterval(State{Name: scheduler.StateActive}, cfg, 42)
	got2 := scheduler.NextInterval(State{Name: scheduler.StateActive}, cfg, 42)
	if got1.JitterSeconds != got2.JitterSeconds {
		t.Error("expected identical jitter for identical seed")
	}
	if got1.JitterSeconds < 0 || got1.JitterSeconds >= 31 {
		t.Errorf("JitterSeconds out of bounds: %d", got1.JitterSeconds)
	}

	gotNeg := scheduler.NextInterval(State{Name: scheduler.StateActive}, cfg, -42)
	if gotNeg.JitterSeconds != got1.JitterSeconds {
		t.Errorf("expected abs(seed) symmetry: got %d vs %d", gotNeg.JitterSeconds, got1.JitterSeconds)
	}
}

func TestAdvance_SuccessWithFetchedGoesActive(t *testing.T) {
	got := scheduler.Advance(3, nil, 2)
	if got.Name != scheduler.StateActive {
		t.Errorf("got %v, want active", got)
	}
}

func TestAdvance_SuccessWithNothingFetchedGoesIdle(t *testing.T) {
	got := scheduler.Advance(0, nil, 2)
	if got.Name != scheduler.StateIdle {
		t.Errorf("got %v, want idle", got)
	}
}

func TestAdvance_FailureIncrementsRetryAndGoesError(t *testing.T) {
	got := scheduler.Advance(0, errors.New("boom"), 2)
	if got.Name != scheduler.StateError || got.RetryCount != 3 {
		t.Errorf("got %+v, want error/retry=3", got)
	}
}
