package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelay_Exponential(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := Delay(time.Second, tc.attempt, true); got != tc.want {
			t.Errorf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelay_Constant(t *testing.T) {
	for attempt := 0; attempt < 4; attempt++ {
		if got := Delay(5*time.Second, attempt, false); got != 5*time.Second {
			t.Errorf("attempt %d: got %v, want 5s", attempt, got)
		}
	}
}

func TestDelay_Clamped(t *testing.T) {
	if got := Delay(time.Second, 60, true); got != time.Hour {
		t.Errorf("got %v, want clamp to 1h", got)
	}
	if got := Delay(0, 3, true); got != 0 {
		t.Errorf("zero base: got %v, want 0", got)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSleep_Completes(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero duration: got %v, want nil", err)
	}
}
