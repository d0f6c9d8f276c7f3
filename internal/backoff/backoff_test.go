package backoff

import (
	"testing"
	"time"
)

func TestCompute_GrowsAndCaps(t *testing.T) {
	cfg := Config{Initial: 5 * time.Second, Factor: 2, Cap: 60 * time.Second}

	cases := []struct {
		attempt  int
		wantLow  time.Duration
		wantHigh time.Duration
	}{
		{1, 4 * time.Second, 6 * time.Second},
		{2, 8 * time.Second, 12 * time.Second},
		{3, 16 * time.Second, 24 * time.Second},
		{10, 48 * time.Second, 60 * time.Second}, // capped
	}

	for _, c := range cases {
		for i := 0; i < 20; i++ {
			d := Compute(cfg, c.attempt)
			if d < c.wantLow || d > c.wantHigh {
				t.Errorf("Compute(attempt=%d) = %v, want between %v and %v", c.attempt, d, c.wantLow, c.wantHigh)
			}
		}
	}
}

func TestCompute_TreatsSubOneAttemptAsFirst(t *testing.T) {
	cfg := Config{Initial: 5 * time.Second, Factor: 2, Cap: 60 * time.Second}
	d0 := Compute(cfg, 0)
	d1 := Compute(cfg, 1)
	if d0 > 6*time.Second || d1 > 6*time.Second {
		t.Errorf("attempt 0 and attempt 1 should both behave like the first attempt, got %v and %v", d0, d1)
	}
}

func TestCompute_NeverExceedsCap(t *testing.T) {
	cfg := Config{Initial: time.Second, Factor: 3, Cap: 10 * time.Second}
	for attempt := 1; attempt <= 50; attempt++ {
		if d := Compute(cfg, attempt); d > cfg.Cap {
			t.Fatalf("Compute(attempt=%d) = %v exceeds cap %v", attempt, d, cfg.Cap)
		}
	}
}
