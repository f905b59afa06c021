package ratelimit

import (
	"testing"
	"time"
)

func TestFixedIntervalFirstRequestProceedsImmediately(t *testing.T) {
	var slept []time.Duration
	now := time.Unix(1000, 0)

	f := NewFixedInterval(720 * time.Millisecond)
	f.now = func() time.Time { return now }
	f.sleep = func(d time.Duration) { slept = append(slept, d) }

	f.Wait()
	if len(slept) != 0 {
		t.Errorf("expected no sleep on first request, slept %v", slept)
	}
}

func TestFixedIntervalSpacesRequests(t *testing.T) {
	var slept []time.Duration
	now := time.Unix(1000, 0)

	f := NewFixedInterval(720 * time.Millisecond)
	f.now = func() time.Time { return now }
	f.sleep = func(d time.Duration) {
		slept = append(slept, d)
		now = now.Add(d)
	}

	f.Wait()
	now = now.Add(100 * time.Millisecond) // caller does 100ms of work
	f.Wait()

	if len(slept) != 1 {
		t.Fatalf("expected exactly one sleep, got %d", len(slept))
	}
	if slept[0] != 620*time.Millisecond {
		t.Errorf("expected to sleep the remaining 620ms, slept %v", slept[0])
	}
}

func TestFixedIntervalNoSleepAfterLongGap(t *testing.T) {
	var slept []time.Duration
	now := time.Unix(1000, 0)

	f := NewFixedInterval(720 * time.Millisecond)
	f.now = func() time.Time { return now }
	f.sleep = func(d time.Duration) { slept = append(slept, d) }

	f.Wait()
	now = now.Add(5 * time.Second)
	f.Wait()

	if len(slept) != 0 {
		t.Errorf("expected no sleep after a long gap, slept %v", slept)
	}
}

func TestFixedIntervalReset(t *testing.T) {
	var slept []time.Duration
	now := time.Unix(1000, 0)

	f := NewFixedInterval(720 * time.Millisecond)
	f.now = func() time.Time { return now }
	f.sleep = func(d time.Duration) { slept = append(slept, d) }

	f.Wait()
	f.Reset()
	f.Wait()

	if len(slept) != 0 {
		t.Errorf("expected no sleep after reset, slept %v", slept)
	}
}

func TestPerHour(t *testing.T) {
	if got := PerHour(5000); got != 720*time.Millisecond {
		t.Errorf("PerHour(5000) = %v, want 720ms", got)
	}
	if got := PerHour(0); got != DefaultInterval {
		t.Errorf("PerHour(0) = %v, want default", got)
	}
}
