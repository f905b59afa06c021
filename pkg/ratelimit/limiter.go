package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the interface for request throttling
type Limiter interface {
	// Wait blocks until the next request is allowed to proceed
	Wait()
	// Reset resets the limiter state
	Reset()
}

// FixedInterval spaces requests at least a fixed interval apart. The
// default interval of 720ms keeps a sequential caller under ~5000
// requests per hour, GitHub's authenticated quota.
type FixedInterval struct {
	interval time.Duration
	last     time.Time
	mu       sync.Mutex

	now   func() time.Time
	sleep func(time.Duration)
}

// DefaultInterval targets ~5000 requests per hour.
const DefaultInterval = 720 * time.Millisecond

// NewFixedInterval creates a fixed-interval limiter
func NewFixedInterval(interval time.Duration) *FixedInterval {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &FixedInterval{
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// PerHour returns the interval that spaces n requests evenly over an hour.
func PerHour(n int) time.Duration {
	if n <= 0 {
		return DefaultInterval
	}
	return time.Hour / time.Duration(n)
}

// Wait sleeps until a full interval has elapsed since the previous request
func (f *FixedInterval) Wait() {
	f.mu.Lock()
	remaining := f.interval - f.now().Sub(f.last)
	if remaining > 0 {
		f.sleep(remaining)
	}
	f.last = f.now()
	f.mu.Unlock()
}

// Reset clears the limiter so the next request proceeds immediately
func (f *FixedInterval) Reset() {
	f.mu.Lock()
	f.last = time.Time{}
	f.mu.Unlock()
}

// Noop is a limiter that never blocks. It backs the --no-throttle flag.
type Noop struct{}

func (Noop) Wait()  {}
func (Noop) Reset() {}
