package events

import (
	"math"
	"sync"
	"time"
)

// Default throttling thresholds for progress events.
const (
	DefaultThrottleStep     = 10
	DefaultThrottleInterval = 500 * time.Millisecond
)

// Throttler limits how often percentage progress is emitted. An update is
// emitted when the percentage advanced by at least step since the last
// emission or when interval has passed, whichever comes first. 0% and 100%
// are always emitted.
type Throttler struct {
	mu          sync.Mutex
	step        int
	interval    time.Duration
	lastPercent int
	lastEmit    time.Time
	now         func() time.Time
}

// NewThrottler creates a throttler. Non-positive arguments select the defaults.
func NewThrottler(step int, interval time.Duration) *Throttler {
	if step <= 0 {
		step = DefaultThrottleStep
	}
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	t := &Throttler{step: step, interval: interval, now: time.Now}
	t.lastEmit = t.now()
	return t
}

// ShouldEmit reports whether an update at percent should be emitted and,
// if so, records it. Percent is floored so 100 is reached only when done.
func (t *Throttler) ShouldEmit(percent float64) bool {
	current := clampPercent(percent)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if current == 0 || current >= 100 ||
		current-t.lastPercent >= t.step ||
		now.Sub(t.lastEmit) >= t.interval {
		t.lastPercent = current
		t.lastEmit = now
		return true
	}
	return false
}

// Reset starts tracking a new file.
func (t *Throttler) Reset() {
	t.mu.Lock()
	t.lastPercent = 0
	t.lastEmit = t.now()
	t.mu.Unlock()
}

func clampPercent(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Floor(p))))
}

// Percent returns done/total as a percentage, 100 when total is zero.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}
