package capture

import "time"

// warnLimiter caps how many malformed-frame warnings are logged per decode
// reason in each window. Counts reset when the window rotates. Not safe for
// concurrent use; only the loop goroutine calls it.
type warnLimiter struct {
	counts      map[string]int
	windowStart time.Time
	window      time.Duration
	max         int
	suppressed  int
}

// newWarnLimiter returns nil, which allows everything, when limit <= 0.
func newWarnLimiter(limit int, window time.Duration) *warnLimiter {
	if limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &warnLimiter{
		counts: make(map[string]int),
		window: window,
		max:    limit,
	}
}

// Allow reports whether a warning for reason may be logged at now. dropped is
// the number of warnings suppressed in the window that just ended, non-zero
// only on the first call after a rotation.
func (l *warnLimiter) Allow(reason string, now time.Time) (ok bool, dropped int) {
	if l == nil {
		return true, 0
	}

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		dropped = l.suppressed
		l.suppressed = 0
		clear(l.counts)
		l.windowStart = now
	}

	l.counts[reason]++
	if l.counts[reason] > l.max {
		l.suppressed++
		return false, dropped
	}
	return true, dropped
}
