package intent

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterSet hands out one token bucket per caller identity, lazily
// created on first use, per-endpoint-class (create vs delete) since the
// two write paths have different defaults.
type limiterSet struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newLimiterSet(perMinute int) *limiterSet {
	return &limiterSet{perMin: perMinute, limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether identity may proceed, consuming one token if so.
func (l *limiterSet) Allow(identity string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[identity]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
		l.limiters[identity] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
