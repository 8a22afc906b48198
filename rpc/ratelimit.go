package rpc

import (
	"sync"

	"golang.org/x/time/rate"
)

const maxTrackedCallers = 10_000

type callerLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newCallerLimiter(perSecond float64, burst int) *callerLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &callerLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (l *callerLimiter) allow(source string) bool {
	if source == "" {
		source = "unknown"
	}
	l.mu.Lock()
	limiter, ok := l.limiters[source]
	if !ok {
		if len(l.limiters) >= maxTrackedCallers {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.perSecond, l.burst)
		l.limiters[source] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
