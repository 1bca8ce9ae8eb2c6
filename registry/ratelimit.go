package registry

import (
	"sync"

	"golang.org/x/time/rate"
)

// raterLimits throttles ratings per (rater, bridge) pair. Naive mean
// aggregation is acceptable for v1 but must not be trivially floodable.
type raterLimits struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

func newRaterLimits(limit rate.Limit) *raterLimits {
	return &raterLimits{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

func (rl *raterLimits) allow(raterID, bridgeID string) bool {
	key := raterID + "\x00" + bridgeID

	rl.mu.Lock()
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, 1)
		rl.limiters[key] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}
