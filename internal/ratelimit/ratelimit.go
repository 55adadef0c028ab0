// Package ratelimit bounds how often each user may hit the sync
// endpoint. It is backpressure, not a correctness mechanism: the sync
// engine stays safe under concurrent calls regardless.
package ratelimit

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// PerUser keeps one token bucket per user id, evicting the least
// recently seen users once the table is full.
type PerUser struct {
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func NewPerUser(limit rate.Limit, burst int) *PerUser {
	cache, _ := lru.New[string, *rate.Limiter](4096)
	return &PerUser{
		limiters: cache,
		limit:    limit,
		burst:    burst,
	}
}

// PerMinute builds a limiter allowing n calls per minute per user, with
// bursts up to n.
func PerMinute(n int) *PerUser {
	return NewPerUser(rate.Every(time.Minute/time.Duration(n)), n)
}

// Allow reports whether the user may proceed right now.
func (p *PerUser) Allow(userID string) bool {
	l, ok := p.limiters.Get(userID)
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters.Add(userID, l)
	}

	return l.Allow()
}
