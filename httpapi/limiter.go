package httpapi

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ipLimiter keeps one token bucket per client address. Buckets idle for
// longer than ttl are evicted.
type ipLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
}

func newIPLimiter(perSecond float64, burst int, ttl time.Duration) *ipLimiter {
	return &ipLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: gocache.New(ttl, ttl),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	return l.bucket(ip).Allow()
}

func (l *ipLimiter) bucket(ip string) *rate.Limiter {
	if v, ok := l.buckets.Get(ip); ok {
		lim := v.(*rate.Limiter)
		l.buckets.SetDefault(ip, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(ip, lim, gocache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same address.
		if v, ok := l.buckets.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}
