// Package ratelimit throttles login and workspace-start requests per
// source IP using golang.org/x/time/rate token buckets, the same limiter
// type the teacher uses for its session search indexing throttle
// (internal/session/global_search.go).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes a single bucket's shape: max burst of events allowed
// per window.
type Config struct {
	Max    int
	Window time.Duration
}

// PerIP hands out one token bucket per source IP, all sharing Config.
// Buckets are created lazily and never evicted: the broker process
// lifetime bounds the map's growth in practice.
type PerIP struct {
	cfg      Config
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPerIP builds a PerIP limiter from cfg.
func NewPerIP(cfg Config) *PerIP {
	return &PerIP{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request from ip is within the configured rate,
// consuming a token if so.
func (p *PerIP) Allow(ip string) bool {
	return p.limiterFor(ip).Allow()
}

func (p *PerIP) limiterFor(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[ip]
	if !ok {
		burst := p.cfg.Max
		if burst < 1 {
			burst = 1
		}
		every := p.cfg.Window / time.Duration(burst)
		lim = rate.NewLimiter(rate.Every(every), p.cfg.Max)
		p.limiters[ip] = lim
	}
	return lim
}
