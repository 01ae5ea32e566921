// Package server applies the transport-level request budget: a fixed number
// of requests per minute per originating network address, enforced before any
// handler runs.
package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimitRejection is the fixed rejection text for over-budget requests.
// No retry hint is given.
const rateLimitRejection = "Слишком много запросов, попробуйте позже."

// ipLimiterPool hands out one token-bucket limiter per originating address.
type ipLimiterPool struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perMinute int
}

func newIPLimiterPool(perMinute int) *ipLimiterPool {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &ipLimiterPool{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

func (p *ipLimiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(float64(p.perMinute)/60.0), p.perMinute)
	p.limiters[key] = l
	return l
}

func (p *ipLimiterPool) allow(key string) bool {
	return p.get(key).Allow()
}

// rateLimitMiddleware rejects requests beyond the per-address budget with a
// 429 and the fixed rejection message before they reach any handler,
// including the WebSocket upgrade.
func rateLimitMiddleware(pool *ipLimiterPool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !pool.allow(host) {
				metricRejectedRequests.Inc()
				logger.Warn().Str("addr", host).Str("path", r.URL.Path).Msg("request budget exceeded")
				http.Error(w, rateLimitRejection, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
