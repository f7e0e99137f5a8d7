// Package ratelimit implements a fixed-window limiter over cache counters.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tomlord1122/takeout/internal/cache"
	applog "github.com/Tomlord1122/takeout/internal/logger"
)

type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	store  cache.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func New(store cache.Client, prefix string, max int, window time.Duration) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{store: store, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

// Allow counts one hit for key in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.now().UTC().Truncate(l.window)
	k := fmt.Sprintf("%s:%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	hits, ttl, err := l.store.Incr(ctx, k, l.window)
	if err != nil {
		return Result{}, err
	}
	res := Result{Allowed: hits <= l.max, Remaining: max(l.max-hits, 0)}
	if !res.Allowed {
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
// Limiter errors fail open.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + ":" + r.URL.Path
		res, err := l.Allow(r.Context(), key)
		if err != nil {
			applog.From(r.Context()).Warn("rate limiter unavailable", applog.Err(err))
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			secs := int(math.Ceil(res.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
