package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter is a fixed-window per-IP request counter kept in Redis so the
// limit holds across server instances.
type RateLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	logger *logrus.Logger
}

func NewRateLimiter(client *redis.Client, max int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		max:    max,
		window: window,
		logger: logger,
	}
}

func rateLimitKey(ip string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", ip, windowStart)
}

// Allow counts one request for ip and reports whether it is within the limit
// together with the remaining allowance. Redis errors fail open.
func (l *RateLimiter) Allow(ctx context.Context, ip string) (bool, int, time.Time) {
	now := time.Now()
	windowStart := now.Truncate(l.window)
	reset := windowStart.Add(l.window)
	key := rateLimitKey(ip, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
		return true, l.max, reset
	}

	count := int(incr.Val())
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.max, remaining, reset
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, remaining, reset := l.Allow(r.Context(), ip)

		h := w.Header()
		h.Set("RateLimit-Limit", strconv.Itoa(l.max))
		h.Set("RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("RateLimit-Reset", strconv.Itoa(int(time.Until(reset).Seconds())))

		if !allowed {
			l.logger.WithField("ip", ip).Warn("Rate limit exceeded")
			h.Set("Retry-After", strconv.Itoa(int(time.Until(reset).Seconds())))
			writeError(w, apperr.New(apperr.KindRateLimited,
				fmt.Sprintf("Too many requests from this IP, please try again after %d minutes", int(l.window.Minutes()))))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
