package httpcache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinDelay is the minimum spacing between two requests to the same host.
const DefaultMinDelay = 1100 * time.Millisecond

var defaultLimiter = NewHostLimiter(DefaultMinDelay)

// SetMinDelay changes the per-host spacing used by FetchURL. Zero disables rate limiting.
func SetMinDelay(d time.Duration) {
	defaultLimiter.SetMinDelay(d)
}

// HostLimiter spaces requests per upstream host. Hosts never share a budget.
type HostLimiter struct {
	limiters sync.Map // host -> *rate.Limiter
	mu       sync.RWMutex
	minDelay time.Duration
}

// NewHostLimiter returns a limiter allowing one request per minDelay per host.
func NewHostLimiter(minDelay time.Duration) *HostLimiter {
	return &HostLimiter{minDelay: minDelay}
}

// SetMinDelay changes the spacing for all hosts, including ones already seen.
func (h *HostLimiter) SetMinDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.minDelay = d
	h.limiters.Range(func(_, v any) bool {
		if l, ok := v.(*rate.Limiter); ok {
			l.SetLimit(limitFor(d))
		}
		return true
	})
}

// Wait blocks until a request to u's host is allowed or ctx is done.
// A wait that cannot finish before ctx's deadline fails with context.DeadlineExceeded.
func (h *HostLimiter) Wait(ctx context.Context, u *url.URL, logger *slog.Logger) error {
	if u == nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Host)

	h.mu.RLock()
	delay := h.minDelay
	h.mu.RUnlock()
	if delay <= 0 {
		return nil
	}

	v, _ := h.limiters.LoadOrStore(host, rate.NewLimiter(limitFor(delay), 1))
	l, ok := v.(*rate.Limiter)
	if !ok {
		return nil
	}

	if logger != nil && l.Tokens() < 1 {
		logger.DebugContext(ctx, "rate limit pause", "host", host, "delay", delay)
	}
	if err := l.Wait(ctx); err != nil {
		// rate refuses up front, without wrapping ctx.Err(), when the wait would pass the deadline.
		if ctx.Err() == nil {
			return fmt.Errorf("rate limit wait for %s: %w", host, context.DeadlineExceeded)
		}
		return err
	}
	return nil
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
