package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound requests per endpoint host. The NER service and
// any self-hosted model endpoint each get their own token bucket.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	disabled bool
}

// NewLimiter creates a per-host limiter. A rate <= 0 disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		disabled: requestsPerSecond <= 0,
	}
}

// Wait blocks until a request to endpoint is allowed
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	if l == nil || l.disabled {
		return nil
	}

	host, err := hostOf(endpoint)
	if err != nil {
		return err
	}
	return l.bucket(host).Wait(ctx)
}

// Allow reports whether a request to endpoint may proceed now
func (l *Limiter) Allow(endpoint string) bool {
	if l == nil || l.disabled {
		return true
	}

	host, err := hostOf(endpoint)
	if err != nil {
		return false
	}
	return l.bucket(host).Allow()
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[host]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[host]; ok {
		return b
	}
	b = rate.NewLimiter(l.rps, l.burst)
	l.buckets[host] = b
	return b
}

func hostOf(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("parse endpoint: no host in %q", endpoint)
	}
	return parsed.Host, nil
}
