package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/entrole/internal/cache"
	"github.com/ppiankov/entrole/internal/extract"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/util"
	"github.com/ppiankov/entrole/internal/worker"
)

// ErrNerStatus is wrapped by errors for non-2xx NER responses
var ErrNerStatus = errors.New("NER service returned an error status")

// fetchSleepFunc waits out a retry backoff; overridable in tests
var fetchSleepFunc = worker.SleepContext

const baseBackoff = 500 * time.Millisecond

// StatusError is a non-2xx NER response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Is matches ErrNerStatus
func (e *StatusError) Is(target error) bool {
	return target == ErrNerStatus
}

// nerRequest is the body the NER service expects; every value is a string
type nerRequest struct {
	Filtered   string `json:"filtered"`
	OutType    string `json:"out_type"`
	SessionID  string `json:"wind.sessionId"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	WithWeight string `json:"with_weight"`
}

// NerFetcherOptions configures a NerFetcher
type NerFetcherOptions struct {
	URL          string
	Source       string
	SessionID    string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxAttempts  int

	HTTPClient *http.Client    // Defaults to a proxy-aware client with Timeout
	Limiter    *worker.Limiter // Optional per-host limiter
	Cache      cache.Cache     // Optional response cache
	CacheTTL   time.Duration   // 0 uses the cache's default
	Logger     *slog.Logger
}

// NerFetcher posts queries to the NER service
type NerFetcher struct {
	url          string
	source       string
	sessionID    string
	maxBodyBytes int64
	maxAttempts  int

	httpClient *http.Client
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewNerFetcher creates a fetcher
func NewNerFetcher(opts NerFetcherOptions) *NerFetcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = util.NewHTTPClient(opts.Timeout, "", "", "")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2_000_000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &NerFetcher{
		url:          opts.URL,
		source:       opts.Source,
		sessionID:    opts.SessionID,
		maxBodyBytes: opts.MaxBodyBytes,
		maxAttempts:  opts.MaxAttempts,
		httpClient:   opts.HTTPClient,
		limiter:      opts.Limiter,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		logger:       opts.Logger,
	}
}

// NewNerFetcherFromConfig wires a fetcher from the NER and HTTP sections
func NewNerFetcherFromConfig(cfg *model.Config, limiter *worker.Limiter, c cache.Cache, logger *slog.Logger) *NerFetcher {
	timeout := time.Duration(cfg.NER.Timeout) * time.Second
	return NewNerFetcher(NerFetcherOptions{
		URL:          cfg.NER.URL,
		Source:       cfg.NER.Source,
		SessionID:    cfg.NER.SessionID,
		Timeout:      timeout,
		MaxBodyBytes: cfg.NER.MaxBodyBytes,
		MaxAttempts:  cfg.NER.MaxAttempts,
		HTTPClient:   util.NewHTTPClient(timeout, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
		Limiter:      limiter,
		Cache:        c,
		Logger:       logger,
	})
}

// Fetch returns the raw NER response for query, from cache when possible.
// Only responses that decode are cached.
func (f *NerFetcher) Fetch(ctx context.Context, query string) ([]byte, error) {
	key := cache.NerKey(f.source, query)
	if body, ok := f.cache.Get(key); ok {
		f.logger.Debug("NER cache hit", "query", query)
		return body, nil
	}

	body, err := f.FetchWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}

	if _, err := extract.DecodePayload(body); err == nil {
		if err := f.cache.Set(key, body, f.cacheTTL); err != nil {
			f.logger.Warn("failed to cache NER response", "query", query, "error", err)
		}
	}
	return body, nil
}

// FetchWithRetry calls the service, retrying transport errors, 429 and 5xx
// with exponential backoff
func (f *NerFetcher) FetchWithRetry(ctx context.Context, query string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff << (attempt - 1)
			f.logger.Debug("retrying NER request", "query", query, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := fetchSleepFunc(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := f.fetchOnce(ctx, query)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryableFetchError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("NER request failed after %d attempts: %w", f.maxAttempts, lastErr)
}

func (f *NerFetcher) fetchOnce(ctx context.Context, query string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.url); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	payload, err := json.Marshal(nerRequest{
		Filtered:   "0",
		OutType:    "tuple",
		SessionID:  f.sessionID,
		Text:       query,
		Source:     f.source,
		WithWeight: "1",
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("read body: response exceeds %d bytes", f.maxBodyBytes)
	}

	return bytes.TrimSpace(body), nil
}

// isRetryableFetchError reports whether another attempt could succeed
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.HasPrefix(err.Error(), "fetch: ")
}
