package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/entrole/internal/cache"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/ppiankov/entrole/internal/worker"
)

const okPayload = `{"data": [{"entity": "恒生电子", "nerType": "enterprise", "type": "stockCN", "id": "600570.SH"}]}`

func noSleep(t *testing.T) {
	t.Helper()
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { fetchSleepFunc = origSleep })
}

func newTestFetcher(serverURL string, attempts int) *NerFetcher {
	return NewNerFetcher(NerFetcherOptions{
		URL:          serverURL,
		Source:       "wind.search",
		SessionID:    "11",
		Timeout:      5 * time.Second,
		MaxBodyBytes: 1 << 20,
		MaxAttempts:  attempts,
	})
}

func TestFetch_RequestContract(t *testing.T) {
	var got map[string]any
	var contentType, method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = fmt.Fprint(w, "  "+okPayload+"\n")
	}))
	defer server.Close()

	body, err := newTestFetcher(server.URL, 1).Fetch(context.Background(), "最近5年恒生电子年报中关于战略的描述")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(body) != okPayload {
		t.Errorf("Expected trimmed payload, got %q", body)
	}

	if method != http.MethodPost || contentType != "application/json" {
		t.Errorf("Expected JSON POST, got %s %s", method, contentType)
	}
	want := map[string]any{
		"filtered":       "0",
		"out_type":       "tuple",
		"wind.sessionId": "11",
		"text":           "最近5年恒生电子年报中关于战略的描述",
		"source":         "wind.search",
		"with_weight":    "1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Expected %s=%v, got %v", k, v, got[k])
		}
	}
	if len(got) != len(want) {
		t.Errorf("Unexpected request fields: %v", got)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, okPayload)
	}))
	defer server.Close()

	noSleep(t)

	body, err := newTestFetcher(server.URL, 3).FetchWithRetry(context.Background(), "q")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if string(body) != okPayload {
		t.Errorf("Unexpected body: %s", body)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_BackoffDoubles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var delays []time.Duration
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	defer func() { fetchSleepFunc = origSleep }()

	_, _ = newTestFetcher(server.URL, 4).FetchWithRetry(context.Background(), "q")

	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("Expected delays %v, got %v", want, delays)
	}
}

func TestFetchWithRetry_PermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	noSleep(t)

	_, err := newTestFetcher(server.URL, 3).FetchWithRetry(context.Background(), "q")
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	// 404 is not retryable, so should fail immediately
	if got := err.Error(); got != "unexpected status: 404 404 Not Found" {
		t.Errorf("Unexpected error: %s", got)
	}
	if !errors.Is(err, ErrNerStatus) {
		t.Error("Expected error to match ErrNerStatus")
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_AllRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	noSleep(t)

	_, err := newTestFetcher(server.URL, 3).FetchWithRetry(context.Background(), "q")
	if err == nil {
		t.Fatal("Expected error after all retries exhausted")
	}
	if !errors.Is(err, ErrNerStatus) {
		t.Errorf("Expected wrapped ErrNerStatus, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_429Retried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, okPayload)
	}))
	defer server.Close()

	noSleep(t)

	_, err := newTestFetcher(server.URL, 3).FetchWithRetry(context.Background(), "q")
	if err != nil {
		t.Fatalf("Expected success after 429 retry, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_StopsWhenCancelled(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	defer func() { fetchSleepFunc = origSleep }()

	_, err := newTestFetcher(server.URL, 5).FetchWithRetry(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_BackoffInterruptedByCancel(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestFetcher(server.URL, 5).FetchWithRetry(ctx, "q")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed >= baseBackoff {
		t.Errorf("Expected the backoff to stop at the deadline, took %v", elapsed)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 64))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, 1)
	f.maxBodyBytes = 16

	_, err := f.Fetch(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "exceeds 16 bytes") {
		t.Errorf("Expected body limit error, got %v", err)
	}
}

func TestFetch_CachesDecodableResponses(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if strings.Contains(readText(r), "broken") {
			_, _ = fmt.Fprint(w, `{"data": [`)
			return
		}
		_, _ = fmt.Fprint(w, okPayload)
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	f := NewNerFetcher(NerFetcherOptions{URL: server.URL, Source: "wind.search", Cache: c})

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), "恒生电子"); err != nil {
			t.Fatal(err)
		}
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 upstream call for repeated query, got %d", attempts.Load())
	}

	for i := 0; i < 2; i++ {
		_, _ = f.Fetch(context.Background(), "broken")
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected undecodable responses to bypass the cache, got %d calls", attempts.Load())
	}
}

func TestFetch_UsesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, okPayload)
	}))
	defer server.Close()

	limiter := worker.NewLimiter(0.001, 1)
	f := NewNerFetcher(NerFetcherOptions{URL: server.URL, Limiter: limiter})

	if _, err := f.Fetch(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if limiter.Allow(server.URL) {
		t.Error("Expected the fetch to have consumed the only token")
	}
}

func TestNewNerFetcherFromConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	f := NewNerFetcherFromConfig(cfg, nil, cache.Noop{}, nil)

	if f.url != cfg.NER.URL || f.source != "wind.search" || f.sessionID != "11" {
		t.Errorf("Unexpected fetcher settings: %+v", f)
	}
	if f.maxAttempts != 3 || f.maxBodyBytes != 2_000_000 {
		t.Errorf("Unexpected limits: attempts=%d bytes=%d", f.maxAttempts, f.maxBodyBytes)
	}
	if f.httpClient.Timeout != 60*time.Second {
		t.Errorf("Expected 60s timeout, got %v", f.httpClient.Timeout)
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"503", &StatusError{Code: 503, Status: "503 Service Unavailable"}, true},
		{"500", &StatusError{Code: 500, Status: "500 Internal Server Error"}, true},
		{"502", &StatusError{Code: 502, Status: "502 Bad Gateway"}, true},
		{"429", &StatusError{Code: 429, Status: "429 Too Many Requests"}, true},
		{"404", &StatusError{Code: 404, Status: "404 Not Found"}, false},
		{"403", &StatusError{Code: 403, Status: "403 Forbidden"}, false},
		{"401", &StatusError{Code: 401, Status: "401 Unauthorized"}, false},
		{"transport", fmt.Errorf("fetch: %w", &url.Error{Op: "Post", URL: "http://ner", Err: errors.New("connection refused")}), true},
		{"fetch prefix", errors.New("fetch: connection reset by peer"), true},
		{"create request", errors.New("create request: invalid URL"), false},
		{"read body", errors.New("read body: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryableFetchError(tt.err)
			if got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestIsRetryableFetchError_Nil(t *testing.T) {
	if isRetryableFetchError(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func readText(r *http.Request) string {
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.Text
}
