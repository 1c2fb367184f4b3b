package util

import (
	"net/http"
	"testing"
	"time"
)

func TestNewProxyFunc_Explicit(t *testing.T) {
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("NO_PROXY", "")

	proxy := NewProxyFunc("http://proxy.local:3128", "http://secure-proxy.local:3129", "ner.internal")

	tests := []struct {
		target   string
		expected string
	}{
		{"http://llm.example.com/v1", "http://proxy.local:3128"},
		{"https://llm.example.com/v1", "http://secure-proxy.local:3129"},
		{"http://ner.internal:30803/ner_pred", ""},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, tt.target, nil)
		got, err := proxy(req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.target, err)
		}
		if tt.expected == "" {
			if got != nil {
				t.Errorf("%s: expected no proxy, got %v", tt.target, got)
			}
			continue
		}
		if got == nil || got.String() != tt.expected {
			t.Errorf("%s: expected %s, got %v", tt.target, tt.expected, got)
		}
	}
}

func TestNewProxyFunc_Environment(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://env-proxy.local:8080")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("NO_PROXY", "")

	proxy := NewProxyFunc("", "", "")
	req, _ := http.NewRequest(http.MethodPost, "http://llm.example.com/v1/chat/completions", nil)

	got, err := proxy(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Host != "env-proxy.local:8080" {
		t.Errorf("expected env proxy, got %v", got)
	}
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(5*time.Second, "", "", "")
	if client.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", client.Timeout)
	}
	if _, ok := client.Transport.(*http.Transport); !ok {
		t.Errorf("expected *http.Transport, got %T", client.Transport)
	}
}
