package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"canceled", fmt.Errorf("wrap: %w", context.Canceled), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"timeout", timeoutErr{}, true},
		{"url timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, true},
		{"url wrapped dial", &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, true},
		{"url plain", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("bad")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRetryTransportRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	rt := &retryTransport{
		base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if calls.Add(1) < 3 {
				return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	rt := &retryTransport{
		base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("tls: bad certificate")
		}),
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestBuildHTTPClientWithoutRetries(t *testing.T) {
	c := BuildHTTPClient(ClientOptions{Timeout: 3 * time.Second})
	if c.Timeout != 3*time.Second {
		t.Fatalf("Timeout = %s", c.Timeout)
	}
	if _, ok := c.Transport.(*retryTransport); ok {
		t.Fatal("retries should be disabled")
	}
	if _, ok := BuildHTTPClient(ClientOptions{Retries: 2}).Transport.(*retryTransport); !ok {
		t.Fatal("retries should be enabled")
	}
}
