package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	aierrors "aictl/internal/errors"
)

func TestGuardedClientOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, breaker := NewWithCircuitBreakerConfig(time.Second, nil, "lmstudio", aierrors.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
	}
	if breaker.State() != aierrors.StateOpen {
		t.Fatalf("expected open breaker after repeated 500s, got %v", breaker.State())
	}

	_, err := client.Get(server.URL)
	if err == nil {
		t.Fatal("expected open circuit to reject request")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("open circuit should not reach server, got %d hits", got)
	}
}

func TestGuardedClientSharesBreakerWithCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, breaker := NewWithCircuitBreaker(time.Second, nil, "deepstack")
	for i := 0; i < 5; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
	}
	if breaker.State() != aierrors.StateClosed {
		t.Fatalf("healthy service should keep breaker closed, got %v", breaker.State())
	}
	if breaker.Metrics().Name != "deepstack" {
		t.Fatalf("breaker should carry the service name, got %q", breaker.Metrics().Name)
	}
}

func TestGuardedClientIgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, breaker := NewWithCircuitBreakerConfig(time.Second, nil, "comfyui", aierrors.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if breaker.State() != aierrors.StateClosed {
		t.Fatalf("a 404 means the service answered, got %v", breaker.State())
	}
}

func TestProxySkippedForLoopback(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:9")

	transport := Transport(nil)
	req, _ := http.NewRequest(http.MethodGet, "http://localhost:1234/v1/models", nil)
	proxyURL, err := transport.Proxy(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxyURL != nil {
		t.Fatalf("loopback target must bypass proxy, got %v", proxyURL)
	}
}
