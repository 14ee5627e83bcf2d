package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	aierrors "aictl/internal/errors"
	"aictl/internal/logging"
)

// guardedTransport gates every round trip on a circuit breaker and reports
// the outcome back to it. Once the breaker opens, requests to a dead local
// service fail fast instead of burning the full client timeout each time.
type guardedTransport struct {
	next    http.RoundTripper
	breaker *aierrors.CircuitBreaker
}

// NewWithCircuitBreaker builds an HTTP client for the named service, guarded
// by a breaker with default settings. The breaker is returned so callers can
// surface its state, for example in health reporting.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, service string) (*http.Client, *aierrors.CircuitBreaker) {
	return NewWithCircuitBreakerConfig(timeout, logger, service, aierrors.DefaultCircuitBreakerConfig())
}

// NewWithCircuitBreakerConfig is NewWithCircuitBreaker with explicit breaker
// settings.
func NewWithCircuitBreakerConfig(timeout time.Duration, logger logging.Logger, service string, config aierrors.CircuitBreakerConfig) (*http.Client, *aierrors.CircuitBreaker) {
	if service == "" {
		service = "http-client"
	}
	breaker := aierrors.NewCircuitBreaker(service, config)
	client := New(timeout, logger)
	client.Transport = GuardTransport(client.Transport, breaker)
	return client, breaker
}

// GuardTransport wraps a transport so every request passes through the given
// breaker.
func GuardTransport(next http.RoundTripper, breaker *aierrors.CircuitBreaker) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &guardedTransport{next: next, breaker: breaker}
}

func (g *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := g.next.RoundTrip(req)
	switch {
	case err == nil:
		g.breaker.Mark(failureForStatus(resp.StatusCode))
		return resp, nil
	case errors.Is(err, context.Canceled):
		// The caller gave up. That says nothing about the service.
		g.breaker.Mark(nil)
		return nil, err
	default:
		g.breaker.Mark(err)
		return nil, err
	}
}

// failureForStatus maps a response status to a breaker outcome. Server errors
// and overload responses count against the service; everything else, 4xx
// included, means the service answered.
func failureForStatus(status int) error {
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return fmt.Errorf("http status %d", status)
	}
	return nil
}
