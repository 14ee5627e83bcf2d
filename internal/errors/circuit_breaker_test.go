package errors

import (
	"errors"
	"testing"
	"time"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("lmstudio", testBreakerConfig())

	cb.Mark(errors.New("boom"))
	if cb.State() != StateClosed {
		t.Fatalf("one failure should keep circuit closed")
	}
	cb.Mark(errors.New("boom"))
	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %v", cb.State())
	}

	if err := cb.Allow(); err == nil {
		t.Fatalf("open circuit must reject requests")
	} else if !IsDegraded(err) {
		t.Fatalf("rejection should be a degraded error, got %v", err)
	}
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("deepstack", testBreakerConfig())
	cb.Mark(errors.New("boom"))
	cb.Mark(errors.New("boom"))

	time.Sleep(15 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("expected half-open probe to be allowed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.State())
	}

	cb.Mark(nil)
	cb.Mark(nil)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successes, got %v", cb.State())
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker("comfyui", testBreakerConfig())
	cb.Mark(errors.New("boom"))
	cb.Mark(errors.New("boom"))

	time.Sleep(15 * time.Millisecond)
	_ = cb.Allow()

	cb.Mark(errors.New("still down"))
	if cb.State() != StateOpen {
		t.Fatalf("half-open failure should reopen, got %v", cb.State())
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("whisper", testBreakerConfig())
	cb.Mark(errors.New("boom"))
	cb.Mark(errors.New("boom"))

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after reset")
	}
	metrics := cb.Metrics()
	if metrics.FailureCount != 0 {
		t.Fatalf("expected zeroed failure count, got %d", metrics.FailureCount)
	}
}
