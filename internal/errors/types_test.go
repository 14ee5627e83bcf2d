package errors

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
)

func TestIsTransientExplicitMarkersWin(t *testing.T) {
	transient := NewTransientError(errors.New("status 404: gone"), "")
	if !IsTransient(transient) {
		t.Fatalf("explicit transient error should be transient")
	}

	permanent := NewPermanentError(errors.New("connection refused"), "")
	if IsTransient(permanent) {
		t.Fatalf("explicit permanent error must not be transient")
	}
}

func TestIsTransientNetworkAndStatus(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp 127.0.0.1:1234: connection refused"), true},
		{errors.New("API error status 503: overloaded"), true},
		{errors.New("API error status 429: slow down"), true},
		{errors.New("API error status 404: no such model"), false},
		{syscall.ECONNRESET, true},
		{errors.New("command not exposed: remove_item"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestGetErrorTypeClassification(t *testing.T) {
	if got := GetErrorType(NewDegradedError(errors.New("x"), "msg", "fallback")); got != ErrorTypeDegraded {
		t.Fatalf("expected degraded, got %v", got)
	}
	if got := GetErrorType(errors.New("status 500: boom")); got != ErrorTypeTransient {
		t.Fatalf("expected transient, got %v", got)
	}
	if got := GetErrorType(errors.New("invalid workflow graph")); got != ErrorTypePermanent {
		t.Fatalf("expected permanent, got %v", got)
	}
}

func TestExtractHTTPStatusCode(t *testing.T) {
	cases := map[string]int{
		"API error status 429: limit": 429,
		"HTTP 502 from upstream":      502,
		"no digits here":              0,
		"port 1234 refused":           0,
	}
	for msg, want := range cases {
		if got := extractHTTPStatusCode(errors.New(msg)); got != want {
			t.Fatalf("extractHTTPStatusCode(%q) = %d, want %d", msg, got, want)
		}
	}
}

func TestFormatForUserNamesTheService(t *testing.T) {
	err := fmt.Errorf("post http://localhost:5000/v1/vision/detection: connection refused")
	msg := FormatForUser(err)
	if !strings.Contains(msg, "DeepStack") {
		t.Fatalf("expected DeepStack hint, got %q", msg)
	}

	err = fmt.Errorf("post http://localhost:1234/v1/chat/completions: connection refused")
	if msg := FormatForUser(err); !strings.Contains(msg, "LM Studio") {
		t.Fatalf("expected LM Studio hint, got %q", msg)
	}

	err = fmt.Errorf("ws://localhost:8188/ws: connection refused")
	if msg := FormatForUser(err); !strings.Contains(msg, "ComfyUI") {
		t.Fatalf("expected ComfyUI hint, got %q", msg)
	}
}

func TestFormatForUserPrefersCustomMessage(t *testing.T) {
	err := NewPermanentError(errors.New("raw"), "Model 'x' is not installed.")
	if got := FormatForUser(err); got != "Model 'x' is not installed." {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := NewTransientError(cause, "friendly")
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find cause through Unwrap")
	}
}
