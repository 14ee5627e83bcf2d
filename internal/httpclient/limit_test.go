package httpclient

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadAllWithLimitPassesCompletionPayload(t *testing.T) {
	payload := []byte(`{"choices":[{"message":{"content":"hello"}}]}`)
	got, err := ReadAllWithLimit(bytes.NewReader(payload), 32<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestReadAllWithLimitAcceptsExactLimit(t *testing.T) {
	payload := []byte("12345678")
	got, err := ReadAllWithLimit(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("body at exactly the cap should pass: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(got))
	}
}

func TestReadAllWithLimitRejectsRunawayBody(t *testing.T) {
	runaway := strings.NewReader(strings.Repeat("token ", 1024))
	_, err := ReadAllWithLimit(runaway, 64)
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	if !IsResponseTooLarge(err) {
		t.Fatalf("expected ResponseTooLargeError, got %v", err)
	}
	var limitErr ResponseTooLargeError
	if !errors.As(err, &limitErr) || limitErr.Limit != 64 {
		t.Fatalf("error should carry the limit, got %v", err)
	}
}

func TestReadAllWithLimitZeroDisablesCap(t *testing.T) {
	payload := []byte("unbounded")
	got, err := ReadAllWithLimit(bytes.NewReader(payload), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}
