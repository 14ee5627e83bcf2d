package id

import (
	"strings"

	"github.com/google/uuid"
)

// NewRequestID generates a short identifier used to correlate the log lines
// of a single service request.
func NewRequestID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "req-" + raw[:12]
}

// NewPromptID generates a client-side identifier for queued generation jobs.
func NewPromptID() string {
	return uuid.NewString()
}
