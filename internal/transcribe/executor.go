package transcribe

import (
	"context"
	"fmt"
	"os/exec"
)

// Executor runs external commands. It exists so tests can substitute a
// fake for the ffmpeg binary.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecExecutor shells out to the real binary.
type ExecExecutor struct{}

// Run executes the command and returns combined output.
func (ExecExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", name, err, string(output))
	}
	return output, nil
}
