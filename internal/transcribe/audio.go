package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	aierrors "aictl/internal/errors"
)

// PrepareAudio makes sure the input is a wav file the transcription server
// accepts. Non-wav input is extracted and resampled to 16 kHz mono via
// ffmpeg. The returned cleanup removes any temporary file and is always
// safe to call.
func PrepareAudio(ctx context.Context, executor Executor, ffmpegBin, inputPath string) (string, func(), error) {
	noop := func() {}

	if _, err := os.Stat(inputPath); err != nil {
		return "", noop, aierrors.NewPermanentError(err, fmt.Sprintf("Cannot read audio file %q.", inputPath))
	}

	if strings.EqualFold(filepath.Ext(inputPath), ".wav") {
		return inputPath, noop, nil
	}

	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}

	tmp, err := os.CreateTemp("", "aictl-audio-*.wav")
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmpPath) }

	_, err = executor.Run(ctx, ffmpegBin,
		"-y",
		"-i", inputPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-f", "wav",
		tmpPath,
	)
	if err != nil {
		cleanup()
		return "", noop, aierrors.NewPermanentError(err,
			fmt.Sprintf("ffmpeg could not convert %q to wav. Install ffmpeg or pass a wav file directly.", inputPath))
	}

	return tmpPath, cleanup, nil
}
