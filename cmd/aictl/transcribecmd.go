package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aictl/internal/transcribe"
)

func newTranscribeCommand(a *app) *cobra.Command {
	var (
		format   string
		language string
		prompt   string
		output   string
	)

	cmd := &cobra.Command{
		Use:     "transcribe <audio-or-video-file>",
		Aliases: []string{"stt"},
		Short:   "Transcribe an audio or video file",
		Long: `Transcribe a media file with the local Whisper-compatible endpoint.
Non-wav input is first extracted to 16 kHz mono wav via ffmpeg.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			switch format {
			case "text", "srt", "json":
			default:
				return fmt.Errorf("unknown format %q (want text, srt or json)", format)
			}

			audioPath, cleanup, err := transcribe.PrepareAudio(
				cmd.Context(), transcribe.ExecExecutor{}, a.cfg.FFmpegBin, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintf(os.Stderr, "%s Transcribing with %s\n", blue("●"), bold(a.cfg.WhisperModel))
			result, err := a.transcribeClient().Transcribe(cmd.Context(), transcribe.Request{
				AudioPath: audioPath,
				Language:  language,
				Prompt:    prompt,
			})
			if err != nil {
				return err
			}

			var rendered string
			switch format {
			case "srt":
				rendered = result.SRT()
			case "json":
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				rendered = string(data) + "\n"
			default:
				rendered = strings.TrimSpace(result.Text) + "\n"
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "%s wrote %s\n", green("✓"), output)
				return nil
			}
			fmt.Print(rendered)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, srt, json")
	cmd.Flags().StringVarP(&language, "language", "l", "", "ISO 639-1 language hint (empty = auto)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Context prompt to steer the transcription")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
