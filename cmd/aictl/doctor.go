package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"aictl/internal/comfyui"
	"aictl/internal/deepstack"
	aierrors "aictl/internal/errors"
	"aictl/internal/lmstudio"
)

// probeInterval paces the background health probes under serve.
const probeInterval = 30 * time.Second

type probeResult struct {
	service  string
	endpoint string
	required bool
	latency  time.Duration
	err      error
}

func newDoctorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the backing services are reachable",
		Long: `Probe every configured service and report reachability and latency.
Exits non-zero when the LLM server is down, since most commands need it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := runProbes(cmd.Context(), a)

			failedRequired := false
			for _, r := range results {
				if r.err == nil {
					fmt.Printf("%s %-12s %s %s\n", green("✓"), r.service,
						gray(r.endpoint), gray(r.latency.Round(time.Millisecond).String()))
					continue
				}
				marker := yellow("!")
				if r.required {
					marker = red("✗")
					failedRequired = true
				}
				fmt.Printf("%s %-12s %s\n", marker, r.service, gray(r.endpoint))
				fmt.Printf("    %s\n", aierrors.FormatForUser(r.err))
			}

			if path, err := exec.LookPath(ffmpegBin(a)); err == nil {
				fmt.Printf("%s %-12s %s\n", green("✓"), "ffmpeg", gray(path))
			} else {
				fmt.Printf("%s %-12s %s\n", yellow("!"), "ffmpeg",
					gray("not found; transcribe only accepts wav input"))
			}

			if failedRequired {
				return fmt.Errorf("required services are unavailable")
			}
			fmt.Printf("\n%s all required services are up\n", green("✓"))
			return nil
		},
	}
}

func runProbes(ctx context.Context, a *app) []probeResult {
	probes := []struct {
		service  string
		endpoint string
		required bool
		probe    func(context.Context) error
	}{
		{lmstudio.ServiceName, a.cfg.LMStudioBaseURL, true, func(ctx context.Context) error {
			return a.chatClient("").Probe(ctx)
		}},
		{deepstack.ServiceName, a.cfg.DeepStackURL, false, func(ctx context.Context) error {
			return a.deepstackClient().Probe(ctx)
		}},
		{comfyui.ServiceName, a.cfg.ComfyUIURL, false, func(ctx context.Context) error {
			return a.comfyClient().Probe(ctx)
		}},
	}

	results := make([]probeResult, 0, len(probes))
	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		err := p.probe(probeCtx)
		cancel()

		latency := time.Since(start)
		if err != nil {
			a.health.RecordError(p.service, err)
		} else {
			a.health.RecordLatency(p.service, latency)
		}
		results = append(results, probeResult{
			service:  p.service,
			endpoint: p.endpoint,
			required: p.required,
			latency:  latency,
			err:      err,
		})
	}
	return results
}

func ffmpegBin(a *app) string {
	if a.cfg.FFmpegBin != "" {
		return a.cfg.FFmpegBin
	}
	return "ffmpeg"
}
