package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aictl/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP facade",
		Long: `Serve a small HTTP API for local tooling: GET /api/search over the
image index, GET /api/health with per-service status, and Prometheus
metrics on GET /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.ServeAddr
			}

			var searcher server.Searcher
			store, err := a.openStore()
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s image index unavailable: %v\n", yellow("!"), err)
			} else {
				searcher = store
			}

			// Keep /api/health current: probe every backing service now
			// and on an interval for as long as we serve.
			probeCtx, stopProbes := context.WithCancel(cmd.Context())
			defer stopProbes()
			go func() {
				runProbes(probeCtx, a)
				ticker := time.NewTicker(probeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-probeCtx.Done():
						return
					case <-ticker.C:
						runProbes(probeCtx, a)
					}
				}
			}()

			srv := server.New(server.Config{
				Addr:     addr,
				Searcher: searcher,
				Health:   a.health,
				Logger:   a.logger,
				Debug:    a.cfg.Verbose,
			})

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Stop(shutdownCtx)
			}()

			fmt.Printf("%s Listening on http://%s\n", green("●"), addr)
			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: configured serve_addr)")
	return cmd
}
