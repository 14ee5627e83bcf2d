package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aictl/internal/lmstudio"
)

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and load models on the LLM server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.chatClient("")
			models, err := client.ListModelsDetailed(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Println(gray("no models available"))
				return nil
			}
			for _, m := range models {
				marker := gray("○")
				if m.Loaded() {
					marker = green("●")
				}
				fmt.Printf("%s %s", marker, bold(m.ID))
				if m.Quantization != "" {
					fmt.Printf(" %s", gray(m.Quantization))
				}
				if m.MaxContextLength > 0 {
					fmt.Printf(" %s", gray(fmt.Sprintf("ctx %d", m.MaxContextLength)))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "load <model>",
		Short: "Load a model into memory",
		Long: `Resolve the model by exact or substring match and ask the server to
load it, keeping it resident for the configured TTL. Loading an already
resident model is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			probe := a.chatClient("")
			info, err := probe.FindModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if info.Loaded() {
				fmt.Printf("%s %s is already loaded\n", green("✓"), bold(info.ID))
				return nil
			}

			fmt.Printf("%s Loading %s (ttl %ds)\n", blue("●"), bold(info.ID), a.cfg.ModelLoadTTL)
			client := a.chatClient(info.ID)
			if err := client.EnsureLoaded(cmd.Context(), a.cfg.ModelLoadTTL); err != nil {
				return err
			}
			fmt.Printf("%s %s loaded\n", green("✓"), bold(info.ID))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <model>",
		Short: "Show details for one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.chatClient("")
			info, err := client.FindModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printModelInfo(info)
			return nil
		},
	})

	return cmd
}

func printModelInfo(info *lmstudio.ModelInfo) {
	fmt.Printf("%s\n", bold(info.ID))
	rows := []struct{ label, value string }{
		{"type", info.Type},
		{"publisher", info.Publisher},
		{"arch", info.Arch},
		{"quantization", info.Quantization},
		{"state", info.State},
	}
	for _, row := range rows {
		if row.value != "" {
			fmt.Printf("  %-14s %s\n", gray(row.label), row.value)
		}
	}
	if info.MaxContextLength > 0 {
		fmt.Printf("  %-14s %d\n", gray("context"), info.MaxContextLength)
	}
}
