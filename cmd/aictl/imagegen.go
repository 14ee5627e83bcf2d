package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/spf13/cobra"

	"aictl/internal/comfyui"
)

func newImagegenCommand(a *app) *cobra.Command {
	var (
		negative   string
		checkpoint string
		width      int
		height     int
		steps      int
		cfgScale   float64
		seed       int64
		sampler    string
		batch      int
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "imagegen <prompt...>",
		Short: "Generate images with the local ComfyUI server",
		Long: `Queue a text-to-image workflow on the ComfyUI server, follow sampling
progress over its websocket, and download the results.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkpoint == "" {
				checkpoint = a.cfg.ImageModel
			}
			if seed == 0 {
				seed = rand.Int63()
			}

			client := a.comfyClient()
			params := comfyui.GenerationParams{
				Prompt:         strings.Join(args, " "),
				NegativePrompt: negative,
				Checkpoint:     checkpoint,
				Width:          width,
				Height:         height,
				Steps:          steps,
				CFG:            cfgScale,
				Seed:           seed,
				Sampler:        sampler,
				BatchSize:      batch,
			}

			fmt.Printf("%s Generating with %s\n", blue("●"), bold(checkpoint))
			images, err := client.Generate(cmd.Context(), params, func(value, max int) {
				fmt.Printf("\r%s step %d/%d", gray("…"), value, max)
			})
			fmt.Println()
			if err != nil {
				return err
			}

			for _, img := range images {
				path, err := client.Download(cmd.Context(), img, outDir)
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", green("✓"), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&negative, "negative", "n", "", "Negative prompt")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint model (default: configured image model)")
	cmd.Flags().IntVar(&width, "width", 0, "Image width")
	cmd.Flags().IntVar(&height, "height", 0, "Image height")
	cmd.Flags().IntVar(&steps, "steps", 0, "Sampling steps")
	cmd.Flags().Float64Var(&cfgScale, "cfg", 0, "Classifier-free guidance scale")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Sampling seed (0 = random)")
	cmd.Flags().StringVar(&sampler, "sampler", "", "Sampler name")
	cmd.Flags().IntVar(&batch, "batch", 1, "Batch size")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}
