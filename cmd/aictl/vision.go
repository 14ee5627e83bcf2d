package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aictl/internal/deepstack"
)

func newObjectsCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "objects <image>...",
		Short: "Detect objects in images via DeepStack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.deepstackClient()
			for _, image := range args {
				preds, err := client.DetectObjects(cmd.Context(), image)
				if err != nil {
					return err
				}
				printPredictions(image, preds, asJSON)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func newScenesCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scenes <image>...",
		Short: "Classify image scenes via DeepStack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.deepstackClient()
			for _, image := range args {
				scene, err := client.ClassifyScene(cmd.Context(), image)
				if err != nil {
					return err
				}
				if asJSON {
					_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
						"image": image, "label": scene.Label, "confidence": scene.Confidence,
					})
					continue
				}
				fmt.Printf("%s %s %s\n", bold(image), scene.Label,
					gray(fmt.Sprintf("(%.2f)", scene.Confidence)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func newFacesCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "faces",
		Short: "DeepStack face detection and recognition",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "JSON output")

	cmd.AddCommand(&cobra.Command{
		Use:   "detect <image>...",
		Short: "Detect faces in images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.deepstackClient()
			for _, image := range args {
				preds, err := client.DetectFaces(cmd.Context(), image)
				if err != nil {
					return err
				}
				printPredictions(image, preds, asJSON)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "recognize <image>...",
		Short: "Recognize registered faces in images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.deepstackClient()
			for _, image := range args {
				preds, err := client.RecognizeFaces(cmd.Context(), image)
				if err != nil {
					return err
				}
				if asJSON {
					_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"image": image, "faces": preds})
					continue
				}
				fmt.Printf("%s\n", bold(image))
				if len(preds) == 0 {
					fmt.Printf("  %s\n", gray("no known faces"))
				}
				for _, p := range preds {
					fmt.Printf("  %s %s\n", p.UserID, gray(fmt.Sprintf("(%.2f)", p.Confidence)))
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "register <identity> <image>...",
		Short: "Register a face under an identity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.deepstackClient()
			identity := args[0]
			for _, image := range args[1:] {
				if err := client.RegisterFace(cmd.Context(), identity, image); err != nil {
					return err
				}
				fmt.Printf("%s registered %s from %s\n", green("✓"), bold(identity), image)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			identities, err := a.deepstackClient().ListFaces(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(identities)
			}
			if len(identities) == 0 {
				fmt.Println(gray("no registered faces"))
				return nil
			}
			for _, identity := range identities {
				fmt.Println(identity)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <identity>",
		Short: "Delete a registered identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.deepstackClient().DeleteFace(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s deleted %s\n", green("✓"), bold(args[0]))
			return nil
		},
	})

	return cmd
}

func printPredictions(image string, preds []deepstack.Prediction, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"image": image, "predictions": preds})
		return
	}
	fmt.Printf("%s\n", bold(image))
	if len(preds) == 0 {
		fmt.Printf("  %s\n", gray("nothing above the confidence threshold"))
		return
	}
	for _, p := range preds {
		label := p.Label
		if label == "" {
			label = "face"
		}
		fmt.Printf("  %-16s %s %s\n", label,
			gray(fmt.Sprintf("(%.2f)", p.Confidence)),
			gray(fmt.Sprintf("[%d,%d %dx%d]", p.XMin, p.YMin, p.XMax-p.XMin, p.YMax-p.YMin)))
	}
}
