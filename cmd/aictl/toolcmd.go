package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aictl/internal/comfyui"
	"aictl/internal/imageindex"
	"aictl/internal/lmstudio"
	"aictl/internal/toolcall"
	"aictl/internal/translate"
)

// buildToolRegistry exposes the commands the model may call. Everything
// else is rejected by the dispatcher.
func buildToolRegistry(a *app) (*toolcall.Registry, error) {
	registry := toolcall.NewRegistry()

	err := registry.Expose(toolcall.ExposedCommand{
		Name:        "current_time",
		Description: "Get the current local date and time.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Format(time.RFC1123), nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = registry.Expose(toolcall.ExposedCommand{
		Name:        "search_images",
		Description: "Semantic search over the local image index. Returns matching file paths.",
		Parameters: []toolcall.Param{
			{Name: "query", Description: "What to look for", Type: toolcall.TypeString, Required: true},
			{Name: "person", Description: "Only images containing this person", Type: toolcall.TypeString},
			{Name: "scene", Description: "Only images with this scene label", Type: toolcall.TypeString},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			store, err := a.openStore()
			if err != nil {
				return "", err
			}
			query, _ := args["query"].(string)
			person, _ := args["person"].(string)
			scene, _ := args["scene"].(string)
			matches, err := store.Search(ctx, query, imageindex.SearchOptions{
				TopK:   5,
				Person: person,
				Scene:  scene,
			})
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "no matching images", nil
			}
			var b strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&b, "%s (%.2f) %s\n", m.Path, m.Similarity, m.Summary)
			}
			return b.String(), nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = registry.Expose(toolcall.ExposedCommand{
		Name:        "translate_text",
		Description: "Translate text to another language.",
		Parameters: []toolcall.Param{
			{Name: "text", Description: "Text to translate", Type: toolcall.TypeString, Required: true},
			{Name: "language", Description: "Target language name, e.g. Dutch", Type: toolcall.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			language, _ := args["language"].(string)
			translator := translate.New(a.chatClient(""), a.logger)
			return translator.Translate(ctx, text, language, "")
		},
	})
	if err != nil {
		return nil, err
	}

	err = registry.Expose(toolcall.ExposedCommand{
		Name:        "generate_image",
		Description: "Generate an image with the local diffusion server and save it to the current directory.",
		Confirm:     true,
		Parameters: []toolcall.Param{
			{Name: "prompt", Description: "Image description", Type: toolcall.TypeString, Required: true},
			{Name: "negative_prompt", Description: "What to avoid", Type: toolcall.TypeString},
		},
		Forced: map[string]any{
			"checkpoint": a.cfg.ImageModel,
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			prompt, _ := args["prompt"].(string)
			negative, _ := args["negative_prompt"].(string)
			checkpoint, _ := args["checkpoint"].(string)

			client := a.comfyClient()
			images, err := client.Generate(ctx, comfyui.GenerationParams{
				Prompt:         prompt,
				NegativePrompt: negative,
				Checkpoint:     checkpoint,
			}, nil)
			if err != nil {
				return "", err
			}
			var paths []string
			for _, img := range images {
				path, err := client.Download(ctx, img, ".")
				if err != nil {
					return strings.Join(paths, "\n"), err
				}
				paths = append(paths, path)
			}
			return "saved: " + strings.Join(paths, ", "), nil
		},
	})
	if err != nil {
		return nil, err
	}

	return registry, nil
}

func newToolsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke exposed tool-call commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List commands exposed to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildToolRegistry(a)
			if err != nil {
				return err
			}
			for _, def := range registry.FunctionDefinitions() {
				fmt.Printf("%s\n  %s\n", bold(def.Name), gray(def.Description))
				if schema, err := json.MarshalIndent(def.Parameters, "  ", "  "); err == nil {
					fmt.Printf("  %s\n", gray(string(schema)))
				}
			}
			return nil
		},
	})

	invokeCmd := &cobra.Command{
		Use:   "invoke <command> [json-arguments]",
		Short: "Dispatch a tool call by hand",
		Long: `Dispatch a tool call exactly as if the model had proposed it, including
argument filtering, forced values and confirmation. Prints the full
invocation result as JSON.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildToolRegistry(a)
			if err != nil {
				return err
			}

			call := lmstudio.ToolCall{Name: args[0]}
			if len(args) == 2 {
				call.RawArguments = args[1]
			}

			dispatcher := toolcall.NewDispatcher(registry, promptConfirm, a.logger)
			result := dispatcher.Dispatch(cmd.Context(), call)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if !result.Executed() {
				return fmt.Errorf("%s", result.Reason)
			}
			return nil
		},
	}
	cmd.AddCommand(invokeCmd)

	return cmd
}
