package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/pkoukk/tiktoken-go"
	"github.com/spf13/cobra"

	"aictl/internal/imageindex"
	"aictl/internal/lmstudio"
	"aictl/internal/toolcall"
)

const maxToolIterations = 8

type llmOptions struct {
	interactive bool
	withTools   bool
	system      string
	images      []string
	noMarkdown  bool
}

func newLLMCommand(a *app) *cobra.Command {
	opts := &llmOptions{}

	cmd := &cobra.Command{
		Use:     "llm [prompt...]",
		Aliases: []string{"qlms"},
		Short:   "Query the local LLM server",
		Long: `Send a prompt to the local LLM server and stream the answer.

With --with-tools the model may call the exposed local commands; every
proposed call is filtered against the allow list before execution.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return runInteractive(a, opts)
			}
			prompt := strings.Join(args, " ")
			if strings.TrimSpace(prompt) == "" {
				prompt = readStdin()
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("no prompt given; pass it as arguments or on stdin")
			}
			return runOneShot(cmd.Context(), a, opts, prompt)
		},
	}

	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Interactive chat session")
	cmd.Flags().BoolVar(&opts.withTools, "with-tools", false, "Expose local commands as tools")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt")
	cmd.Flags().StringArrayVar(&opts.images, "image", nil, "Attach an image file (repeatable)")
	cmd.Flags().BoolVar(&opts.noMarkdown, "no-markdown", false, "Disable markdown rendering")

	return cmd
}

// readStdin drains stdin when it is a pipe.
func readStdin() string {
	if isTTY() {
		return ""
	}
	var b strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, err := os.Stdin.Read(buf)
		b.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return b.String()
}

func runOneShot(ctx context.Context, a *app, opts *llmOptions, prompt string) error {
	client := a.chatClient("")

	messages, err := buildMessages(opts, prompt)
	if err != nil {
		return err
	}

	if opts.withTools {
		return runWithTools(ctx, a, client, messages)
	}

	resp, err := streamAnswer(ctx, a, client, messages)
	if err != nil {
		return err
	}
	printUsage(a, resp, prompt)
	return nil
}

func buildMessages(opts *llmOptions, prompt string) ([]lmstudio.Message, error) {
	var messages []lmstudio.Message
	if opts.system != "" {
		messages = append(messages, lmstudio.TextMessage(lmstudio.RoleSystem, opts.system))
	}

	if len(opts.images) > 0 {
		uris := make([]string, 0, len(opts.images))
		for _, path := range opts.images {
			uri, err := imageindex.EncodeImageFile(path)
			if err != nil {
				return nil, err
			}
			uris = append(uris, uri)
		}
		messages = append(messages, lmstudio.ImageMessage(prompt, uris...))
		return messages, nil
	}

	messages = append(messages, lmstudio.TextMessage(lmstudio.RoleUser, prompt))
	return messages, nil
}

// streamAnswer streams the completion to stdout, re-rendering as markdown
// afterwards when the answer warrants it.
func streamAnswer(ctx context.Context, a *app, client *lmstudio.Client, messages []lmstudio.Message) (*lmstudio.ChatResponse, error) {
	renderMarkdown := isTTY()
	resp, err := client.StreamComplete(ctx, lmstudio.ChatRequest{
		Messages:    messages,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		TTL:         a.cfg.ModelLoadTTL,
	}, lmstudio.StreamCallbacks{
		OnContentDelta: func(delta string, final bool) {
			fmt.Print(delta)
			if final {
				fmt.Println()
			}
		},
	})
	if err != nil {
		return nil, err
	}

	if renderMarkdown && looksLikeMarkdown(resp.Content) {
		if mr, mrErr := newMarkdownRenderer(); mrErr == nil {
			fmt.Print(mr.Render(resp.Content))
		}
	}
	return resp, nil
}

// runWithTools loops completions, dispatching proposed tool calls until the
// model stops asking or the iteration bound is reached.
func runWithTools(ctx context.Context, a *app, client *lmstudio.Client, messages []lmstudio.Message) error {
	registry, err := buildToolRegistry(a)
	if err != nil {
		return err
	}
	dispatcher := toolcall.NewDispatcher(registry, promptConfirm, a.logger)
	tools := registry.FunctionDefinitions()

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := client.Complete(ctx, lmstudio.ChatRequest{
			Messages:    messages,
			Tools:       tools,
			Temperature: a.cfg.Temperature,
			MaxTokens:   a.cfg.MaxTokens,
			TTL:         a.cfg.ModelLoadTTL,
		})
		if err != nil {
			return err
		}

		if len(resp.ToolCalls) == 0 {
			fmt.Println(strings.TrimSpace(resp.Content))
			printUsage(a, resp, "")
			return nil
		}

		messages = append(messages, lmstudio.Message{
			Role:      lmstudio.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := dispatcher.Dispatch(ctx, call)
			printToolResult(call, result)

			payload, _ := json.Marshal(result)
			messages = append(messages, lmstudio.Message{
				Role:       lmstudio.RoleTool,
				ToolCallID: call.ID,
				Content:    string(payload),
			})
		}
	}
	return fmt.Errorf("model kept requesting tools after %d iterations", maxToolIterations)
}

func printToolResult(call lmstudio.ToolCall, result toolcall.InvocationResult) {
	switch {
	case !result.CommandExposed:
		fmt.Printf("%s %s\n", red("✗"), result.Reason)
	case result.Reason != "":
		fmt.Printf("%s %s: %s\n", yellow("⊘"), call.Name, result.Reason)
	case result.Error != "":
		fmt.Printf("%s %s failed: %s\n", red("✗"), call.Name, result.Error)
	default:
		fmt.Printf("%s %s\n", green("⏺"), call.Name)
		if result.Output != "" {
			fmt.Printf("  %s\n", gray(firstLines(result.Output, 4)))
		}
	}
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "…")
	}
	return strings.Join(lines, "\n  ")
}

// promptConfirm asks the user before running a side-effecting command.
func promptConfirm(command string, args map[string]any) bool {
	if !isTTY() {
		return false
	}
	rendered, _ := json.Marshal(args)
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Run %s %s", command, string(rendered)),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

// printUsage reports token usage, estimating prompt tokens locally when the
// server omits usage numbers.
func printUsage(a *app, resp *lmstudio.ChatResponse, prompt string) {
	if !a.cfg.Verbose {
		return
	}
	usage := resp.Usage
	if usage.TotalTokens == 0 && prompt != "" {
		if est := estimateTokens(prompt); est > 0 {
			fmt.Fprintf(os.Stderr, "%s ~%d prompt tokens (estimated)\n", gray("◦"), est)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "%s %d tokens (in: %d, out: %d)\n",
		gray("◦"), usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
}

func estimateTokens(text string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}
