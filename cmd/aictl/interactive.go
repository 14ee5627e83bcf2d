package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"aictl/internal/lmstudio"
)

// runInteractive starts a readline REPL keeping the conversation history
// in memory for the session.
func runInteractive(a *app, opts *llmOptions) error {
	if !isTTY() {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".aictl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          bold("> "),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	client := a.chatClient("")
	fmt.Printf("%s Chatting with %s at %s. Type %s to quit.\n",
		cyan("●"), bold(client.Model()), a.cfg.LMStudioBaseURL, bold("/quit"))

	var messages []lmstudio.Message
	if opts.system != "" {
		messages = append(messages, lmstudio.TextMessage(lmstudio.RoleSystem, opts.system))
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err != nil { // io.EOF
			break
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			messages = messages[:0]
			if opts.system != "" {
				messages = append(messages, lmstudio.TextMessage(lmstudio.RoleSystem, opts.system))
			}
			fmt.Println(gray("history cleared"))
			continue
		}

		messages = append(messages, lmstudio.TextMessage(lmstudio.RoleUser, input))
		resp, err := streamAnswer(context.Background(), a, client, messages)
		if err != nil {
			fmt.Printf("%s %v\n", red("✗"), err)
			// Drop the failed turn so a transient error does not poison
			// the history.
			messages = messages[:len(messages)-1]
			continue
		}
		messages = append(messages, lmstudio.TextMessage(lmstudio.RoleAssistant, resp.Content))
	}
	return nil
}
