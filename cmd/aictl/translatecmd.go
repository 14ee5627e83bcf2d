package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aictl/internal/translate"
)

func newTranslateCommand(a *app) *cobra.Command {
	var (
		instructions  string
		listLanguages bool
	)

	cmd := &cobra.Command{
		Use:   "translate <language> [text...]",
		Short: "Translate text via the local LLM",
		Long: `Translate text to the target language. Reads stdin when no text
arguments are given, so it composes with pipes:

  cat notes.txt | aictl translate dutch`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listLanguages {
				for _, language := range translate.SupportedLanguages() {
					fmt.Println(language)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("target language required; run with --list-languages to see options")
			}

			target := args[0]
			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				text = readStdin()
			}

			translator := translate.New(a.chatClient(""), a.logger)
			out, err := translator.Translate(cmd.Context(), text, target, instructions)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&instructions, "instructions", "", "Extra style guidance, e.g. 'keep it informal'")
	cmd.Flags().BoolVar(&listLanguages, "list-languages", false, "Print supported target languages")
	return cmd
}
