package translate

import (
	"context"
	"fmt"
	"strings"

	aierrors "aictl/internal/errors"
	"aictl/internal/lmstudio"
	"aictl/internal/logging"
	"aictl/internal/utils"
)

const systemPrompt = "You are a professional translator. Translate the user's text to %s. " +
	"Output only the translated text, with no preamble, notes or quotation marks. " +
	"Preserve formatting, line breaks and placeholders exactly."

// Translator turns text into another language by prompting the chat model.
type Translator struct {
	client *lmstudio.Client
	logger logging.Logger
}

// New creates a translator on top of an existing chat client.
func New(client *lmstudio.Client, logger logging.Logger) *Translator {
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("translate")
	}
	return &Translator{client: client, logger: logger}
}

// Translate renders text in the target language. instructions optionally
// appends style guidance such as "keep it informal".
func (t *Translator) Translate(ctx context.Context, text, targetLanguage, instructions string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", aierrors.NewPermanentError(fmt.Errorf("empty input"), "There is no text to translate.")
	}

	language, err := NormalizeLanguage(targetLanguage)
	if err != nil {
		return "", aierrors.NewPermanentError(err,
			fmt.Sprintf("Unknown target language %q. Run 'aictl translate --list-languages' for the supported set.", targetLanguage))
	}

	prompt := fmt.Sprintf(systemPrompt, language)
	if guidance := strings.TrimSpace(instructions); guidance != "" {
		prompt += " Additional instructions: " + guidance
	}

	t.logger.Debug("Translating %d chars to %s", len(text), language)

	resp, err := t.client.Complete(ctx, lmstudio.ChatRequest{
		Messages: []lmstudio.Message{
			lmstudio.TextMessage(lmstudio.RoleSystem, prompt),
			lmstudio.TextMessage(lmstudio.RoleUser, text),
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	translated := strings.TrimSpace(resp.Content)
	if translated == "" {
		return "", aierrors.NewTransientError(fmt.Errorf("empty translation"), "The model returned an empty translation. Please retry.")
	}
	return translated, nil
}
