package imageindex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	aierrors "aictl/internal/errors"
	"aictl/internal/lmstudio"
)

// Description is what the vision model says about an image.
type Description struct {
	Text     string
	Keywords []string
}

// Describer produces a natural language description of an image.
type Describer interface {
	Describe(ctx context.Context, imagePath string) (Description, error)
}

const describePrompt = "Describe this image for a search index. Respond with JSON: " +
	`{"description": "<two or three sentences>", "keywords": ["<5-10 short keywords>"]}`

// VisionDescriber asks a multimodal chat model to describe images.
type VisionDescriber struct {
	client *lmstudio.Client
}

// NewVisionDescriber wraps a chat client configured with a vision model.
func NewVisionDescriber(client *lmstudio.Client) *VisionDescriber {
	return &VisionDescriber{client: client}
}

// Describe reads the image, sends it as a data URI and parses the model's
// JSON answer.
func (d *VisionDescriber) Describe(ctx context.Context, imagePath string) (Description, error) {
	dataURI, err := EncodeImageFile(imagePath)
	if err != nil {
		return Description{}, err
	}

	resp, err := d.client.Complete(ctx, lmstudio.ChatRequest{
		Messages: []lmstudio.Message{
			lmstudio.ImageMessage(describePrompt, dataURI),
		},
		Temperature:    0.1,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return Description{}, err
	}

	var parsed struct {
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		// Structured output is best effort. Fall back to the raw text.
		return Description{Text: strings.TrimSpace(resp.Content)}, nil
	}
	return Description{
		Text:     strings.TrimSpace(parsed.Description),
		Keywords: parsed.Keywords,
	}, nil
}

// EncodeImageFile reads an image from disk and returns it as a base64 data
// URI suitable for an image_url content part.
func EncodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", aierrors.NewPermanentError(err, fmt.Sprintf("Cannot read image file: %s", path))
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
