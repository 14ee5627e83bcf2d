package lmstudio

import "aictl/internal/logging"

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single chat message. Content is either a plain string or a
// slice of content parts when images are attached.
type Message struct {
	Role       string
	Content    any
	ToolCallID string
	ToolCalls  []ToolCall
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// ImageMessage builds a user message carrying text plus image_url parts.
// Images are data URIs or http(s) URLs.
func ImageMessage(text string, imageURLs ...string) Message {
	parts := make([]map[string]any, 0, len(imageURLs)+1)
	if text != "" {
		parts = append(parts, map[string]any{"type": "text", "text": text})
	}
	for _, url := range imageURLs {
		if url == "" {
			continue
		}
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": url},
		})
	}
	return Message{Role: RoleUser, Content: parts}
}

// ToolCall is a function invocation proposed by the model.
// RawArguments preserves the argument text exactly as the model produced it,
// including malformed JSON, so callers can attempt repair.
type ToolCall struct {
	ID           string
	Name         string
	Arguments    map[string]any
	RawArguments string
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Messages      []Message
	Tools         []ToolDefinition
	Temperature   float64
	MaxTokens     int
	StopSequences []string
	// ResponseFormat forces structured output, e.g. {"type":"json_object"}.
	ResponseFormat map[string]any
	// TTL asks the server to keep a just-in-time loaded model resident for
	// this many seconds.
	TTL int
}

// TokenUsage reports prompt/completion token counts.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the aggregated result of a chat completion.
type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
}

// StreamCallbacks receives incremental streaming events.
type StreamCallbacks struct {
	// OnContentDelta is invoked for each content fragment. final is true
	// exactly once, after the last fragment.
	OnContentDelta func(delta string, final bool)
}

// Config configures the LM Studio client.
type Config struct {
	BaseURL          string
	Model            string
	TimeoutSeconds   int
	MaxRetries       int
	MaxResponseBytes int64
	Logger           logging.Logger
}
