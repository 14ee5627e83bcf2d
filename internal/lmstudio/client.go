package lmstudio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	aierrors "aictl/internal/errors"
	"aictl/internal/httpclient"
	"aictl/internal/logging"
	"aictl/internal/utils"
	id "aictl/internal/utils/id"
)

// ServiceName identifies the LM Studio backend in breakers and health entries.
const ServiceName = "lmstudio"

// Client talks to an LM Studio server over its OpenAI-compatible API.
type Client struct {
	model            string
	baseURL          string
	httpClient       *http.Client
	breaker          *aierrors.CircuitBreaker
	logger           logging.Logger
	retryConfig      aierrors.RetryConfig
	maxResponseBytes int64
}

// New constructs a client from the given configuration.
func New(config Config) *Client {
	timeout := 120 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	logger := config.Logger
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("lmstudio")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:1234"
	}

	httpClient, breaker := httpclient.NewWithCircuitBreaker(timeout, logger, ServiceName)

	retryConfig := aierrors.DefaultRetryConfig()
	retryConfig.MaxAttempts = config.MaxRetries

	return &Client{
		model:            config.Model,
		baseURL:          baseURL,
		httpClient:       httpClient,
		breaker:          breaker,
		logger:           logger,
		retryConfig:      retryConfig,
		maxResponseBytes: config.MaxResponseBytes,
	}
}

// Breaker exposes the circuit breaker guarding this client's transport.
func (c *Client) Breaker() *aierrors.CircuitBreaker { return c.breaker }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Complete performs a non-streaming chat completion, retrying transient
// failures up to the configured budget.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.retryConfig.MaxAttempts <= 0 {
		return c.complete(ctx, req)
	}
	return aierrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*ChatResponse, error) {
		return c.complete(ctx, req)
	}, c.logger)
}

func (c *Client) complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	requestID := id.NewRequestID()
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	body, err := json.Marshal(c.buildPayload(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%sPOST %s/v1/chat/completions model=%s", prefix, c.baseURL, c.model)
	c.logger.Debug("%sRequest Body: %s", prefix, redactDataURIs(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("%sStatus: %d", prefix, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%sError Response Body: %s", prefix, string(respBody))
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage TokenUsage `json:"usage"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		c.logger.Debug("%sFailed to decode response: %v", prefix, err)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		errMsg := oaiResp.Error.Message
		if oaiResp.Error.Type != "" {
			errMsg = fmt.Sprintf("%s: %s", oaiResp.Error.Type, oaiResp.Error.Message)
		}
		return nil, mapHTTPError(resp.StatusCode, []byte(errMsg), resp.Header)
	}

	if len(oaiResp.Choices) == 0 {
		return nil, aierrors.NewTransientError(errors.New("no choices in response"), "The model returned an empty response. Please retry.")
	}

	choice := oaiResp.Choices[0]
	result := &ChatResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage:      oaiResp.Usage,
	}

	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
			c.logger.Debug("%sTool call arguments are not valid JSON: %v", prefix, err)
		}
		result.ToolCalls = append(result.ToolCalls, call)
	}

	c.logger.Debug("%sStop Reason: %s, Content: %d chars, Tool Calls: %d, Tokens: %d",
		prefix, result.StopReason, len(result.Content), len(result.ToolCalls), result.Usage.TotalTokens)

	return result, nil
}

// StreamComplete streams incremental completion deltas while constructing the
// final aggregated response. Streaming calls are never retried, since deltas
// may already have reached the caller when the stream breaks.
func (c *Client) StreamComplete(ctx context.Context, req ChatRequest, callbacks StreamCallbacks) (*ChatResponse, error) {
	requestID := id.NewRequestID()
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	body, err := json.Marshal(c.buildPayload(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%sPOST %s/v1/chat/completions model=%s stream=true", prefix, c.baseURL, c.model)
	c.logger.Debug("%sRequest Body: %s", prefix, redactDataURIs(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("%sStatus: %d", prefix, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		c.logger.Debug("%sError Response Body: %s", prefix, string(respBody))
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	type toolCallDelta struct {
		Index    int    `json:"index"`
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}

	type streamChunk struct {
		Choices []struct {
			Delta struct {
				Content   string          `json:"content"`
				ToolCalls []toolCallDelta `json:"tool_calls"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Usage *TokenUsage `json:"usage"`
	}

	type toolAccumulator struct {
		id        string
		name      string
		arguments strings.Builder
	}

	toolAccumulators := make(map[int]*toolAccumulator)
	var toolOrder []int

	appendToolCall := func(idx int) *toolAccumulator {
		acc, ok := toolAccumulators[idx]
		if !ok {
			acc = &toolAccumulator{}
			toolAccumulators[idx] = acc
			toolOrder = append(toolOrder, idx)
		}
		return acc
	}

	var contentBuilder strings.Builder
	usage := TokenUsage{}
	finishReason := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("%sFailed to decode stream chunk: %v", prefix, err)
			continue
		}

		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}

		if text := choice.Delta.Content; text != "" {
			contentBuilder.WriteString(text)
			if callbacks.OnContentDelta != nil {
				callbacks.OnContentDelta(text, false)
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			acc := appendToolCall(tc.Index)
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.arguments.WriteString(tc.Function.Arguments)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Debug("%sStream read error: %v", prefix, err)
		return nil, fmt.Errorf("read response stream: %w", err)
	}

	if callbacks.OnContentDelta != nil {
		callbacks.OnContentDelta("", true)
	}

	result := &ChatResponse{
		Content:    contentBuilder.String(),
		StopReason: finishReason,
		Usage:      usage,
	}

	for _, idx := range toolOrder {
		acc := toolAccumulators[idx]
		if acc == nil {
			continue
		}
		call := ToolCall{
			ID:           acc.id,
			Name:         acc.name,
			RawArguments: acc.arguments.String(),
		}
		if call.RawArguments != "" {
			if err := json.Unmarshal([]byte(call.RawArguments), &call.Arguments); err != nil {
				c.logger.Debug("%sTool call arguments are not valid JSON: %v", prefix, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, call)
	}

	c.logger.Debug("%sStop Reason: %s, Content: %d chars, Tool Calls: %d, Tokens: %d",
		prefix, result.StopReason, len(result.Content), len(result.ToolCalls), result.Usage.TotalTokens)

	return result, nil
}

func (c *Client) buildPayload(req ChatRequest, stream bool) map[string]any {
	payload := map[string]any{
		"model":       c.model,
		"messages":    convertMessages(req.Messages),
		"temperature": req.Temperature,
		"stream":      stream,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertTools(req.Tools)
		payload["tool_choice"] = "auto"
	}
	if len(req.StopSequences) > 0 {
		payload["stop"] = append([]string(nil), req.StopSequences...)
	}
	if req.ResponseFormat != nil {
		payload["response_format"] = req.ResponseFormat
	}
	if req.TTL > 0 {
		payload["ttl"] = req.TTL
	}
	return payload
}

func convertMessages(msgs []Message) []map[string]any {
	result := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		entry := map[string]any{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if msg.ToolCallID != "" {
			entry["tool_call_id"] = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args := tc.RawArguments
				if args == "" {
					if encoded, err := json.Marshal(tc.Arguments); err == nil {
						args = string(encoded)
					}
				}
				calls = append(calls, map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": args,
					},
				})
			}
			entry["tool_calls"] = calls
		}
		result = append(result, entry)
	}
	return result
}

func convertTools(tools []ToolDefinition) []map[string]any {
	result := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  params,
			},
		})
	}
	return result
}

// mapHTTPError converts a non-2xx response into the error taxonomy.
func mapHTTPError(status int, body []byte, header http.Header) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	base := fmt.Errorf("API error status %d: %s", status, message)

	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(header)
		return &aierrors.TransientError{
			Err:        base,
			RetryAfter: int(retryAfter / time.Second),
			StatusCode: status,
			Message:    "The model server is rate limiting requests. Please retry shortly.",
		}
	case status >= 500:
		return &aierrors.TransientError{
			Err:        base,
			StatusCode: status,
			Message:    "The model server reported an internal error. Please retry.",
		}
	case status == http.StatusNotFound:
		return aierrors.NewPermanentError(base, "The requested model or endpoint was not found. Check the model identifier.")
	default:
		return aierrors.NewPermanentError(base, "")
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// wrapRequestError classifies transport-level failures.
func wrapRequestError(err error) error {
	if err == nil {
		return nil
	}
	if aierrors.IsDegraded(err) || aierrors.IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return aierrors.NewTransientError(err, "")
}

var dataURIPattern = regexp.MustCompile(`"data:[^;]+;base64,[^"]{32,}"`)

// redactDataURIs replaces embedded base64 payloads in log output.
func redactDataURIs(body []byte) string {
	return dataURIPattern.ReplaceAllString(string(body), `"data:<redacted>"`)
}
