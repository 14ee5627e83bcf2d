package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	aierrors "aictl/internal/errors"
	"aictl/internal/httpclient"
	"aictl/internal/logging"
	"aictl/internal/utils"
	id "aictl/internal/utils/id"
)

// ServiceName identifies the ComfyUI backend in breakers and health entries.
const ServiceName = "comfyui"

// GeneratedImage is one output of a finished workflow.
type GeneratedImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ProgressFunc receives sampling progress updates (step value out of max).
type ProgressFunc func(value, max int)

// Config configures the ComfyUI client.
type Config struct {
	BaseURL          string
	TimeoutSeconds   int
	MaxResponseBytes int64
	Logger           logging.Logger
}

// Client drives a ComfyUI server's queue and websocket APIs.
type Client struct {
	baseURL          string
	clientID         string
	httpClient       *http.Client
	breaker          *aierrors.CircuitBreaker
	logger           logging.Logger
	maxResponseBytes int64
	pollInterval     time.Duration
}

// New constructs a client from the given configuration.
func New(config Config) *Client {
	timeout := 10 * time.Minute
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	logger := config.Logger
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("comfyui")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8188"
	}

	httpClient, breaker := httpclient.NewWithCircuitBreaker(timeout, logger, ServiceName)

	return &Client{
		baseURL:          baseURL,
		clientID:         id.NewPromptID(),
		httpClient:       httpClient,
		breaker:          breaker,
		logger:           logger,
		maxResponseBytes: config.MaxResponseBytes,
		pollInterval:     2 * time.Second,
	}
}

// Breaker exposes the circuit breaker guarding this client's transport.
func (c *Client) Breaker() *aierrors.CircuitBreaker { return c.breaker }

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Generate queues a text-to-image workflow, waits for completion and
// returns the produced images.
func (c *Client) Generate(ctx context.Context, params GenerationParams, onProgress ProgressFunc) ([]GeneratedImage, error) {
	if err := params.Validate(); err != nil {
		return nil, aierrors.NewPermanentError(err, "")
	}

	promptID, err := c.QueuePrompt(ctx, buildTextToImageGraph(params))
	if err != nil {
		return nil, err
	}
	c.logger.Info("Queued prompt %s", promptID)

	if err := c.waitForCompletion(ctx, promptID, onProgress); err != nil {
		return nil, err
	}
	return c.HistoryOutputs(ctx, promptID)
}

// QueuePrompt submits a workflow graph and returns the prompt id.
func (c *Client) QueuePrompt(ctx context.Context, graph map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"prompt":    graph,
		"client_id": c.clientID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.wrapUnreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.mapHTTPError(resp.StatusCode, respBody)
	}

	var queued struct {
		PromptID   string         `json:"prompt_id"`
		NodeErrors map[string]any `json:"node_errors"`
	}
	if err := json.Unmarshal(respBody, &queued); err != nil {
		return "", fmt.Errorf("decode queue response: %w", err)
	}
	if len(queued.NodeErrors) > 0 {
		return "", aierrors.NewPermanentError(
			fmt.Errorf("workflow rejected: %v", queued.NodeErrors),
			"ComfyUI rejected the workflow. Check the checkpoint name and parameters.",
		)
	}
	if queued.PromptID == "" {
		return "", fmt.Errorf("queue response missing prompt_id")
	}
	return queued.PromptID, nil
}

// waitForCompletion observes execution over the websocket, falling back to
// history polling when the websocket cannot connect.
func (c *Client) waitForCompletion(ctx context.Context, promptID string, onProgress ProgressFunc) error {
	wsErr := c.watchWebsocket(ctx, promptID, onProgress)
	if wsErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Warn("Websocket unavailable (%v), polling history instead", wsErr)
	return c.pollHistory(ctx, promptID)
}

type wsEvent struct {
	Type string `json:"type"`
	Data struct {
		Value    int     `json:"value"`
		Max      int     `json:"max"`
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
		Message  string  `json:"exception_message"`
	} `json:"data"`
}

func (c *Client) watchWebsocket(ctx context.Context, promptID string, onProgress ProgressFunc) error {
	wsURL, err := c.websocketURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	// Unblock reads when the watch ends or the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	// The prompt can finish before the socket comes up, in which case no
	// event for it will ever arrive on this connection.
	if entry, histErr := c.historyEntry(ctx, promptID); histErr == nil && entry != nil {
		return nil
	}

	frames := make(chan []byte)
	readFailed := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readFailed <- err
				return
			}
			select {
			case frames <- data:
			case <-done:
				return
			}
		}
	}()

	// A connected websocket can still go silent on us, so history doubles
	// as a liveness check while frames are pending.
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readFailed:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read websocket: %w", err)
		case <-ticker.C:
			entry, err := c.historyEntry(ctx, promptID)
			if err != nil {
				return err
			}
			if entry != nil {
				return nil
			}
		case data := <-frames:
			var event wsEvent
			if err := json.Unmarshal(data, &event); err != nil {
				// Binary preview frames and unknown payloads are skipped.
				continue
			}

			switch event.Type {
			case "progress":
				if onProgress != nil && event.Data.Max > 0 {
					onProgress(event.Data.Value, event.Data.Max)
				}
			case "executing":
				if event.Data.PromptID == promptID && event.Data.Node == nil {
					return nil
				}
			case "execution_error":
				if event.Data.PromptID == promptID {
					return aierrors.NewPermanentError(
						fmt.Errorf("execution error: %s", event.Data.Message),
						fmt.Sprintf("ComfyUI failed to execute the workflow: %s", event.Data.Message),
					)
				}
			}
		}
	}
}

func (c *Client) websocketURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/ws"
	parsed.RawQuery = url.Values{"clientId": {c.clientID}}.Encode()
	return parsed.String(), nil
}

func (c *Client) pollHistory(ctx context.Context, promptID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entry, err := c.historyEntry(ctx, promptID)
			if err != nil {
				return err
			}
			if entry != nil {
				return nil
			}
		}
	}
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []GeneratedImage `json:"images"`
	} `json:"outputs"`
	Status struct {
		Completed bool   `json:"completed"`
		StatusStr string `json:"status_str"`
	} `json:"status"`
}

func (c *Client) historyEntry(ctx context.Context, promptID string) (*historyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.wrapUnreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.mapHTTPError(resp.StatusCode, respBody)
	}

	var history map[string]historyEntry
	if err := json.Unmarshal(respBody, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	entry, ok := history[promptID]
	if !ok {
		return nil, nil
	}
	if entry.Status.StatusStr == "error" {
		return nil, aierrors.NewPermanentError(
			fmt.Errorf("prompt %s failed", promptID),
			"ComfyUI reported an execution error for the queued workflow.",
		)
	}
	return &entry, nil
}

// HistoryOutputs lists the images produced by a finished prompt.
func (c *Client) HistoryOutputs(ctx context.Context, promptID string) ([]GeneratedImage, error) {
	entry, err := c.historyEntry(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("prompt %s not found in history", promptID)
	}

	var images []GeneratedImage
	for _, output := range entry.Outputs {
		images = append(images, output.Images...)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("prompt %s produced no images", promptID)
	}
	return images, nil
}

// Download fetches a generated image and writes it into destDir, returning
// the local path.
func (c *Client) Download(ctx context.Context, image GeneratedImage, destDir string) (string, error) {
	query := url.Values{
		"filename":  {image.Filename},
		"subfolder": {image.Subfolder},
		"type":      {image.Type},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.wrapUnreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
		return "", c.mapHTTPError(resp.StatusCode, respBody)
	}

	data, err := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	dest := filepath.Join(destDir, image.Filename)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return dest, nil
}

// Probe checks basic server reachability.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.wrapUnreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.mapHTTPError(resp.StatusCode, nil)
	}
	return nil
}

func (c *Client) wrapUnreachable(err error) error {
	if aierrors.IsDegraded(err) {
		return err
	}
	return aierrors.NewTransientError(err,
		fmt.Sprintf("ComfyUI at %s is not reachable. Start the server or point --comfyui-url at a running instance.", c.baseURL))
}

func (c *Client) mapHTTPError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	base := fmt.Errorf("comfyui status %d: %s", status, message)
	if status >= 500 || status == http.StatusTooManyRequests {
		return aierrors.NewTransientError(base, "")
	}
	return aierrors.NewPermanentError(base, "")
}
