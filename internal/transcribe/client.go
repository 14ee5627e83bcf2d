package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	aierrors "aictl/internal/errors"
	"aictl/internal/httpclient"
	"aictl/internal/logging"
	"aictl/internal/utils"
)

// ServiceName identifies the transcription backend in breakers and health entries.
const ServiceName = "whisper"

// Segment is a transcribed span with timestamps in seconds.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the full result of a transcription request.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Request carries per-call transcription options.
type Request struct {
	AudioPath   string
	Language    string // ISO 639-1 hint, empty for auto-detect
	Prompt      string
	Temperature float64
}

// Config configures the transcription client.
type Config struct {
	BaseURL          string
	Model            string
	TimeoutSeconds   int
	MaxResponseBytes int64
	Logger           logging.Logger
}

// Client talks to an OpenAI-compatible transcription endpoint.
type Client struct {
	baseURL          string
	model            string
	httpClient       *http.Client
	breaker          *aierrors.CircuitBreaker
	logger           logging.Logger
	maxResponseBytes int64
}

// New constructs a client from the given configuration.
func New(config Config) *Client {
	timeout := 10 * time.Minute
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	logger := config.Logger
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("transcribe")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:1234"
	}

	httpClient, breaker := httpclient.NewWithCircuitBreaker(timeout, logger, ServiceName)

	return &Client{
		baseURL:          baseURL,
		model:            config.Model,
		httpClient:       httpClient,
		breaker:          breaker,
		logger:           logger,
		maxResponseBytes: config.MaxResponseBytes,
	}
}

// Breaker exposes the circuit breaker guarding this client's transport.
func (c *Client) Breaker() *aierrors.CircuitBreaker { return c.breaker }

// Transcribe uploads the audio file and returns the segmented result.
func (c *Client) Transcribe(ctx context.Context, req Request) (*Transcription, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, aierrors.NewPermanentError(err, fmt.Sprintf("Cannot read audio file %q.", req.AudioPath))
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}

	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("response_format", "verbose_json")
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = writer.WriteField("prompt", req.Prompt)
	}
	if req.Temperature > 0 {
		_ = writer.WriteField("temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64))
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Info("Transcribing %s with model %s", filepath.Base(req.AudioPath), c.model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if aierrors.IsDegraded(err) {
			return nil, err
		}
		return nil, aierrors.NewTransientError(err,
			fmt.Sprintf("The transcription server at %s is not reachable.", c.baseURL))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(respBody))
		base := fmt.Errorf("transcription status %d: %s", resp.StatusCode, message)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, aierrors.NewTransientError(base, "")
		}
		return nil, aierrors.NewPermanentError(base, "")
	}

	var result Transcription
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)

	c.logger.Info("Transcribed %.1fs of audio, %d segments, language %q",
		result.Duration, len(result.Segments), result.Language)
	return &result, nil
}
