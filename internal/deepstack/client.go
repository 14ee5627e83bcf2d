package deepstack

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

// ServiceName identifies the DeepStack backend in breakers and health entries.
const ServiceName = "deepstack"

// Prediction is a single detection result with its bounding box.
type Prediction struct {
	Label      string  `json:"label"`
	UserID     string  `json:"userid"`
	Confidence float64 `json:"confidence"`
	XMin       int     `json:"x_min"`
	YMin       int     `json:"y_min"`
	XMax       int     `json:"x_max"`
	YMax       int     `json:"y_max"`
}

// SceneResult is the scene classification for an image.
type SceneResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Config configures the DeepStack client.
type Config struct {
	BaseURL          string
	APIKey           string
	MinConfidence    float64
	TimeoutSeconds   int
	MaxResponseBytes int64
	Logger           logging.Logger
}

// Client talks to a DeepStack server.
type Client struct {
	baseURL          string
	apiKey           string
	minConfidence    float64
	httpClient       *http.Client
	breaker          *aierrors.CircuitBreaker
	logger           logging.Logger
	maxResponseBytes int64
}

// New constructs a client from the given configuration.
func New(config Config) *Client {
	timeout := 60 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	logger := config.Logger
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("deepstack")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	httpClient, breaker := httpclient.NewWithCircuitBreaker(timeout, logger, ServiceName)

	return &Client{
		baseURL:          baseURL,
		apiKey:           config.APIKey,
		minConfidence:    config.MinConfidence,
		httpClient:       httpClient,
		breaker:          breaker,
		logger:           logger,
		maxResponseBytes: config.MaxResponseBytes,
	}
}

// Breaker exposes the circuit breaker guarding this client's transport.
func (c *Client) Breaker() *aierrors.CircuitBreaker { return c.breaker }

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// DetectObjects runs object detection on the image file.
func (c *Client) DetectObjects(ctx context.Context, imagePath string) ([]Prediction, error) {
	resp, err := c.postImage(ctx, "/v1/vision/detection", imagePath, nil)
	if err != nil {
		return nil, err
	}
	return c.filterPredictions(resp.Predictions), nil
}

// DetectFaces finds face bounding boxes in the image file.
func (c *Client) DetectFaces(ctx context.Context, imagePath string) ([]Prediction, error) {
	resp, err := c.postImage(ctx, "/v1/vision/face", imagePath, nil)
	if err != nil {
		return nil, err
	}
	return c.filterPredictions(resp.Predictions), nil
}

// RecognizeFaces matches faces in the image against registered identities.
// Unmatched faces come back with the server's "unknown" user id.
func (c *Client) RecognizeFaces(ctx context.Context, imagePath string) ([]Prediction, error) {
	resp, err := c.postImage(ctx, "/v1/vision/face/recognize", imagePath, nil)
	if err != nil {
		return nil, err
	}
	return c.filterPredictions(resp.Predictions), nil
}

// RegisterFace associates the face in the image with the given identity.
func (c *Client) RegisterFace(ctx context.Context, identity, imagePath string) error {
	if strings.TrimSpace(identity) == "" {
		return aierrors.NewPermanentError(fmt.Errorf("identity is required"), "A face must be registered under a non-empty name.")
	}
	_, err := c.postImage(ctx, "/v1/vision/face/register", imagePath, map[string]string{"userid": identity})
	return err
}

// ListFaces returns the registered face identities.
func (c *Client) ListFaces(ctx context.Context) ([]string, error) {
	resp, err := c.postForm(ctx, "/v1/vision/face/list", nil)
	if err != nil {
		return nil, err
	}
	return resp.Faces, nil
}

// DeleteFace removes a registered identity.
func (c *Client) DeleteFace(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return aierrors.NewPermanentError(fmt.Errorf("identity is required"), "Specify which registered face to delete.")
	}
	_, err := c.postForm(ctx, "/v1/vision/face/delete", map[string]string{"userid": identity})
	return err
}

// ClassifyScene labels the overall scene of the image file.
func (c *Client) ClassifyScene(ctx context.Context, imagePath string) (*SceneResult, error) {
	resp, err := c.postImage(ctx, "/v1/vision/scene", imagePath, nil)
	if err != nil {
		return nil, err
	}
	return &SceneResult{Label: resp.Label, Confidence: resp.Confidence}, nil
}

// Probe checks basic server reachability using the face list endpoint.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.ListFaces(ctx)
	return err
}

type apiResponse struct {
	Success     bool         `json:"success"`
	Error       string       `json:"error"`
	Predictions []Prediction `json:"predictions"`
	Faces       []string     `json:"faces"`
	Label       string       `json:"label"`
	Confidence  float64      `json:"confidence"`
}

func (c *Client) filterPredictions(preds []Prediction) []Prediction {
	if c.minConfidence <= 0 {
		return preds
	}
	filtered := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		if p.Confidence >= c.minConfidence {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func (c *Client) postImage(ctx context.Context, path, imagePath string, fields map[string]string) (*apiResponse, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, aierrors.NewPermanentError(err, fmt.Sprintf("Cannot read image file %q.", imagePath))
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", key, err)
		}
	}
	c.writeCommonFields(writer)
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return c.do(ctx, path, &body, writer.FormDataContentType())
}

func (c *Client) postForm(ctx context.Context, path string, fields map[string]string) (*apiResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", key, err)
		}
	}
	c.writeCommonFields(writer)
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return c.do(ctx, path, &body, writer.FormDataContentType())
}

func (c *Client) writeCommonFields(writer *multipart.Writer) {
	if c.apiKey != "" {
		_ = writer.WriteField("api_key", c.apiKey)
	}
	if c.minConfidence > 0 {
		_ = writer.WriteField("min_confidence", strconv.FormatFloat(c.minConfidence, 'f', -1, 64))
	}
}

func (c *Client) do(ctx context.Context, path string, body io.Reader, contentType string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("POST %s%s", c.baseURL, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed: %v", err)
		return nil, c.wrapUnreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, c.maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("Status: %d, Body: %d bytes", resp.StatusCode, len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapHTTPError(resp.StatusCode, respBody)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !parsed.Success {
		message := parsed.Error
		if message == "" {
			message = "unknown server error"
		}
		return nil, aierrors.NewPermanentError(
			fmt.Errorf("deepstack rejected request: %s", message),
			fmt.Sprintf("DeepStack could not process the request: %s", message),
		)
	}
	return &parsed, nil
}

func (c *Client) wrapUnreachable(err error) error {
	if aierrors.IsDegraded(err) {
		return err
	}
	return aierrors.NewTransientError(err,
		fmt.Sprintf("DeepStack at %s is not reachable. Start the server or point --deepstack-url at a running instance.", c.baseURL))
}

func (c *Client) mapHTTPError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	base := fmt.Errorf("deepstack status %d: %s", status, message)
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return aierrors.NewPermanentError(base, "DeepStack rejected the API key. Check the deepstack_api_key setting.")
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return aierrors.NewTransientError(base, "")
	}
	return aierrors.NewPermanentError(base, "")
}
