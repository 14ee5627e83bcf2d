package lmstudio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ModelInfo describes a model known to the server. State and the descriptive
// fields are only populated by the native LM Studio API.
type ModelInfo struct {
	ID               string `json:"id"`
	Type             string `json:"type,omitempty"`
	Publisher        string `json:"publisher,omitempty"`
	Arch             string `json:"arch,omitempty"`
	Quantization     string `json:"quantization,omitempty"`
	State            string `json:"state,omitempty"`
	MaxContextLength int    `json:"max_context_length,omitempty"`
}

// Loaded reports whether the model is resident in memory.
func (m ModelInfo) Loaded() bool { return m.State == "loaded" }

// ListModels returns the models from the OpenAI-compatible endpoint.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return c.fetchModels(ctx, "/v1/models")
}

// ListModelsDetailed returns models from the native LM Studio endpoint,
// including load state and quantization details.
func (c *Client) ListModelsDetailed(ctx context.Context) ([]ModelInfo, error) {
	return c.fetchModels(ctx, "/api/v0/models")
}

func (c *Client) fetchModels(ctx context.Context, path string) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, nil, resp.Header)
	}

	var listResp struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return listResp.Data, nil
}

// FindModel resolves a model identifier, matching on exact ID first and then
// on substring. Returns the detailed entry when available.
func (c *Client) FindModel(ctx context.Context, query string) (*ModelInfo, error) {
	models, err := c.ListModelsDetailed(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	for i := range models {
		if strings.ToLower(models[i].ID) == query {
			return &models[i], nil
		}
	}
	for i := range models {
		if strings.Contains(strings.ToLower(models[i].ID), query) {
			return &models[i], nil
		}
	}
	return nil, fmt.Errorf("no model matching %q is available", query)
}

// Probe checks basic server reachability.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// EnsureLoaded makes sure the configured model is resident, triggering a
// just-in-time load with the given TTL when it is not. LM Studio loads a
// model on first use, so the trigger is a minimal one-token completion.
func (c *Client) EnsureLoaded(ctx context.Context, ttlSeconds int) error {
	models, err := c.ListModelsDetailed(ctx)
	if err != nil {
		return err
	}

	for _, m := range models {
		if m.ID == c.model && m.Loaded() {
			c.logger.Debug("Model %s already loaded", c.model)
			return nil
		}
	}

	c.logger.Info("Loading model %s (ttl=%ds)", c.model, ttlSeconds)
	_, err = c.Complete(ctx, ChatRequest{
		Messages:  []Message{TextMessage(RoleUser, "ping")},
		MaxTokens: 1,
		TTL:       ttlSeconds,
	})
	if err != nil {
		return fmt.Errorf("load model %s: %w", c.model, err)
	}
	return nil
}
