package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"TraceLens/internal/engine"
	"TraceLens/internal/model"
)

// Client talks to a running trace service.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// GenerateOptions mirrors the /generate request body. Zero-valued fields use
// the service defaults.
type GenerateOptions struct {
	Prompt            string   `json:"prompt"`
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	TopK              int      `json:"top_k,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	ApplyChatTemplate *bool    `json:"apply_chat_template,omitempty"`
}

// TrainingOptions mirrors the /process_training request body.
type TrainingOptions struct {
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// New creates a client for the given service base URL.
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 120*time.Second)
}

// NewWithTimeout creates a client with an explicit request timeout. Trace
// recording holds the connection for the whole generation loop, so the
// timeout is generous by default.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CheckServer verifies the service is reachable and reports whether a model
// is loaded.
func (c *Client) CheckServer(ctx context.Context) (bool, error) {
	var resp healthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return false, fmt.Errorf("trace service unreachable at %s: %w", c.BaseURL, err)
	}
	return resp.ModelLoaded, nil
}

// ModelInfo fetches the loaded model's architecture summary.
func (c *Client) ModelInfo(ctx context.Context) (model.Info, error) {
	var info model.Info
	if err := c.get(ctx, "/model_info", &info); err != nil {
		return model.Info{}, err
	}
	return info, nil
}

// Generate records one generation trace.
func (c *Client) Generate(ctx context.Context, opts GenerateOptions) (*engine.InferenceTrace, error) {
	var trace engine.InferenceTrace
	if err := c.post(ctx, "/generate", opts, &trace); err != nil {
		return nil, err
	}
	return &trace, nil
}

// ProcessTraining records one teacher-forced trace.
func (c *Client) ProcessTraining(ctx context.Context, opts TrainingOptions) (*engine.TrainingTrace, error) {
	var trace engine.TrainingTrace
	if err := c.post(ctx, "/process_training", opts, &trace); err != nil {
		return nil, err
	}
	return &trace, nil
}

// LoadModel asks the service to switch models.
func (c *Client) LoadModel(ctx context.Context, modelID string) error {
	payload := struct {
		Model string `json:"model"`
	}{Model: modelID}
	return c.post(ctx, "/load_model", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
