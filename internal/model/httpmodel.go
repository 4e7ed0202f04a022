package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Runner talks to the external model runner process that hosts the actual
// model and tokenizer. The runner exposes a small JSON API; TraceLens never
// touches weights or tokenizer state directly.
type Runner struct {
	BaseURL    string
	httpClient *http.Client
}

// NewRunner constructs a runner client with the default 60s timeout.
func NewRunner(baseURL string) *Runner {
	return NewRunnerWithTimeout(baseURL, 60*time.Second)
}

// NewRunnerWithTimeout constructs a runner client using the provided timeout
// for HTTP requests. Forward passes over long contexts can be slow, so the
// timeout should be generous.
func NewRunnerWithTimeout(baseURL string, timeout time.Duration) *Runner {
	return &Runner{
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type encodeRequest struct {
	Text             string `json:"text"`
	AddSpecialTokens bool   `json:"add_special_tokens"`
}

type encodeResponse struct {
	TokenIDs []int `json:"token_ids"`
}

type decodeRequest struct {
	TokenIDs []int `json:"token_ids"`
}

type decodeResponse struct {
	Text string `json:"text"`
}

type subtokensRequest struct {
	TokenIDs []int `json:"token_ids"`
}

type subtokensResponse struct {
	Subtokens []string `json:"subtokens"`
}

type renderChatRequest struct {
	Messages            []ChatMessage `json:"messages"`
	AddGenerationPrompt bool          `json:"add_generation_prompt"`
}

type renderChatResponse struct {
	Text string `json:"text"`
}

type logitsRequest struct {
	TokenIDs []int `json:"token_ids"`
}

type logitsResponse struct {
	Logits []float64 `json:"logits"`
}

type logitsAllResponse struct {
	Logits [][]float64 `json:"logits"`
}

type loadModelRequest struct {
	ModelID string `json:"model_id"`
}

// runnerInfo is the runner's /model_info payload: model metadata plus the
// tokenizer facts the engine needs up front.
type runnerInfo struct {
	Info
	HasChatTemplate bool `json:"has_chat_template"`
	EOSTokenID      int  `json:"eos_token_id"`
}

func (r *Runner) post(ctx context.Context, path string, in, out any) error {
	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.BaseURL+path, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runner returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r *Runner) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", r.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runner returned status %d: %s", resp.StatusCode, string(respBytes))
	}
	return json.Unmarshal(respBytes, out)
}

// Connect probes the runner and builds a Session around whatever model it
// currently has loaded.
func (r *Runner) Connect(ctx context.Context) (*Session, error) {
	var info runnerInfo
	if err := r.get(ctx, "/model_info", &info); err != nil {
		return nil, fmt.Errorf("model: runner unavailable: %w", err)
	}

	t := &runnerTokenizer{runner: r, hasChatTemplate: info.HasChatTemplate, eosTokenID: info.EOSTokenID}
	return &Session{Tokenizer: t, Backend: &runnerBackend{runner: r}, Info: info.Info}, nil
}

// LoadModel asks the runner to replace its model, then rebuilds the session.
func (r *Runner) LoadModel(ctx context.Context, modelID string) (*Session, error) {
	if err := r.post(ctx, "/load_model", loadModelRequest{ModelID: modelID}, nil); err != nil {
		return nil, err
	}
	return r.Connect(ctx)
}

// Loader returns a model.Loader backed by this runner.
func (r *Runner) Loader() Loader {
	return func(ctx context.Context, modelID string) (*Session, error) {
		if modelID == "" {
			return r.Connect(ctx)
		}
		return r.LoadModel(ctx, modelID)
	}
}

// runnerTokenizer implements Tokenizer over the runner API. Template
// availability and the EOS id are cached at connect time; everything else is
// a round trip.
type runnerTokenizer struct {
	runner          *Runner
	hasChatTemplate bool
	eosTokenID      int
}

func (t *runnerTokenizer) Encode(ctx context.Context, text string, addSpecialTokens bool) ([]int, error) {
	var resp encodeResponse
	err := t.runner.post(ctx, "/encode", encodeRequest{Text: text, AddSpecialTokens: addSpecialTokens}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.TokenIDs, nil
}

func (t *runnerTokenizer) Decode(ctx context.Context, ids []int) (string, error) {
	var resp decodeResponse
	if err := t.runner.post(ctx, "/decode", decodeRequest{TokenIDs: ids}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (t *runnerTokenizer) RawSubtoken(ctx context.Context, id int) (string, error) {
	var resp subtokensResponse
	if err := t.runner.post(ctx, "/subtokens", subtokensRequest{TokenIDs: []int{id}}, &resp); err != nil {
		return "", err
	}
	if len(resp.Subtokens) == 0 {
		return "", fmt.Errorf("runner returned no subtoken for id %d", id)
	}
	return resp.Subtokens[0], nil
}

func (t *runnerTokenizer) RenderChat(ctx context.Context, messages []ChatMessage, addGenerationPrompt bool) (string, error) {
	var resp renderChatResponse
	err := t.runner.post(ctx, "/render_chat", renderChatRequest{Messages: messages, AddGenerationPrompt: addGenerationPrompt}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (t *runnerTokenizer) HasChatTemplate() bool { return t.hasChatTemplate }

func (t *runnerTokenizer) EOSTokenID() int { return t.eosTokenID }

// runnerBackend implements Backend over the runner API.
type runnerBackend struct {
	runner *Runner
}

func (b *runnerBackend) NextLogits(ctx context.Context, ids []int) ([]float64, error) {
	var resp logitsResponse
	if err := b.runner.post(ctx, "/logits", logitsRequest{TokenIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Logits, nil
}

func (b *runnerBackend) SequenceLogits(ctx context.Context, ids []int) ([][]float64, error) {
	var resp logitsAllResponse
	if err := b.runner.post(ctx, "/logits_all", logitsRequest{TokenIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Logits, nil
}

func (b *runnerBackend) Close() error { return nil }
