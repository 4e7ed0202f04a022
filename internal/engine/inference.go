package engine

import (
	"context"
	"fmt"
	"math/rand"

	"TraceLens/internal/model"
)

// InferenceParams configures one generation trace.
type InferenceParams struct {
	Prompt            string
	MaxNewTokens      int
	TopK              int
	Temperature       float64
	ApplyChatTemplate bool

	// Rand is the random source for temperature sampling. Callers that need
	// reproducible traces pass a seeded source; nil falls back to the global
	// one.
	Rand *rand.Rand
}

// Infer runs the autoregressive recording loop: one step per generated
// token, each capturing the visible context, the base top-K distribution and
// the selected token. Generation stops at MaxNewTokens or right after the
// step that selects the EOS token.
func Infer(ctx context.Context, sess *model.Session, p InferenceParams) (*InferenceTrace, error) {
	if sess == nil {
		return nil, model.ErrNotLoaded
	}
	if p.MaxNewTokens <= 0 {
		return nil, fmt.Errorf("engine: max_new_tokens must be positive, got %d", p.MaxNewTokens)
	}
	if p.TopK <= 0 {
		return nil, fmt.Errorf("engine: top_k must be positive, got %d", p.TopK)
	}

	tok := sess.Tokenizer

	text := p.Prompt
	chatApplied := false
	boundary := Boundary{}
	if p.ApplyChatTemplate && tok.HasChatTemplate() {
		messages := []model.ChatMessage{{Role: "user", Content: p.Prompt}}
		rendered, err := tok.RenderChat(ctx, messages, true)
		if err != nil {
			return nil, fmt.Errorf("engine: failed to render chat template: %w", err)
		}
		text = rendered
		chatApplied = true
		boundary = ResolveBoundary(ctx, tok, messages, p.Prompt)
	}

	// Chat-formatted text already carries its special tokens; adding them
	// again would double the BOS.
	ids, err := tok.Encode(ctx, text, !chatApplied)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to encode prompt: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("engine: prompt encoded to zero tokens")
	}

	stream := newDisplayStream(ctx, tok, chatApplied, ids, boundary.TokenOffset)

	rng := p.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	trace := &InferenceTrace{
		Prompt:          p.Prompt,
		FormattedPrompt: text,
		MaxNewTokens:    p.MaxNewTokens,
		TopK:            p.TopK,
		Temperature:     p.Temperature,
		ModelInfo:       sess.Info,
		Steps:           make([]InferenceStep, 0, p.MaxNewTokens),
	}

	for step := 0; step < p.MaxNewTokens; step++ {
		logits, err := sess.Backend.NextLogits(ctx, stream.contextIDs)
		if err != nil {
			return nil, fmt.Errorf("engine: step %d: failed to obtain logits: %w", step, err)
		}

		ext := extractTopK(ctx, tok, logits, p.TopK)
		selectedID, method := selectToken(ext, p.Temperature, rng)
		if selectedID < 0 {
			return nil, fmt.Errorf("engine: step %d: empty distribution", step)
		}
		selectedToken := DisplayToken(ctx, tok, selectedID)

		tokens, tokenIDs, inputText, err := stream.snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: step %d: failed to build display stream: %w", step, err)
		}

		trace.Steps = append(trace.Steps, InferenceStep{
			Step:               step,
			InputText:          inputText,
			Tokens:             tokens,
			TokenIDs:           tokenIDs,
			OutputDistribution: ext.dist,
			SelectedToken: SelectedToken{
				Token:           selectedToken,
				TokenID:         selectedID,
				SelectionMethod: method,
			},
		})

		// The selection joins the visible stream and the model context only
		// after its step is recorded.
		stream.commit(selectedID, selectedToken)

		if selectedID == tok.EOSTokenID() {
			break
		}
	}

	return trace, nil
}
