package model

import (
	"context"
	"errors"
)

// ErrNotLoaded is returned when a trace request arrives before any model
// session has been established.
var ErrNotLoaded = errors.New("model: no session loaded")

// ChatMessage is a single turn handed to the tokenizer's chat template.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Info describes the loaded model. It is copied verbatim into trace
// documents so a saved trace records which model produced it.
type Info struct {
	Name              string `json:"name"`
	Architecture      string `json:"architecture,omitempty"`
	NumLayers         int    `json:"num_layers"`
	HiddenSize        int    `json:"hidden_size"`
	NumAttentionHeads int    `json:"num_attention_heads"`
	VocabSize         int    `json:"vocab_size"`
	TotalParameters   int64  `json:"total_parameters,omitempty"`
	Pretrained        bool   `json:"pretrained,omitempty"`
}

// Tokenizer is the text side of the model collaborator. Implementations are
// typically remote, so every call takes a context and may fail.
type Tokenizer interface {
	// Encode converts text into token ids. When addSpecialTokens is false the
	// tokenizer must not prepend BOS or similar structural tokens; chat-formatted
	// text already contains them.
	Encode(ctx context.Context, text string, addSpecialTokens bool) ([]int, error)

	// Decode converts token ids back into text, retaining special tokens.
	Decode(ctx context.Context, ids []int) (string, error)

	// RawSubtoken returns the tokenizer's internal sub-token string for a
	// single id (e.g. "Ġworld" for a leading-space token).
	RawSubtoken(ctx context.Context, id int) (string, error)

	// RenderChat applies the chat template to the messages, optionally
	// appending the generation-prompt marker for the assistant turn.
	RenderChat(ctx context.Context, messages []ChatMessage, addGenerationPrompt bool) (string, error)

	// HasChatTemplate reports whether the tokenizer ships a chat template.
	HasChatTemplate() bool

	// EOSTokenID is the end-of-sequence token id.
	EOSTokenID() int
}

// Backend is the logits side of the model collaborator.
type Backend interface {
	// NextLogits returns the logit vector for the position following the
	// given context, i.e. the model's prediction at the last position.
	NextLogits(ctx context.Context, ids []int) ([]float64, error)

	// SequenceLogits returns one logit vector per input position for the
	// whole sequence in a single forward pass (teacher-forced mode).
	SequenceLogits(ctx context.Context, ids []int) ([][]float64, error)

	Close() error
}

// Session bundles a loaded tokenizer and backend with the model metadata
// captured at load time. A Session is immutable; replacing the model swaps
// in a fresh Session rather than mutating this one.
type Session struct {
	Tokenizer Tokenizer
	Backend   Backend
	Info      Info
}
