package engine

import "TraceLens/internal/model"

// Selection methods recorded on each inference step.
const (
	SelectionGreedy   = "greedy"
	SelectionSampling = "sampling"
)

// TokenCandidate is one entry of a recorded probability distribution.
// Prob and Logprob are rounded to 4 decimal digits at construction; the
// invariant prob == exp(logprob) holds within that rounding.
type TokenCandidate struct {
	Token   string  `json:"token"`
	TokenID int     `json:"token_id"`
	Logprob float64 `json:"logprob"`
	Prob    float64 `json:"prob"`
}

// Distribution is the base (temperature-independent) top-K distribution the
// model assigned at one position. Candidates are sorted by descending prob.
type Distribution struct {
	TopK       int              `json:"top_k"`
	Candidates []TokenCandidate `json:"candidates"`
}

// SelectedToken records which token the sampler committed and how.
type SelectedToken struct {
	Token           string `json:"token"`
	TokenID         int    `json:"token_id"`
	SelectionMethod string `json:"selection_method"`
}

// InferenceStep is one autoregressive generation step. Tokens, TokenIDs and
// InputText describe the context visible *before* this step's selection.
type InferenceStep struct {
	Step               int           `json:"step"`
	InputText          string        `json:"input_text"`
	Tokens             []string      `json:"tokens"`
	TokenIDs           []int         `json:"token_ids"`
	OutputDistribution Distribution  `json:"output_distribution"`
	SelectedToken      SelectedToken `json:"selected_token"`

	// Embeddings holds optional per-token arrays parallel to Tokens,
	// keyed by layer or projection name. The post-trace filter keeps them
	// index-aligned with Tokens.
	Embeddings map[string][][]float64 `json:"embeddings,omitempty"`
}

// TrainingStep is one teacher-forced prediction: given the true prefix,
// what the model assigned to the token that actually occurs next.
// TargetTokenPrediction restates the target's own scores as a candidate
// object so consumers need not search Predictions (the target may fall
// outside the top-K).
type TrainingStep struct {
	Step                  int              `json:"step"`
	InputTokens           []string         `json:"input_tokens"`
	InputTokenIDs         []int            `json:"input_token_ids"`
	TargetToken           string           `json:"target_token"`
	TargetTokenID         int              `json:"target_token_id"`
	Predictions           []TokenCandidate `json:"predictions"`
	TargetTokenPrediction TokenCandidate   `json:"target_token_prediction"`
	TargetProb            float64          `json:"target_prob"`
	TargetLogprob         float64          `json:"target_logprob"`
	Loss                  float64          `json:"loss"`
}

// InferenceTrace is the full record of one generation request.
type InferenceTrace struct {
	Prompt          string          `json:"prompt"`
	FormattedPrompt string          `json:"formatted_prompt"`
	MaxNewTokens    int             `json:"max_new_tokens"`
	TopK            int             `json:"top_k"`
	Temperature     float64         `json:"temperature"`
	ModelInfo       model.Info      `json:"model_info"`
	Steps           []InferenceStep `json:"generation_steps"`
}

// TrainingTrace is the full record of one teacher-forced pass.
type TrainingTrace struct {
	Text      string         `json:"text"`
	Source    string         `json:"source"`
	Tokens    []string       `json:"tokens"`
	TokenIDs  []int          `json:"token_ids"`
	NumTokens int            `json:"num_tokens"`
	ModelInfo model.Info     `json:"model_info"`
	Steps     []TrainingStep `json:"training_steps"`
}
