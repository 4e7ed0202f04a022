package engine

import (
	"context"
	"fmt"

	"TraceLens/internal/model"
)

// trainingTopK is fixed at 10 for parity with inference defaults.
const trainingTopK = 10

// TrainingParams configures one teacher-forced trace.
type TrainingParams struct {
	Text   string
	Source string

	// MaxTokens truncates the tokenized text when positive.
	MaxTokens int
}

// TeacherForce records, for every position of the fixed token sequence, the
// distribution the model assigns to the token that actually occurs there.
// No sampling is involved; the pass is fully deterministic.
func TeacherForce(ctx context.Context, sess *model.Session, p TrainingParams) (*TrainingTrace, error) {
	if sess == nil {
		return nil, model.ErrNotLoaded
	}

	tok := sess.Tokenizer

	ids, err := tok.Encode(ctx, p.Text, true)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to encode text: %w", err)
	}
	if p.MaxTokens > 0 && len(ids) > p.MaxTokens {
		ids = ids[:p.MaxTokens]
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("engine: text encoded to zero tokens")
	}

	tokens := displayTokens(ctx, tok, ids)

	logits, err := sess.Backend.SequenceLogits(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to obtain sequence logits: %w", err)
	}
	if len(logits) != len(ids) {
		return nil, fmt.Errorf("engine: sequence logits length %d does not match %d tokens", len(logits), len(ids))
	}

	trace := &TrainingTrace{
		Text:      p.Text,
		Source:    p.Source,
		Tokens:    tokens,
		TokenIDs:  append([]int(nil), ids...),
		NumTokens: len(ids),
		ModelInfo: sess.Info,
		Steps:     make([]TrainingStep, 0, len(ids)),
	}

	for step := range ids {
		// Position i is predicted by the model's output at position i-1.
		// Position 0 has no predecessor and uses the output at position 0
		// itself. That self-prediction is a compatibility quirk carried over
		// from the original data, not a general rule.
		logitsIdx := step - 1
		if step == 0 {
			logitsIdx = 0
		}
		row := logits[logitsIdx]

		targetID := ids[step]
		if targetID < 0 || targetID >= len(row) {
			return nil, fmt.Errorf("engine: step %d: target id %d outside vocabulary of %d", step, targetID, len(row))
		}

		probs := softmax(row)
		logprobs := logSoftmax(row)
		ext := extractTopK(ctx, tok, row, trainingTopK)

		targetLogprob := logprobs[targetID]

		trace.Steps = append(trace.Steps, TrainingStep{
			Step:          step,
			InputTokens:   append([]string{}, tokens[:step]...),
			InputTokenIDs: append([]int{}, ids[:step]...),
			TargetToken:   tokens[step],
			TargetTokenID: targetID,
			Predictions:   ext.dist.Candidates,
			TargetTokenPrediction: TokenCandidate{
				Token:   tokens[step],
				TokenID: targetID,
				Logprob: round4(targetLogprob),
				Prob:    round4(probs[targetID]),
			},
			TargetProb:    round4(probs[targetID]),
			TargetLogprob: round4(targetLogprob),
			Loss:          round4(crossEntropy(targetLogprob)),
		})
	}

	return trace, nil
}
