package engine

import "strings"

// TokenPredicate reports whether a display token should be excluded from a
// filtered trace.
type TokenPredicate func(token string) bool

// LineBreakToken is the default exclusion predicate: any token containing a
// line-break character ("\n", "\n\n", "\r\n", ...).
func LineBreakToken(token string) bool {
	return strings.ContainsAny(token, "\n\r")
}

func stripLineBreaks(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	return strings.ReplaceAll(text, "\n", "")
}

// FilterInference produces a new trace with excluded tokens removed:
//
//   - steps whose *selected* token matches the predicate are dropped whole;
//   - within surviving steps, matching positions are removed from tokens,
//     token_ids and every parallel embeddings array using one shared
//     keep-list, so the arrays stay index-aligned;
//   - line-break characters are stripped from input_text at the character
//     level, independent of token filtering;
//   - surviving steps are renumbered to a contiguous 0-based sequence.
//
// The input trace is not modified; filtering is a pure function and
// re-filtering its own output is a no-op.
func FilterInference(t *InferenceTrace, exclude TokenPredicate) *InferenceTrace {
	if t == nil {
		return nil
	}
	if exclude == nil {
		exclude = LineBreakToken
	}

	out := *t
	out.Steps = make([]InferenceStep, 0, len(t.Steps))

	for _, step := range t.Steps {
		if exclude(step.SelectedToken.Token) {
			continue
		}

		keep := make([]int, 0, len(step.Tokens))
		for i, token := range step.Tokens {
			if !exclude(token) {
				keep = append(keep, i)
			}
		}

		filtered := step
		filtered.Step = len(out.Steps)
		filtered.InputText = stripLineBreaks(step.InputText)
		filtered.Tokens = make([]string, 0, len(keep))
		filtered.TokenIDs = make([]int, 0, len(keep))
		for _, i := range keep {
			filtered.Tokens = append(filtered.Tokens, step.Tokens[i])
			if i < len(step.TokenIDs) {
				filtered.TokenIDs = append(filtered.TokenIDs, step.TokenIDs[i])
			}
		}

		if len(step.Embeddings) > 0 {
			filtered.Embeddings = make(map[string][][]float64, len(step.Embeddings))
			for name, rows := range step.Embeddings {
				kept := make([][]float64, 0, len(keep))
				for _, i := range keep {
					if i < len(rows) {
						kept = append(kept, rows[i])
					}
				}
				filtered.Embeddings[name] = kept
			}
		}

		out.Steps = append(out.Steps, filtered)
	}

	return &out
}
