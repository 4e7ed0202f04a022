package engine

import (
	"context"
	"math"
	"sort"

	"TraceLens/internal/model"
)

// round4 matches the 4-digit rounding the trace serialization uses.
func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// softmax computes probabilities over the full logit vector with the usual
// max shift for numerical stability.
func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}

	probs := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		v := math.Exp(l - maxLogit)
		probs[i] = v
		sum += v
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}

// logSoftmax computes log probabilities directly from the logits so small
// probabilities do not round to -Inf via log(softmax).
func logSoftmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}

	sum := 0.0
	for _, l := range logits {
		sum += math.Exp(l - maxLogit)
	}
	logSum := maxLogit + math.Log(sum)

	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = l - logSum
	}
	return out
}

// topKIndices returns the indices of the k highest probabilities, sorted by
// descending prob with token id ascending as the tie-break. The tie-break
// keeps extraction deterministic for a fixed logit vector.
func topKIndices(probs []float64, k int) []int {
	if k > len(probs) {
		k = len(probs)
	}

	indices := make([]int, len(probs))
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(i, j int) bool {
		if probs[indices[i]] != probs[indices[j]] {
			return probs[indices[i]] > probs[indices[j]]
		}
		return indices[i] < indices[j]
	})
	return indices[:k]
}

// extraction is the result of one distribution extraction: the serializable
// top-K distribution plus the raw material the sampler needs.
type extraction struct {
	dist   Distribution
	ids    []int     // top-K token ids, rank order
	logits []float64 // raw logits for those ids, rank order
}

// extractTopK computes the base (temperature-1) distribution over the full
// vocabulary and keeps the K highest-probability candidates. requestedK is
// recorded as-is in the distribution; the candidate count is clamped to the
// vocabulary size.
func extractTopK(ctx context.Context, tok model.Tokenizer, logits []float64, requestedK int) extraction {
	probs := softmax(logits)
	logprobs := logSoftmax(logits)

	top := topKIndices(probs, requestedK)

	candidates := make([]TokenCandidate, 0, len(top))
	topLogits := make([]float64, 0, len(top))
	for _, id := range top {
		candidates = append(candidates, TokenCandidate{
			Token:   DisplayToken(ctx, tok, id),
			TokenID: id,
			Logprob: round4(logprobs[id]),
			Prob:    round4(probs[id]),
		})
		topLogits = append(topLogits, logits[id])
	}

	return extraction{
		dist:   Distribution{TopK: requestedK, Candidates: candidates},
		ids:    top,
		logits: topLogits,
	}
}
