package engine

import (
	"math"
	"math/rand"
)

// selectToken picks the next token from an extracted top-K distribution.
//
// Greedy (temperature <= 0) takes rank 0. Otherwise the K raw logits are
// rescaled by the temperature and re-softmaxed into a fresh categorical
// distribution confined to the top-K support, and one sample is drawn by
// inverse transform. The recorded base distribution is never touched;
// sampling works on the raw logits, not the rounded candidate probs.
func selectToken(ext extraction, temperature float64, rng *rand.Rand) (int, string) {
	if len(ext.ids) == 0 {
		return -1, SelectionGreedy
	}
	if temperature <= 0 {
		return ext.ids[0], SelectionGreedy
	}

	scaled := make([]float64, len(ext.logits))
	for i, l := range ext.logits {
		scaled[i] = l / temperature
	}
	probs := softmax(scaled)

	u := rng.Float64()
	cumulative := 0.0
	for i, p := range probs {
		cumulative += p
		if u < cumulative {
			return ext.ids[i], SelectionSampling
		}
	}
	// Numerical leftovers put u past the last interval; take the final
	// candidate.
	return ext.ids[len(ext.ids)-1], SelectionSampling
}

// crossEntropy is the single-label cross-entropy in nats, which for one true
// label is exactly the negative log probability of that label.
func crossEntropy(logprob float64) float64 {
	if math.IsInf(logprob, -1) {
		return math.Inf(1)
	}
	return -logprob
}
