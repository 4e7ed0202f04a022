package analytics

import (
	"math"

	"TraceLens/internal/engine"
)

// InferenceSummary aggregates one recorded generation trace.
type InferenceSummary struct {
	Model        string  `json:"model"`
	Steps        int     `json:"steps"`
	GreedySteps  int     `json:"greedy_steps"`
	SampledSteps int     `json:"sampled_steps"`
	MeanTopProb  float64 `json:"mean_top_prob"`
	MeanEntropy  float64 `json:"mean_entropy"`
}

// TrainingSummary aggregates one teacher-forced trace.
type TrainingSummary struct {
	Model          string  `json:"model"`
	Source         string  `json:"source"`
	Steps          int     `json:"steps"`
	MeanLoss       float64 `json:"mean_loss"`
	MeanTargetProb float64 `json:"mean_target_prob"`
	MaxLoss        float64 `json:"max_loss"`
}

// SummarizeInference computes per-trace aggregates: how confident the model
// was (mean rank-0 probability), how spread its choices were (mean entropy of
// the recorded top-K mass) and how selections were made.
func SummarizeInference(t *engine.InferenceTrace) InferenceSummary {
	s := InferenceSummary{Model: t.ModelInfo.Name, Steps: len(t.Steps)}
	if len(t.Steps) == 0 {
		return s
	}

	var topProb, entropy float64
	for _, step := range t.Steps {
		if len(step.OutputDistribution.Candidates) > 0 {
			topProb += step.OutputDistribution.Candidates[0].Prob
		}
		entropy += distributionEntropy(step.OutputDistribution.Candidates)

		switch step.SelectedToken.SelectionMethod {
		case engine.SelectionGreedy:
			s.GreedySteps++
		case engine.SelectionSampling:
			s.SampledSteps++
		}
	}

	n := float64(len(t.Steps))
	s.MeanTopProb = topProb / n
	s.MeanEntropy = entropy / n
	return s
}

// SummarizeTraining computes per-trace loss aggregates.
func SummarizeTraining(t *engine.TrainingTrace) TrainingSummary {
	s := TrainingSummary{Model: t.ModelInfo.Name, Source: t.Source, Steps: len(t.Steps)}
	if len(t.Steps) == 0 {
		return s
	}

	var loss, prob float64
	for _, step := range t.Steps {
		loss += step.Loss
		prob += step.TargetProb
		if step.Loss > s.MaxLoss {
			s.MaxLoss = step.Loss
		}
	}

	n := float64(len(t.Steps))
	s.MeanLoss = loss / n
	s.MeanTargetProb = prob / n
	return s
}

// distributionEntropy computes Shannon entropy (nats) over the recorded
// candidate mass. The top-K mass need not sum to one; the tail is ignored
// rather than renormalized so traces with different K stay comparable.
func distributionEntropy(candidates []engine.TokenCandidate) float64 {
	var h float64
	for _, c := range candidates {
		if c.Prob > 0 {
			h -= c.Prob * math.Log(c.Prob)
		}
	}
	return h
}
