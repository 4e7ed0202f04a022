package analytics

import (
	"math"
	"testing"

	"TraceLens/internal/engine"
	"TraceLens/internal/model"
)

func TestSummarizeInference(t *testing.T) {
	trace := &engine.InferenceTrace{
		ModelInfo: model.Info{Name: "test-lm"},
		Steps: []engine.InferenceStep{
			{
				OutputDistribution: engine.Distribution{Candidates: []engine.TokenCandidate{
					{Prob: 0.8}, {Prob: 0.2},
				}},
				SelectedToken: engine.SelectedToken{SelectionMethod: engine.SelectionGreedy},
			},
			{
				OutputDistribution: engine.Distribution{Candidates: []engine.TokenCandidate{
					{Prob: 0.5}, {Prob: 0.5},
				}},
				SelectedToken: engine.SelectedToken{SelectionMethod: engine.SelectionSampling},
			},
		},
	}

	s := SummarizeInference(trace)

	if s.Model != "test-lm" || s.Steps != 2 {
		t.Errorf("summary = %+v", s)
	}
	if s.GreedySteps != 1 || s.SampledSteps != 1 {
		t.Errorf("selection counts = %d greedy / %d sampled", s.GreedySteps, s.SampledSteps)
	}
	if math.Abs(s.MeanTopProb-0.65) > 1e-12 {
		t.Errorf("mean top prob = %v, want 0.65", s.MeanTopProb)
	}

	// Step 1 is a fair coin: entropy ln 2. Step 0: -(0.8 ln 0.8 + 0.2 ln 0.2).
	h0 := -(0.8*math.Log(0.8) + 0.2*math.Log(0.2))
	want := (h0 + math.Ln2) / 2
	if math.Abs(s.MeanEntropy-want) > 1e-12 {
		t.Errorf("mean entropy = %v, want %v", s.MeanEntropy, want)
	}
}

func TestSummarizeInferenceEmpty(t *testing.T) {
	s := SummarizeInference(&engine.InferenceTrace{ModelInfo: model.Info{Name: "m"}})
	if s.Steps != 0 || s.MeanTopProb != 0 || s.MeanEntropy != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestSummarizeTraining(t *testing.T) {
	trace := &engine.TrainingTrace{
		ModelInfo: model.Info{Name: "test-lm"},
		Source:    "corpus.txt",
		Steps: []engine.TrainingStep{
			{Loss: 1.0, TargetProb: 0.4},
			{Loss: 3.0, TargetProb: 0.1},
		},
	}

	s := SummarizeTraining(trace)

	if s.Source != "corpus.txt" || s.Steps != 2 {
		t.Errorf("summary = %+v", s)
	}
	if s.MeanLoss != 2.0 {
		t.Errorf("mean loss = %v, want 2", s.MeanLoss)
	}
	if s.MaxLoss != 3.0 {
		t.Errorf("max loss = %v, want 3", s.MaxLoss)
	}
	if math.Abs(s.MeanTargetProb-0.25) > 1e-12 {
		t.Errorf("mean target prob = %v, want 0.25", s.MeanTargetProb)
	}
}

func TestDistributionEntropyIgnoresZeroMass(t *testing.T) {
	h := distributionEntropy([]engine.TokenCandidate{{Prob: 1.0}, {Prob: 0}})
	if h != 0 {
		t.Errorf("entropy = %v, want 0 for a point mass", h)
	}
}
