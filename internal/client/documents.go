package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"TraceLens/internal/engine"
)

// InferenceDocument is the stored form of an inference trace: the filtered
// trace plus the identity fields front-ends key on.
type InferenceDocument struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
	*engine.InferenceTrace
}

// TrainingDocument is the stored form of a training trace.
type TrainingDocument struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	*engine.TrainingTrace
}

// SaveInference writes an inference trace under dir with a timestamped name
// and returns the path. Steps that selected a line-break token are dropped
// and the remaining arrays cleaned of line-break tokens before writing.
// language tags the document for the catalog; empty defaults to "en".
func SaveInference(dir string, trace *engine.InferenceTrace, language string) (string, error) {
	if language == "" {
		language = "en"
	}
	stamp := time.Now().Format("20060102_150405")
	doc := InferenceDocument{
		ID:             "inference_" + stamp,
		Language:       language,
		InferenceTrace: engine.FilterInference(trace, engine.LineBreakToken),
	}
	return save(dir, "inference_trace", stamp, doc)
}

// SaveTraining writes a training trace under dir with a timestamped name and
// returns the path. Training traces are stored unfiltered.
func SaveTraining(dir string, trace *engine.TrainingTrace) (string, error) {
	stamp := time.Now().Format("20060102_150405")
	doc := TrainingDocument{
		ID:            "training_" + stamp,
		Type:          "training",
		TrainingTrace: trace,
	}
	return save(dir, "training_trace", stamp, doc)
}

func save(dir, prefix, stamp string, doc any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create trace directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", prefix, stamp))

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write trace %q: %w", path, err)
	}
	return path, nil
}
