package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"TraceLens/internal/engine"
)

func TestCheckServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","model_loaded":true}`))
	}))
	defer srv.Close()

	loaded, err := New(srv.URL).CheckServer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !loaded {
		t.Error("model_loaded = false, want true")
	}
}

func TestCheckServerUnreachable(t *testing.T) {
	if _, err := New("http://127.0.0.1:1").CheckServer(context.Background()); err == nil {
		t.Fatal("want error for unreachable service")
	}
}

func TestGenerateSendsOptionsAndDecodesTrace(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prompt":"hi","max_new_tokens":3,"top_k":5,"generation_steps":[{"step":0,"selected_token":{"token":"x","token_id":7,"selection_method":"greedy"}}]}`))
	}))
	defer srv.Close()

	temp := 0.7
	trace, err := New(srv.URL).Generate(context.Background(), GenerateOptions{
		Prompt:       "hi",
		MaxNewTokens: 3,
		Temperature:  &temp,
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotBody["prompt"] != "hi" || gotBody["max_new_tokens"] != float64(3) {
		t.Errorf("request body = %v", gotBody)
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", gotBody["temperature"])
	}
	if _, ok := gotBody["top_k"]; ok {
		t.Error("zero top_k should be omitted so the service default applies")
	}

	if len(trace.Steps) != 1 || trace.Steps[0].SelectedToken.TokenID != 7 {
		t.Errorf("trace = %+v", trace)
	}
}

func TestErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ProcessTraining(context.Background(), TrainingOptions{Text: "x"})
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error = %q, want service message surfaced", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %q, want status code", err)
	}
}

func TestSaveInferenceFiltersAndWrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")

	trace := &engine.InferenceTrace{
		Prompt: "hi",
		Steps: []engine.InferenceStep{
			{
				Step:          0,
				InputText:     "a\nb",
				Tokens:        []string{"a", "\n", "b"},
				TokenIDs:      []int{1, 2, 3},
				SelectedToken: engine.SelectedToken{Token: "c", TokenID: 4},
			},
			{
				Step:          1,
				SelectedToken: engine.SelectedToken{Token: "\n", TokenID: 2},
			},
		},
	}

	path, err := SaveInference(dir, trace, "cs")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(path), "inference_trace_") {
		t.Errorf("file name = %q", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved InferenceDocument
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(saved.ID, "inference_") {
		t.Errorf("document id = %q", saved.ID)
	}
	if saved.Language != "cs" {
		t.Errorf("language = %q", saved.Language)
	}
	if len(saved.Steps) != 1 {
		t.Fatalf("saved steps = %d, want line-break selection dropped", len(saved.Steps))
	}
	if saved.Steps[0].InputText != "ab" {
		t.Errorf("input text = %q", saved.Steps[0].InputText)
	}
	if len(saved.Steps[0].Tokens) != 2 {
		t.Errorf("tokens = %v", saved.Steps[0].Tokens)
	}
}

func TestSaveInferenceDefaultsLanguage(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveInference(dir, &engine.InferenceTrace{Prompt: "hi"}, "")
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved InferenceDocument
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Language != "en" {
		t.Errorf("language = %q, want en default", saved.Language)
	}
}

func TestSaveTrainingWritesUnfiltered(t *testing.T) {
	dir := t.TempDir()
	trace := &engine.TrainingTrace{
		Text:      "a\nb",
		NumTokens: 2,
		Steps:     []engine.TrainingStep{{Step: 0, TargetToken: "\n"}},
	}

	path, err := SaveTraining(dir, trace)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved TrainingDocument
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Type != "training" {
		t.Errorf("document type = %q", saved.Type)
	}
	if len(saved.Steps) != 1 || saved.Steps[0].TargetToken != "\n" {
		t.Errorf("training traces must not be filtered: %+v", saved)
	}
}
