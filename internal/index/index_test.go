package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const inferenceDoc = `{
	"id": "inference_20240101_120000",
	"prompt": "2+2=",
	"language": "en",
	"temperature": 0.7,
	"top_k": 5,
	"model_info": {"name": "test-lm"},
	"generation_steps": [{"step": 0}, {"step": 1}]
}`

const trainingDoc = `{
	"text": "AB",
	"source": "corpus.txt",
	"model_info": {"name": "test-lm"},
	"training_steps": [{"step": 0}]
}`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanClassifiesTraces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inference_trace_1.json", inferenceDoc)
	writeFile(t, dir, "training_trace_1.json", trainingDoc)
	writeFile(t, dir, "notes.json", `{"unrelated": true}`)
	writeFile(t, dir, "examples.json", `{"examples": []}`)
	writeFile(t, dir, "readme.txt", "not json")

	store := newTestStore(t)
	n, err := store.Scan(dir, "examples.json")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("indexed = %d, want 2", n)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	byPath := make(map[string]Entry)
	for _, e := range entries {
		byPath[e.Path] = e
	}

	inf := byPath["inference_trace_1.json"]
	if inf.Type != KindInference || inf.NumTokens != 2 || inf.ModelID != "test-lm" {
		t.Errorf("inference entry = %+v", inf)
	}
	if inf.ID != "inference_20240101_120000" {
		t.Errorf("id = %q, want the document's own id", inf.ID)
	}
	if inf.Prompt != "2+2=" || inf.Description != "2+2=" {
		t.Errorf("prompt/description = %q / %q", inf.Prompt, inf.Description)
	}
	if inf.Language != "en" {
		t.Errorf("language = %q", inf.Language)
	}
	if inf.Temperature == nil || *inf.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", inf.Temperature)
	}
	if inf.TopK == nil || *inf.TopK != 5 {
		t.Errorf("top_k = %v, want 5", inf.TopK)
	}

	tr := byPath["training_trace_1.json"]
	if tr.Type != KindTraining || tr.NumTokens != 1 {
		t.Errorf("training entry = %+v", tr)
	}
	if tr.ID != "training_trace_1" {
		t.Errorf("id = %q, want filename stem fallback", tr.ID)
	}
	if tr.Description != "AB" || tr.Source != "corpus.txt" {
		t.Errorf("description/source = %q / %q", tr.Description, tr.Source)
	}
	if tr.Temperature != nil || tr.TopK != nil {
		t.Errorf("training entries carry no sampling settings: %+v", tr)
	}
}

func TestInspectFallbacksAndExcerpt(t *testing.T) {
	dir := t.TempDir()

	longText := strings.Repeat("x", 150)
	writeFile(t, dir, "cs-007-train.json",
		`{"text":"`+longText+`","model_info":{"name":"test-lm"},"training_steps":[{"step":0}]}`)

	entry, ok := inspect(filepath.Join(dir, "cs-007-train.json"))
	if !ok {
		t.Fatal("document not recognized")
	}
	if entry.ID != "cs-007-train" {
		t.Errorf("id = %q", entry.ID)
	}
	if entry.Language != "cs" {
		t.Errorf("language = %q, want code before the first dash", entry.Language)
	}
	if entry.Description != strings.Repeat("x", 100)+"..." {
		t.Errorf("description = %q, want 100-char excerpt with ellipsis", entry.Description)
	}

	// No dash, no language field: defaults to "en".
	writeFile(t, dir, "plain.json",
		`{"prompt":"hi","model_info":{"name":"m"},"generation_steps":[{"step":0}]}`)
	entry, ok = inspect(filepath.Join(dir, "plain.json"))
	if !ok {
		t.Fatal("document not recognized")
	}
	if entry.Language != "en" {
		t.Errorf("language = %q, want default en", entry.Language)
	}
	if entry.Temperature == nil || *entry.Temperature != 1.0 {
		t.Errorf("temperature = %v, want default 1.0", entry.Temperature)
	}
	if entry.TopK == nil || *entry.TopK != 10 {
		t.Errorf("top_k = %v, want default 10", entry.TopK)
	}
}

func TestScanIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trace.json", inferenceDoc)

	store := newTestStore(t)
	if _, err := store.Scan(dir, "examples.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Scan(dir, "examples.json"); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want rescans to upsert, not duplicate", len(entries))
	}
}

func TestWriteCatalogMergesExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trace.json", inferenceDoc)
	writeFile(t, dir, "examples.json", `{
		"examples": [
			{"id": "curated-001", "type": "inference", "prompt": "hand-made", "language": "en",
			 "description": "hand-made", "num_tokens": 9, "model_id": "hand-made", "file": "curated.json"}
		]
	}`)

	store := newTestStore(t)
	if _, err := store.Scan(dir, "examples.json"); err != nil {
		t.Fatal(err)
	}
	path, err := store.WriteCatalog(dir, "examples.json")
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		t.Fatal(err)
	}

	if len(catalog.Examples) != 2 {
		t.Fatalf("catalog = %+v, want curated entry kept", catalog)
	}
	if catalog.Examples[0].Path != "curated.json" || catalog.Examples[1].Path != "trace.json" {
		t.Errorf("catalog order = %+v", catalog.Examples)
	}
	if catalog.Examples[1].Prompt != "2+2=" || catalog.Examples[1].ID != "inference_20240101_120000" {
		t.Errorf("indexed entry = %+v", catalog.Examples[1])
	}
}

func TestScanWalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "batch1")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "trace.json", trainingDoc)

	store := newTestStore(t)
	if _, err := store.Scan(dir, "examples.json"); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != "batch1/trace.json" {
		t.Fatalf("entries = %+v, want forward-slash relative path", entries)
	}
}
