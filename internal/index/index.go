package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Types of trace documents the catalog tracks.
const (
	KindInference = "inference"
	KindTraining  = "training"
)

// descriptionLimit caps the text excerpt used for training descriptions.
const descriptionLimit = 100

// Entry describes one indexed trace document, in the shape the web front-end
// consumes: identity, a human-readable description, and the sampling settings
// for inference traces.
type Entry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Prompt      string    `json:"prompt"`
	Language    string    `json:"language"`
	Description string    `json:"description"`
	NumTokens   int       `json:"num_tokens"`
	ModelID     string    `json:"model_id"`
	Path        string    `json:"file"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
	Source      string    `json:"source,omitempty"`
	IndexedAt   time.Time `json:"-"`
}

// Catalog is the JSON document written next to the trace files so web
// front-ends can enumerate them without a database driver.
type Catalog struct {
	Examples []Entry `json:"examples"`
}

// Store wraps a SQLite database that catalogs trace documents.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and initializes) the catalog database.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "tracelens_index.db"
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open trace index: %w", err)
	}

	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return fmt.Errorf("failed to configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS traces (
			path TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			prompt TEXT NOT NULL,
			language TEXT NOT NULL,
			description TEXT NOT NULL,
			num_tokens INTEGER NOT NULL,
			model_id TEXT NOT NULL,
			temperature REAL,
			top_k INTEGER,
			source TEXT NOT NULL DEFAULT '',
			indexed_at INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("failed to create traces table: %w", err)
	}

	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Scan walks dir for trace documents and upserts each into the catalog,
// keyed by path relative to dir. The catalog file itself and anything that
// is not a recognizable trace are skipped. Returns how many documents were
// indexed.
func (s *Store) Scan(dir, catalogName string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("trace index is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || d.Name() == catalogName {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}

		entry, ok := inspect(path)
		if !ok {
			return nil
		}
		entry.Path = filepath.ToSlash(rel)

		if _, err := s.db.Exec(`
			INSERT INTO traces (path, id, type, prompt, language, description, num_tokens, model_id, temperature, top_k, source, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				id = excluded.id,
				type = excluded.type,
				prompt = excluded.prompt,
				language = excluded.language,
				description = excluded.description,
				num_tokens = excluded.num_tokens,
				model_id = excluded.model_id,
				temperature = excluded.temperature,
				top_k = excluded.top_k,
				source = excluded.source,
				indexed_at = excluded.indexed_at
		`, entry.Path, entry.ID, entry.Type, entry.Prompt, entry.Language, entry.Description,
			entry.NumTokens, entry.ModelID, nullFloat(entry.Temperature), nullInt(entry.TopK),
			entry.Source, time.Now().Unix()); err != nil {
			return fmt.Errorf("failed to index %q: %w", entry.Path, err)
		}
		indexed++
		return nil
	})
	if err != nil {
		return indexed, fmt.Errorf("failed to scan %q: %w", dir, err)
	}
	return indexed, nil
}

// inspect classifies a JSON file as a trace document and pulls out the
// catalog fields. The document's own id and language win when present;
// otherwise both fall back to the filename (stem for the id, the part before
// the first dash for the language).
func inspect(path string) (Entry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}

	var probe struct {
		ID          string   `json:"id"`
		Type        string   `json:"type"`
		Prompt      string   `json:"prompt"`
		Text        string   `json:"text"`
		Language    string   `json:"language"`
		Source      string   `json:"source"`
		Temperature *float64 `json:"temperature"`
		TopK        *int     `json:"top_k"`
		ModelInfo   struct {
			Name string `json:"name"`
		} `json:"model_info"`
		GenerationSteps []json.RawMessage `json:"generation_steps"`
		TrainingSteps   []json.RawMessage `json:"training_steps"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Entry{}, false
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".json")

	e := Entry{
		ID:       probe.ID,
		Type:     probe.Type,
		Language: probe.Language,
		Source:   probe.Source,
		ModelID:  probe.ModelInfo.Name,
	}
	if e.ID == "" {
		e.ID = stem
	}
	if e.ModelID == "" {
		e.ModelID = "unknown"
	}

	switch {
	case probe.GenerationSteps != nil:
		if e.Type == "" {
			e.Type = KindInference
		}
		e.Prompt = probe.Prompt
		e.Description = probe.Prompt
		if e.Language == "" {
			e.Language = languageFromStem(stem)
		}
		temp, topK := 1.0, 10
		if probe.Temperature != nil {
			temp = *probe.Temperature
		}
		if probe.TopK != nil {
			topK = *probe.TopK
		}
		e.Temperature = &temp
		e.TopK = &topK
		e.NumTokens = len(probe.GenerationSteps)
		return e, true

	case probe.TrainingSteps != nil:
		if e.Type == "" {
			e.Type = KindTraining
		}
		e.Prompt = excerpt(probe.Text, descriptionLimit)
		e.Description = e.Prompt
		e.Language = languageFromStem(stem)
		e.NumTokens = len(probe.TrainingSteps)
		return e, true

	default:
		return Entry{}, false
	}
}

// excerpt truncates text to limit runes with an ellipsis suffix.
func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// languageFromStem reads a language code off file names like "en-001.json".
func languageFromStem(stem string) string {
	if i := strings.Index(stem, "-"); i > 0 {
		return stem[:i]
	}
	return "en"
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// List returns all indexed entries ordered by path.
func (s *Store) List() ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("trace index is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT path, id, type, prompt, language, description, num_tokens, model_id, temperature, top_k, source, indexed_at
		FROM traces ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var temp sql.NullFloat64
		var topK sql.NullInt64
		var at int64
		if err := rows.Scan(&e.Path, &e.ID, &e.Type, &e.Prompt, &e.Language, &e.Description,
			&e.NumTokens, &e.ModelID, &temp, &topK, &e.Source, &at); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		if temp.Valid {
			e.Temperature = &temp.Float64
		}
		if topK.Valid {
			k := int(topK.Int64)
			e.TopK = &k
		}
		e.IndexedAt = time.Unix(at, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WriteCatalog merges the indexed entries into the catalog file under dir.
// Existing catalog entries for paths the index does not know survive, so
// hand-curated examples are never dropped; indexed entries win on conflict.
func (s *Store) WriteCatalog(dir, catalogName string) (string, error) {
	entries, err := s.List()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, catalogName)
	merged := make(map[string]Entry)

	if data, err := os.ReadFile(path); err == nil {
		var existing Catalog
		if err := json.Unmarshal(data, &existing); err == nil {
			for _, e := range existing.Examples {
				merged[e.Path] = e
			}
		}
	}
	for _, e := range entries {
		merged[e.Path] = e
	}

	catalog := Catalog{Examples: make([]Entry, 0, len(merged))}
	for _, e := range merged {
		catalog.Examples = append(catalog.Examples, e)
	}
	sort.Slice(catalog.Examples, func(i, j int) bool {
		return catalog.Examples[i].Path < catalog.Examples[j].Path
	})

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write catalog %q: %w", path, err)
	}
	return path, nil
}
