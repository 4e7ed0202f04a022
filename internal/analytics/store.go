package analytics

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// ModelAggregate is a cross-trace rollup for one model.
type ModelAggregate struct {
	Model          string  `json:"model"`
	InferenceRuns  int     `json:"inference_runs"`
	TrainingRuns   int     `json:"training_runs"`
	MeanTopProb    float64 `json:"mean_top_prob"`
	MeanLoss       float64 `json:"mean_loss"`
	TotalInfSteps  int     `json:"total_inference_steps"`
	TotalTrainStep int     `json:"total_training_steps"`
}

// Store persists trace summaries in DuckDB for cross-run analysis.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and initializes) the statistics database.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "tracelens_stats.duckdb"
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create analytics directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB for analytics: %w", err)
	}

	store := &Store{db: db}
	if err := store.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) bootstrap() error {
	if _, err := s.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS inference_stats_seq;
		CREATE TABLE IF NOT EXISTS inference_stats (
			id INTEGER PRIMARY KEY DEFAULT nextval('inference_stats_seq'),
			model TEXT NOT NULL,
			steps INTEGER NOT NULL,
			greedy_steps INTEGER NOT NULL,
			sampled_steps INTEGER NOT NULL,
			mean_top_prob DOUBLE NOT NULL,
			mean_entropy DOUBLE NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("failed to create inference_stats table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS training_stats_seq;
		CREATE TABLE IF NOT EXISTS training_stats (
			id INTEGER PRIMARY KEY DEFAULT nextval('training_stats_seq'),
			model TEXT NOT NULL,
			source TEXT NOT NULL,
			steps INTEGER NOT NULL,
			mean_loss DOUBLE NOT NULL,
			mean_target_prob DOUBLE NOT NULL,
			max_loss DOUBLE NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("failed to create training_stats table: %w", err)
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

// RecordInference persists one inference summary.
func (s *Store) RecordInference(sum InferenceSummary) error {
	if s == nil || s.db == nil {
		return errors.New("analytics store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO inference_stats (model, steps, greedy_steps, sampled_steps, mean_top_prob, mean_entropy, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sum.Model, sum.Steps, sum.GreedySteps, sum.SampledSteps, sum.MeanTopProb, sum.MeanEntropy, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record inference summary: %w", err)
	}
	return nil
}

// RecordTraining persists one training summary.
func (s *Store) RecordTraining(sum TrainingSummary) error {
	if s == nil || s.db == nil {
		return errors.New("analytics store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO training_stats (model, source, steps, mean_loss, mean_target_prob, max_loss, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sum.Model, sum.Source, sum.Steps, sum.MeanLoss, sum.MeanTargetProb, sum.MaxLoss, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record training summary: %w", err)
	}
	return nil
}

// ModelAggregates rolls up the recorded summaries per model.
func (s *Store) ModelAggregates() ([]ModelAggregate, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("analytics store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT
			model,
			COALESCE(SUM(inference_runs), 0),
			COALESCE(SUM(training_runs), 0),
			COALESCE(AVG(mean_top_prob), 0),
			COALESCE(AVG(mean_loss), 0),
			COALESCE(SUM(inference_steps), 0),
			COALESCE(SUM(training_steps), 0)
		FROM (
			SELECT model, 1 AS inference_runs, 0 AS training_runs,
				mean_top_prob, NULL AS mean_loss,
				steps AS inference_steps, 0 AS training_steps
			FROM inference_stats
			UNION ALL
			SELECT model, 0, 1, NULL, mean_loss, 0, steps
			FROM training_stats
		)
		GROUP BY model
		ORDER BY model
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate statistics: %w", err)
	}
	defer rows.Close()

	var out []ModelAggregate
	for rows.Next() {
		var a ModelAggregate
		if err := rows.Scan(&a.Model, &a.InferenceRuns, &a.TrainingRuns, &a.MeanTopProb, &a.MeanLoss, &a.TotalInfSteps, &a.TotalTrainStep); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
