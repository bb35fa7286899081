// Package storage persists generated datasets.
//
// Information Hiding:
// - SQLite connection management hidden behind the store type
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ria-19/routegen/dedup"
	"github.com/ria-19/routegen/pipeline"
	"github.com/ria-19/routegen/schema"
)

// DatasetStore keeps accepted examples and run summaries in SQLite.
// The fingerprint column is UNIQUE, so the store doubles as the
// persistent backing for cross-run deduplication.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type DatasetStore struct {
	db *sql.DB
}

// OpenDataset opens or creates a dataset database at the given path.
// Creates parent directories if they don't exist.
func OpenDataset(path string) (*DatasetStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &DatasetStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewDatasetInMemory creates an in-memory database (useful for testing).
func NewDatasetInMemory() (*DatasetStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &DatasetStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *DatasetStore) Close() error {
	return s.db.Close()
}

func (s *DatasetStore) createSchema() error {
	ddl := `
		CREATE TABLE IF NOT EXISTS examples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL UNIQUE,
			user_query TEXT NOT NULL,
			status TEXT NOT NULL,
			tool_name TEXT,
			example_json TEXT NOT NULL,
			intent TEXT NOT NULL,
			domain TEXT NOT NULL,
			persona TEXT NOT NULL,
			backend TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_examples_status
		ON examples(status);

		CREATE INDEX IF NOT EXISTS idx_examples_intent
		ON examples(intent);

		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			target INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			rejections_json TEXT NOT NULL,
			backend_errors_json TEXT NOT NULL,
			finished_at INTEGER NOT NULL
		);
	`

	_, err := s.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Persist inserts one accepted example with its provenance.
func (s *DatasetStore) Persist(ctx context.Context, rec pipeline.Record) error {
	payload, err := json.Marshal(rec.Example)
	if err != nil {
		return fmt.Errorf("failed to encode example: %w", err)
	}

	var toolName interface{}
	if rec.Example.Output.ToolUse != nil {
		toolName = string(rec.Example.Output.ToolUse.Args.Tool())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO examples
		(fingerprint, user_query, status, tool_name, example_json, intent, domain, persona, backend, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint,
		rec.Example.UserQuery,
		string(rec.Example.Output.Status),
		toolName,
		string(payload),
		rec.Intent,
		rec.Domain,
		rec.Persona,
		rec.Backend,
		time.Now().Unix(),
	)
	if isDuplicateKey(err) {
		// Another run inserted the same fingerprint concurrently.
		return &dedup.DuplicateError{Fingerprint: dedup.Fingerprint(rec.Fingerprint)}
	}
	if err != nil {
		return fmt.Errorf("failed to insert example: %w", err)
	}
	return nil
}

// Remove takes back a persisted record, freeing its fingerprint. Used
// when a later sink in a MultiSink rejects the record: the store must
// not keep what the dataset file never received.
func (s *DatasetStore) Remove(ctx context.Context, rec pipeline.Record) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM examples WHERE fingerprint = ?", rec.Fingerprint)
	if err != nil {
		return fmt.Errorf("failed to remove example: %w", err)
	}
	return nil
}

// Add records a fingerprint, reporting whether it was new. Satisfies
// the deduplicator's persistent backing: an example already stored by
// a previous run is rejected before generation credits it again.
func (s *DatasetStore) Add(fp dedup.Fingerprint) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM examples WHERE fingerprint = ?",
		string(fp)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return count == 0, nil
}

// LoadFingerprints returns every stored fingerprint, used to warm the
// in-memory seen-set at startup.
func (s *DatasetStore) LoadFingerprints(ctx context.Context) ([]dedup.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM examples")
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	fps := []dedup.Fingerprint{}
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fps = append(fps, dedup.Fingerprint(fp))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprints: %w", err)
	}

	return fps, nil
}

// StoredExample is one persisted example with its provenance.
type StoredExample struct {
	Fingerprint string
	Example     schema.Example
	Intent      string
	Domain      string
	Persona     string
	Backend     string
}

// LoadExamples returns all stored examples in insertion order.
func (s *DatasetStore) LoadExamples(ctx context.Context) ([]StoredExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, example_json, intent, domain, persona, backend
		FROM examples
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	examples := []StoredExample{}
	for rows.Next() {
		var se StoredExample
		var payload string
		if err := rows.Scan(&se.Fingerprint, &payload, &se.Intent, &se.Domain, &se.Persona, &se.Backend); err != nil {
			return nil, fmt.Errorf("failed to scan example: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &se.Example); err != nil {
			return nil, fmt.Errorf("invalid example %s in database: %w", se.Fingerprint, err)
		}
		examples = append(examples, se)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating examples: %w", err)
	}

	return examples, nil
}

// CountByStatus returns how many stored examples carry each status.
func (s *DatasetStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM examples GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count examples: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// SaveRun records a finished run's summary.
func (s *DatasetStore) SaveRun(ctx context.Context, report pipeline.Report) error {
	rejections, err := json.Marshal(report.Rejections)
	if err != nil {
		return fmt.Errorf("failed to encode rejections: %w", err)
	}
	backendErrors, err := json.Marshal(report.BackendErrors)
	if err != nil {
		return fmt.Errorf("failed to encode backend errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, target, accepted, attempts, duplicates, rejections_json, backend_errors_json, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Target,
		report.Accepted,
		report.Attempts,
		report.Duplicates,
		string(rejections),
		string(backendErrors),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// DeleteExamplesByBackend removes every example produced by a backend,
// for purging output of a model later found to be contaminated.
func (s *DatasetStore) DeleteExamplesByBackend(ctx context.Context, backend string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM examples WHERE backend = ?", backend)
	if err != nil {
		return 0, fmt.Errorf("failed to delete examples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return n, nil
}

// isDuplicateKey reports whether an insert failed on the fingerprint
// UNIQUE constraint.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Verify DatasetStore satisfies the pipeline and dedup contracts.
var _ pipeline.Sink = (*DatasetStore)(nil)
var _ dedup.SeenSet = (*DatasetStore)(nil)
