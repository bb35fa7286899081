package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ria-19/routegen/pipeline"
	"github.com/ria-19/routegen/schema"
)

// JSONLSink appends accepted examples to a JSON Lines file, one
// example per line. Writes are serialized by a mutex and flushed per
// record, so a crash loses at most the record being written.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// jsonlRecord is the on-disk line format: the example plus provenance.
type jsonlRecord struct {
	Fingerprint string         `json:"fingerprint"`
	Intent      string         `json:"intent"`
	Domain      string         `json:"domain"`
	Persona     string         `json:"persona"`
	Backend     string         `json:"backend"`
	Example     schema.Example `json:"example"`
}

// OpenJSONL opens a sink appending to the given path, creating the
// file if needed.
func OpenJSONL(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	return &JSONLSink{file: f, buf: bufio.NewWriter(f)}, nil
}

// Persist writes one record as a single line. The line is built in
// memory first so a marshal error never emits a partial line.
func (s *JSONLSink) Persist(_ context.Context, rec pipeline.Record) error {
	line, err := json.Marshal(jsonlRecord{
		Fingerprint: rec.Fingerprint,
		Intent:      rec.Intent,
		Domain:      rec.Domain,
		Persona:     rec.Persona,
		Backend:     rec.Backend,
		Example:     *rec.Example,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush dataset file: %w", err)
	}
	return s.file.Close()
}

// ReadJSONL loads every record from a JSON Lines dataset file. Blank
// lines are skipped; a malformed line is an error with its number.
func ReadJSONL(path string) ([]pipeline.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	records := []pipeline.Record{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		example := rec.Example
		records = append(records, pipeline.Record{
			Example:     &example,
			Fingerprint: rec.Fingerprint,
			Intent:      rec.Intent,
			Domain:      rec.Domain,
			Persona:     rec.Persona,
			Backend:     rec.Backend,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}

	return records, nil
}

// MultiSink fans a record out to several sinks in order. When a sink
// fails, earlier sinks that support removal take the record back, so
// the record either lands in every sink or in none that can undo.
type MultiSink []pipeline.Sink

// remover is implemented by sinks that can take back a persisted
// record (the SQLite store; an append-only file cannot).
type remover interface {
	Remove(ctx context.Context, rec pipeline.Record) error
}

func (m MultiSink) Persist(ctx context.Context, rec pipeline.Record) error {
	for i, sink := range m {
		err := sink.Persist(ctx, rec)
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if r, ok := m[j].(remover); ok {
				if rerr := r.Remove(ctx, rec); rerr != nil {
					return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
				}
			}
		}
		return err
	}
	return nil
}

var _ pipeline.Sink = (*JSONLSink)(nil)
var _ pipeline.Sink = (MultiSink)(nil)
