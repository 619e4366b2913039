package dataset

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// MemorySource serves a fixed table.
type MemorySource struct {
	Schema  table.Schema
	Records []table.Record
}

// Read implements Source.
func (s *MemorySource) Read(ctx context.Context) (table.Schema, []table.Record, error) {
	return s.Schema, s.Records, nil
}

// MemorySink keeps the committed table in memory.
type MemorySink struct {
	mu        sync.Mutex
	schema    table.Schema
	pending   []table.Row
	rows      []table.Row
	open      bool
	committed bool
	aborted   bool
}

// Open implements Sink.
func (s *MemorySink) Open(ctx context.Context, schema table.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = schema
	s.pending = nil
	s.open = true
	return nil
}

// Write implements Sink.
func (s *MemorySink) Write(ctx context.Context, rows []table.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return fmt.Errorf("memory sink not open")
	}
	for _, row := range rows {
		if err := checkRow(s.schema, row); err != nil {
			return err
		}
		s.pending = append(s.pending, append(table.Row(nil), row...))
	}
	return nil
}

// Commit implements Sink.
func (s *MemorySink) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return fmt.Errorf("memory sink not open")
	}
	s.rows, s.pending = s.pending, nil
	s.open = false
	s.committed = true
	return nil
}

// Abort implements Sink.
func (s *MemorySink) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.open = false
	s.aborted = true
	return nil
}

// Schema returns the schema passed to Open.
func (s *MemorySink) Schema() table.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

// Rows returns the committed rows.
func (s *MemorySink) Rows() []table.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Committed reports whether Commit succeeded.
func (s *MemorySink) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Aborted reports whether Abort was called.
func (s *MemorySink) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}
