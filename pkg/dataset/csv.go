package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// CSVSource reads a CSV file with a header row. All values are strings.
type CSVSource struct {
	Path      string
	Delimiter rune
}

// Read implements Source.
func (s *CSVSource) Read(ctx context.Context) (table.Schema, []table.Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return table.Schema{}, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if s.Delimiter != 0 {
		reader.Comma = s.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return table.Schema{}, nil, fmt.Errorf("parse csv: empty file")
		}
		return table.Schema{}, nil, fmt.Errorf("parse csv header: %w", err)
	}

	var records []table.Record
	for {
		if err := ctx.Err(); err != nil {
			return table.Schema{}, nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return table.Schema{}, nil, fmt.Errorf("parse csv row %d: %w", len(records)+1, err)
		}
		records = append(records, table.NewRecord(len(records), header, row))
	}
	return table.StringSchema(header), records, nil
}

// CSVSink writes to a temporary file next to Path and renames it on Commit.
type CSVSink struct {
	Path      string
	Delimiter rune

	schema table.Schema
	file   *os.File
	writer *csv.Writer
}

// Open implements Sink.
func (s *CSVSink) Open(ctx context.Context, schema table.Schema) error {
	dir, base := filepath.Split(s.Path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	s.schema = schema
	s.file = f
	s.writer = csv.NewWriter(f)
	if s.Delimiter != 0 {
		s.writer.Comma = s.Delimiter
	}
	if err := s.writer.Write(schema.Names()); err != nil {
		werr := fmt.Errorf("write header: %w", err)
		if aerr := s.Abort(ctx); aerr != nil {
			return multierror.Append(werr, aerr)
		}
		return werr
	}
	return nil
}

// Write implements Sink.
func (s *CSVSink) Write(ctx context.Context, rows []table.Row) error {
	if s.writer == nil {
		return fmt.Errorf("csv sink not open")
	}
	record := make([]string, len(s.schema.Columns))
	for _, row := range rows {
		if err := checkRow(s.schema, row); err != nil {
			return err
		}
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := s.writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return nil
}

// Commit implements Sink.
func (s *CSVSink) Commit(ctx context.Context) error {
	if s.file == nil {
		return fmt.Errorf("csv sink not open")
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		_ = s.Abort(ctx)
		return fmt.Errorf("flush csv: %w", err)
	}
	tmp := s.file.Name()
	if err := s.file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	s.file = nil
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// Abort implements Sink.
func (s *CSVSink) Abort(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	tmp := s.file.Name()
	var result error
	if err := s.file.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, fmt.Errorf("remove temp file: %w", err))
	}
	s.file = nil
	s.writer = nil
	return result
}
