// Package dataset reads input tables and writes enriched output tables.
//
// A Sink is transactional: the schema is declared with Open before any row
// is written, rows become visible only on Commit, and Abort discards
// everything written so far.
package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// Source reads a whole input table.
type Source interface {
	Read(ctx context.Context) (table.Schema, []table.Record, error)
}

// Sink receives the output table.
type Sink interface {
	Open(ctx context.Context, schema table.Schema) error
	Write(ctx context.Context, rows []table.Row) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Format names a file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatSQLite  Format = "sqlite"
	FormatParquet Format = "parquet"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatSQLite, FormatParquet:
		return f, nil
	default:
		return "", apierror.Configf("format", "unknown format %q", s)
	}
}

// Location points at a table on disk.
type Location struct {
	Format Format
	Path   string
	// Table is the SQLite table name.
	Table string
	// Delimiter is the CSV delimiter; ',' when zero.
	Delimiter rune
	// Compression is the Parquet codec name.
	Compression string
}

// NewSource returns a Source for loc.
func NewSource(loc Location) (Source, error) {
	if loc.Path == "" {
		return nil, apierror.Configf("input.path", "must not be empty")
	}
	switch loc.Format {
	case FormatCSV:
		return &CSVSource{Path: loc.Path, Delimiter: loc.Delimiter}, nil
	case FormatSQLite:
		return &SQLiteSource{Path: loc.Path, Table: loc.Table}, nil
	default:
		return nil, apierror.Configf("input.format", "cannot read %q", loc.Format)
	}
}

// NewSink returns a Sink for loc.
func NewSink(loc Location) (Sink, error) {
	if loc.Path == "" {
		return nil, apierror.Configf("output.path", "must not be empty")
	}
	switch loc.Format {
	case FormatCSV:
		return &CSVSink{Path: loc.Path, Delimiter: loc.Delimiter}, nil
	case FormatSQLite:
		return &SQLiteSink{Path: loc.Path, Table: loc.Table}, nil
	case FormatParquet:
		return &ParquetSink{Path: loc.Path, Compression: loc.Compression}, nil
	default:
		return nil, apierror.Configf("output.format", "cannot write %q", loc.Format)
	}
}

// formatValue renders a cell as text. Null becomes "".
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func checkRow(schema table.Schema, row table.Row) error {
	if len(row) != len(schema.Columns) {
		return apierror.Programmingf("row has %d values, schema has %d columns", len(row), len(schema.Columns))
	}
	return nil
}
