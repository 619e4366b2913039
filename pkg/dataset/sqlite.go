package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

const sqliteDriver = "sqlite"

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteType(t table.ColumnType) string {
	switch t {
	case table.TypeDouble:
		return "REAL"
	case table.TypeInt64:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// SQLiteSource reads every row of Table from the database at Path.
type SQLiteSource struct {
	Path  string
	Table string
}

// Read implements Source.
func (s *SQLiteSource) Read(ctx context.Context) (table.Schema, []table.Record, error) {
	if s.Table == "" {
		return table.Schema{}, nil, apierror.Configf("input.table", "must not be empty")
	}
	db, err := sql.Open(sqliteDriver, s.Path)
	if err != nil {
		return table.Schema{}, nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(s.Table))
	if err != nil {
		return table.Schema{}, nil, fmt.Errorf("query %s: %w", s.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return table.Schema{}, nil, fmt.Errorf("read columns: %w", err)
	}
	schema := table.Schema{Columns: make([]table.Column, len(columns))}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			schema.Columns[i] = table.Column{Name: columns[i], Type: columnTypeOf(ct.DatabaseTypeName())}
		}
	} else {
		schema = table.StringSchema(columns)
	}

	var records []table.Record
	for rows.Next() {
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return table.Schema{}, nil, fmt.Errorf("scan row %d: %w", len(records), err)
		}
		values := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := dest[i].([]byte); ok {
				values[col] = string(b)
				continue
			}
			values[col] = dest[i]
		}
		records = append(records, table.Record{Index: len(records), Values: values})
	}
	if err := rows.Err(); err != nil {
		return table.Schema{}, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return schema, records, nil
}

func columnTypeOf(declared string) table.ColumnType {
	switch strings.ToUpper(declared) {
	case "REAL", "DOUBLE", "FLOAT":
		return table.TypeDouble
	case "INTEGER", "INT", "BIGINT":
		return table.TypeInt64
	default:
		return table.TypeString
	}
}

// SQLiteSink replaces Table in the database at Path inside one transaction.
type SQLiteSink struct {
	Path  string
	Table string

	schema table.Schema
	db     *sql.DB
	tx     *sql.Tx
	insert *sql.Stmt
}

// Open implements Sink.
func (s *SQLiteSink) Open(ctx context.Context, schema table.Schema) error {
	if s.Table == "" {
		return apierror.Configf("output.table", "must not be empty")
	}
	db, err := sql.Open(sqliteDriver, s.Path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.db, s.tx, s.schema = db, tx, schema

	defs := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		defs[i] = quoteIdent(c.Name) + " " + sqliteType(c.Type)
		marks[i] = "?"
	}
	name := quoteIdent(s.Table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		_ = s.Abort(ctx)
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		_ = s.Abort(ctx)
		return fmt.Errorf("create table: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", name, strings.Join(marks, ", ")))
	if err != nil {
		_ = s.Abort(ctx)
		return fmt.Errorf("prepare insert: %w", err)
	}
	s.insert = stmt
	return nil
}

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, rows []table.Row) error {
	if s.insert == nil {
		return fmt.Errorf("sqlite sink not open")
	}
	for _, row := range rows {
		if err := checkRow(s.schema, row); err != nil {
			return err
		}
		if _, err := s.insert.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}

// Commit implements Sink.
func (s *SQLiteSink) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("sqlite sink not open")
	}
	var result error
	if s.insert != nil {
		if err := s.insert.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close statement: %w", err))
		}
	}
	if err := s.tx.Commit(); err != nil {
		result = multierror.Append(result, fmt.Errorf("commit: %w", err))
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close sqlite: %w", err))
	}
	s.db, s.tx, s.insert = nil, nil, nil
	return result
}

// Abort implements Sink.
func (s *SQLiteSink) Abort(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	var result error
	if s.insert != nil {
		_ = s.insert.Close()
	}
	if err := s.tx.Rollback(); err != nil {
		result = multierror.Append(result, fmt.Errorf("rollback: %w", err))
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close sqlite: %w", err))
	}
	s.db, s.tx, s.insert = nil, nil, nil
	return result
}
