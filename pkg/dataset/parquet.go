package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// ParquetSink buffers rows and encodes them into a Parquet file on Commit.
type ParquetSink struct {
	Path string
	// Compression is one of snappy, gzip, zstd, none. Defaults to snappy.
	Compression string

	schema table.Schema
	rows   []string
	open   bool
}

func parquetCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.CompressionCodec_SNAPPY, nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, nil
	case "zstd":
		return parquet.CompressionCodec_ZSTD, nil
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, apierror.Configf("output.compression", "unknown parquet codec %q", name)
	}
}

type parquetField struct {
	Tag string `json:"Tag"`
}

type parquetSchema struct {
	Tag    string         `json:"Tag"`
	Fields []parquetField `json:"Fields"`
}

// jsonSchema renders schema in the JSON schema dialect of the parquet writer.
// Every column is OPTIONAL so nulls survive.
func jsonSchema(schema table.Schema) (string, error) {
	ps := parquetSchema{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, c := range schema.Columns {
		if strings.ContainsAny(c.Name, ",=") {
			return "", apierror.Configf("output", "column %q cannot be stored in parquet", c.Name)
		}
		var typ string
		switch c.Type {
		case table.TypeDouble:
			typ = "type=DOUBLE"
		case table.TypeInt64:
			typ = "type=INT64"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		ps.Fields = append(ps.Fields, parquetField{
			Tag: fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ),
		})
	}
	out, err := json.Marshal(ps)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Open implements Sink.
func (s *ParquetSink) Open(ctx context.Context, schema table.Schema) error {
	if _, err := parquetCodec(s.Compression); err != nil {
		return err
	}
	if _, err := jsonSchema(schema); err != nil {
		return err
	}
	s.schema = schema
	s.rows = nil
	s.open = true
	return nil
}

// Write implements Sink.
func (s *ParquetSink) Write(ctx context.Context, rows []table.Row) error {
	if !s.open {
		return fmt.Errorf("parquet sink not open")
	}
	for _, row := range rows {
		if err := checkRow(s.schema, row); err != nil {
			return err
		}
		obj := make(map[string]any, len(row))
		for i, c := range s.schema.Columns {
			obj[c.Name] = parquetValue(c.Type, row[i])
		}
		line, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
		s.rows = append(s.rows, string(line))
	}
	return nil
}

// parquetValue coerces v to what a column of type t stores. Values that do
// not fit become null.
func parquetValue(t table.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case table.TypeDouble:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		case int:
			return float64(n)
		}
		return nil
	case table.TypeInt64:
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		}
		return nil
	default:
		return formatValue(v)
	}
}

// Commit implements Sink.
func (s *ParquetSink) Commit(ctx context.Context) (err error) {
	if !s.open {
		return fmt.Errorf("parquet sink not open")
	}
	defer func() {
		s.open = false
		s.rows = nil
	}()

	codec, err := parquetCodec(s.Compression)
	if err != nil {
		return err
	}
	schema, err := jsonSchema(s.schema)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(schema, &buf, 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = codec

	var result error
	for i, line := range s.rows {
		if werr := pw.Write(line); werr != nil {
			result = multierror.Append(result, fmt.Errorf("write row %d: %w", i, werr))
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result = multierror.Append(result, fmt.Errorf("parquet writer panicked: %v", r))
			}
		}()
		if serr := pw.WriteStop(); serr != nil {
			result = multierror.Append(result, fmt.Errorf("finish parquet file: %w", serr))
		}
	}()
	if result != nil {
		return result
	}

	return writeFileAtomic(s.Path, buf.Bytes())
}

// Abort implements Sink.
func (s *ParquetSink) Abort(ctx context.Context) error {
	s.open = false
	s.rows = nil
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}
