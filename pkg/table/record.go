package table

import "fmt"

// Record is an immutable input row.
type Record struct {
	Index  int
	Values map[string]any
}

// NewRecord builds a Record from a header and positional values.
func NewRecord(index int, columns []string, values []string) Record {
	vals := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(values) {
			vals[col] = values[i]
		} else {
			vals[col] = nil
		}
	}
	return Record{Index: index, Values: vals}
}

// Text returns the value of column as a string. Missing and null values
// yield "".
func (r Record) Text(column string) string {
	v, ok := r.Values[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// FlatRow is one enrichment row tied back to its originating record.
type FlatRow struct {
	Index  int
	Values map[string]any
}

// NullRow returns a FlatRow for index with every column set to null.
func NullRow(index int, columns []Column) FlatRow {
	vals := make(map[string]any, len(columns))
	for _, c := range columns {
		vals[c.Name] = nil
	}
	return FlatRow{Index: index, Values: vals}
}

// Row is an output row aligned with a Schema.
type Row []any

// Join merges a record with one of its enrichment rows into a Row aligned
// with schema. Columns missing from both sides are null.
func Join(schema Schema, rec Record, flat FlatRow) Row {
	row := make(Row, len(schema.Columns))
	for i, col := range schema.Columns {
		if v, ok := flat.Values[col.Name]; ok {
			row[i] = v
			continue
		}
		row[i] = rec.Values[col.Name]
	}
	return row
}
