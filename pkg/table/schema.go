package table

import (
	"fmt"
	"strings"
)

// ColumnType is the logical type of an output column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeDouble ColumnType = "double"
	TypeInt64  ColumnType = "int64"
)

// Column describes one output column.
type Column struct {
	Name        string
	Type        ColumnType
	Description string
}

// Schema is the ordered column list of a table.
type Schema struct {
	Columns []Column
}

// StringSchema returns a schema of string columns with the given names.
func StringSchema(names []string) Schema {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: TypeString}
	}
	return Schema{Columns: cols}
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the schema contains a column called name.
func (s Schema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Extend returns a new schema with extra appended.
func (s Schema) Extend(extra ...Column) Schema {
	cols := make([]Column, 0, len(s.Columns)+len(extra))
	cols = append(cols, s.Columns...)
	cols = append(cols, extra...)
	return Schema{Columns: cols}
}

// Namer hands out column names that do not collide with existing ones.
type Namer struct {
	taken map[string]struct{}
}

// NewNamer returns a Namer that treats existing as already taken.
func NewNamer(existing []string) *Namer {
	taken := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		taken[n] = struct{}{}
	}
	return &Namer{taken: taken}
}

// Unique returns prefix_name, suffixed with _1, _2... on collision, and
// reserves the result.
func (n *Namer) Unique(prefix, name string) string {
	base := name
	if prefix != "" {
		base = strings.Join([]string{prefix, name}, "_")
	}
	candidate := base
	for i := 1; ; i++ {
		if _, ok := n.taken[candidate]; !ok {
			break
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	n.taken[candidate] = struct{}{}
	return candidate
}
