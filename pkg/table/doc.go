// Package table holds the tabular data model shared by sources, the
// dispatcher, the flattener and sinks.
//
// A Record is one input row, addressed by its zero-based Index in the input.
// A FlatRow is one output enrichment row derived from a Record; a Record may
// produce zero, one or many FlatRows. A Schema is the ordered list of output
// columns declared to a sink before any row is written.
package table
