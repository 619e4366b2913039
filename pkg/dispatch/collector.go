package dispatch

import (
	"sync"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// Collector stores outcomes in a fixed arena with one slot per record, so
// results come back in input order no matter when they complete.
type Collector[T any] struct {
	mu      sync.Mutex
	records []table.Record
	slots   []Outcome[T]
	filled  []bool
}

// NewCollector allocates one slot per record.
func NewCollector[T any](records []table.Record) *Collector[T] {
	return &Collector[T]{
		records: records,
		slots:   make([]Outcome[T], len(records)),
		filled:  make([]bool, len(records)),
	}
}

// Put stores the outcome for the record at position pos. Writing a slot
// twice, or an outcome that belongs to a different record, is a
// ProgrammingError.
func (c *Collector[T]) Put(pos int, out Outcome[T]) error {
	if pos < 0 || pos >= len(c.slots) {
		return apierror.Programmingf("slot %d out of range [0,%d)", pos, len(c.slots))
	}
	if want := c.records[pos].Index; out.Index != want {
		return apierror.Programmingf("slot %d holds record %d, got outcome for record %d", pos, want, out.Index)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filled[pos] {
		return apierror.Programmingf("outcome for record %d delivered twice", out.Index)
	}
	c.slots[pos] = out
	c.filled[pos] = true
	return nil
}

// Outcomes returns all outcomes in input order. A missing outcome is a
// ProgrammingError.
func (c *Collector[T]) Outcomes() ([]Outcome[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for pos, ok := range c.filled {
		if !ok {
			return nil, apierror.Programmingf("no outcome for record %d", c.records[pos].Index)
		}
	}
	out := make([]Outcome[T], len(c.slots))
	copy(out, c.slots)
	return out, nil
}
