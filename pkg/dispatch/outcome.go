package dispatch

import (
	"fmt"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

// Failure describes why a record could not be enriched.
type Failure struct {
	Index    int
	Kind     apierror.Kind
	Message  string
	Raw      string
	Attempts int
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("record %d: %s: %s", f.Index, f.Kind, f.Message)
}

// Cancelled reports whether the record was skipped because the run stopped.
func (f *Failure) Cancelled() bool {
	return f.Kind == apierror.KindCancelled
}

// Outcome is the result of one record: either a payload or a Failure.
type Outcome[T any] struct {
	Index    int
	Payload  T
	Failure  *Failure
	Attempts int
}

// OK reports whether the outcome carries a payload.
func (o Outcome[T]) OK() bool {
	return o.Failure == nil
}

// Succeeded builds a successful outcome.
func Succeeded[T any](index int, payload T, attempts int) Outcome[T] {
	return Outcome[T]{Index: index, Payload: payload, Attempts: attempts}
}

// Failed builds a failed outcome.
func Failed[T any](f *Failure) Outcome[T] {
	return Outcome[T]{Index: f.Index, Failure: f, Attempts: f.Attempts}
}

// failureFrom converts a call error into a Failure.
func failureFrom(index int, err error, attempts int) *Failure {
	se := apierror.Classify(err)
	return &Failure{
		Index:    index,
		Kind:     se.Kind,
		Message:  se.Message,
		Raw:      err.Error(),
		Attempts: attempts,
	}
}
