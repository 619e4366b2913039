// Package job tracks the state of one enrichment run.
package job

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

// ErrorMode selects how per-record failures are surfaced.
type ErrorMode string

const (
	// ModeLog records failures as error columns and keeps going.
	ModeLog ErrorMode = "LOG"
	// ModeFail aborts the run on the first failure.
	ModeFail ErrorMode = "FAIL"
)

// ParseErrorMode parses a case-insensitive mode name.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch ErrorMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeLog:
		return ModeLog, nil
	case ModeFail:
		return ModeFail, nil
	default:
		return "", apierror.Configf("error_handling", "unknown mode %q (want LOG or FAIL)", s)
	}
}

// State holds the counters of a run. It is safe for concurrent use.
type State struct {
	ID   string
	Mode ErrorMode

	succeeded atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// NewState creates a State with a fresh run id.
func NewState(mode ErrorMode) *State {
	return &State{ID: uuid.NewString(), Mode: mode}
}

func (s *State) RecordSuccess() { s.succeeded.Add(1) }
func (s *State) RecordFailure() { s.failed.Add(1) }
func (s *State) RecordRetry()   { s.retries.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Succeeded int64
	Failed    int64
	Retries   int64
}

// Snapshot returns the current counters.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Retries:   s.retries.Load(),
	}
}

// Total returns the number of records that reached an outcome.
func (s Snapshot) Total() int64 {
	return s.Succeeded + s.Failed
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d rows succeeded, %d rows failed, %d retries", s.Succeeded, s.Failed, s.Retries)
}
