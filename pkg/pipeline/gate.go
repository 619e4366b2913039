package pipeline

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/dispatch"
	"github.com/Sternrassler/nlp-enrich/pkg/flatten"
	"github.com/Sternrassler/nlp-enrich/pkg/job"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// JobError aborts a FAIL mode run. It names the failing record.
type JobError struct {
	Index    int
	Kind     apierror.Kind
	Message  string
	Attempts int
	Failure  *dispatch.Failure
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job aborted: record %d failed after %d attempt(s): %s: %s", e.Index, e.Attempts, e.Kind, e.Message)
}

func (e *JobError) Unwrap() error {
	if e.Failure == nil {
		return nil
	}
	return e.Failure
}

func jobError(f *dispatch.Failure) *JobError {
	return &JobError{Index: f.Index, Kind: f.Kind, Message: f.Message, Attempts: f.Attempts, Failure: f}
}

// Gate applies the error handling mode to per-record failures.
type Gate struct {
	mode    job.ErrorMode
	columns []table.Column
	errs    flatten.ErrorColumnNames
}

// NewGate returns a gate for mode. columns are the enrichment and error
// columns a failure row carries.
func NewGate(mode job.ErrorMode, f *flatten.Flattener) *Gate {
	return &Gate{mode: mode, columns: f.AllColumns(), errs: f.ErrorNames()}
}

// Mode returns the error handling mode.
func (g *Gate) Mode() job.ErrorMode {
	return g.mode
}

// Admit checks a batch before flattening. In FAIL mode the first failure in
// record order aborts the run; a failure caused by the run being cancelled
// is reported only when no record failed on its own.
func (g *Gate) Admit(outcomes []dispatch.Outcome[client.Result]) error {
	if g.mode != job.ModeFail {
		return nil
	}
	var cancelled *dispatch.Failure
	for _, out := range outcomes {
		if out.Failure == nil {
			continue
		}
		if !out.Failure.Cancelled() {
			return jobError(out.Failure)
		}
		if cancelled == nil {
			cancelled = out.Failure
		}
	}
	if cancelled != nil {
		return jobError(cancelled)
	}
	return nil
}

// Resolve turns the flatten result of one record into output rows. A record
// failure becomes a single row with null enrichment and populated error
// columns in LOG mode and a *JobError in FAIL mode. Other errors pass
// through unchanged.
func (g *Gate) Resolve(rec table.Record, rows []table.FlatRow, err error) ([]table.FlatRow, error) {
	if err == nil {
		return rows, nil
	}
	var failure *dispatch.Failure
	if !errors.As(err, &failure) {
		return nil, err
	}
	if g.mode == job.ModeFail {
		return nil, jobError(failure)
	}

	row := table.NullRow(rec.Index, g.columns)
	if g.errs.Message != "" {
		row.Values[g.errs.Message] = failure.Message
	}
	if g.errs.Type != "" {
		row.Values[g.errs.Type] = string(failure.Kind)
	}
	if g.errs.Raw != "" {
		row.Values[g.errs.Raw] = failure.Raw
	}
	return []table.FlatRow{row}, nil
}
