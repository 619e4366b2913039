// Package pipeline runs an enrichment job end to end: read the input table,
// dispatch one analysis call per record in batches, flatten the responses,
// apply the error handling mode and write the joined rows to the sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/dataset"
	"github.com/Sternrassler/nlp-enrich/pkg/dispatch"
	"github.com/Sternrassler/nlp-enrich/pkg/flatten"
	"github.com/Sternrassler/nlp-enrich/pkg/job"
	"github.com/Sternrassler/nlp-enrich/pkg/logging"
	"github.com/Sternrassler/nlp-enrich/pkg/ratelimit"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// Config describes one enrichment job.
type Config struct {
	// TextColumn holds the text to analyze.
	TextColumn string

	// Language is the language hint; "" lets the service detect it.
	Language string

	Mode      job.ErrorMode
	BatchSize int

	Flatten  flatten.Options
	Dispatch dispatch.Config
}

// Validate checks the job configuration.
func (c Config) Validate() error {
	if c.TextColumn == "" {
		return apierror.Configf("text_column", "must not be empty")
	}
	if c.Mode != job.ModeLog && c.Mode != job.ModeFail {
		return apierror.Configf("error_handling", "unknown mode %q", c.Mode)
	}
	if c.BatchSize <= 0 {
		return apierror.Configf("batch_size", "must be positive, got %d", c.BatchSize)
	}
	return c.Dispatch.Validate()
}

// Result summarizes a finished run.
type Result struct {
	JobID    string
	Records  int
	Rows     int
	Summary  job.Snapshot
	Duration time.Duration
}

// Pipeline wires the analyzer, limiter and flattener for repeated runs.
type Pipeline struct {
	config   Config
	analyzer client.Analyzer
	limiter  ratelimit.Limiter
}

// New returns a Pipeline. A nil limiter gives every run its own in-process
// window of Dispatch.MaxCallsPerMinute.
func New(config Config, analyzer client.Analyzer, limiter ratelimit.Limiter) (*Pipeline, error) {
	if analyzer == nil {
		return nil, apierror.Configf("analyzer", "must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.Dispatch.FailFast = config.Mode == job.ModeFail
	config.Flatten.ErrorColumns = config.Mode == job.ModeLog
	if _, err := flatten.New(config.Flatten, nil); err != nil {
		return nil, err
	}
	return &Pipeline{config: config, analyzer: analyzer, limiter: limiter}, nil
}

// Run enriches every record of src into sink. The sink is committed only
// when the whole run succeeds; on any error it is aborted.
func (p *Pipeline) Run(ctx context.Context, src dataset.Source, sink dataset.Sink) (*Result, error) {
	start := time.Now()
	state := job.NewState(p.config.Mode)
	logger := logging.ForJob("pipeline", state.ID)

	schema, records, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if !schema.Has(p.config.TextColumn) {
		return nil, apierror.Configf("text_column", "column %q not found in input (have %v)", p.config.TextColumn, schema.Names())
	}

	flattener, err := flatten.New(p.config.Flatten, schema.Names())
	if err != nil {
		return nil, err
	}
	gate := NewGate(p.config.Mode, flattener)
	outSchema := schema.Extend(flattener.AllColumns()...)

	batches, err := table.Batch(records, p.config.BatchSize)
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New[client.Result](p.config.Dispatch, p.limiter, state, logging.ForJob("dispatcher", state.ID))
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("feature", string(p.config.Flatten.Feature)).
		Str("mode", string(p.config.Mode)).
		Int("records", len(records)).
		Int("batches", len(batches)).
		Msg("Starting enrichment")

	if err := sink.Open(ctx, outSchema); err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	logColumns(logger, flattener.AllColumns())

	rows, err := p.runBatches(ctx, batches, dispatcher, flattener, gate, outSchema, sink)
	if err != nil {
		abort(ctx, sink, logger)
		logger.Error().Err(err).Str("summary", state.Snapshot().String()).Msg("Enrichment aborted")
		return nil, err
	}

	if err := sink.Commit(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to commit output")
		return nil, fmt.Errorf("commit output: %w", err)
	}

	res := &Result{
		JobID:    state.ID,
		Records:  len(records),
		Rows:     rows,
		Summary:  state.Snapshot(),
		Duration: time.Since(start),
	}
	logger.Info().
		Int64("succeeded", res.Summary.Succeeded).
		Int64("failed", res.Summary.Failed).
		Int64("retries", res.Summary.Retries).
		Int("rows", rows).
		Dur("duration", res.Duration).
		Msg(res.Summary.String())
	return res, nil
}

func (p *Pipeline) runBatches(
	ctx context.Context,
	batches [][]table.Record,
	dispatcher *dispatch.Dispatcher[client.Result],
	flattener *flatten.Flattener,
	gate *Gate,
	schema table.Schema,
	sink dataset.Sink,
) (int, error) {
	call := p.callFunc()
	written := 0
	for _, batch := range batches {
		outcomes, err := dispatcher.Dispatch(ctx, batch, call)
		if err != nil {
			return written, err
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := gate.Admit(outcomes); err != nil {
			return written, err
		}

		rows := make([]table.Row, 0, len(batch))
		for i, rec := range batch {
			flat, err := flattener.Flatten(rec, outcomes[i])
			flat, err = gate.Resolve(rec, flat, err)
			if err != nil {
				return written, err
			}
			if len(flat) == 0 {
				flat = []table.FlatRow{table.NullRow(rec.Index, flattener.AllColumns())}
			}
			for _, fr := range flat {
				rows = append(rows, table.Join(schema, rec, fr))
			}
		}
		if err := sink.Write(ctx, rows); err != nil {
			return written, fmt.Errorf("write output: %w", err)
		}
		written += len(rows)
	}
	return written, nil
}

func (p *Pipeline) callFunc() dispatch.CallFunc[client.Result] {
	feature := p.config.Flatten.Feature
	entitySentiment := p.config.Flatten.Entities.Sentiment
	return func(ctx context.Context, rec table.Record) (client.Result, error) {
		return p.analyzer.Analyze(ctx, client.CallRequest{
			Feature:         feature,
			Text:            rec.Text(p.config.TextColumn),
			Language:        p.config.Language,
			EntitySentiment: entitySentiment,
		})
	}
}

func logColumns(logger zerolog.Logger, columns []table.Column) {
	for _, c := range columns {
		logger.Debug().
			Str("column", c.Name).
			Str("type", string(c.Type)).
			Msg(c.Description)
	}
}

func abort(ctx context.Context, sink dataset.Sink, logger zerolog.Logger) {
	if err := sink.Abort(context.WithoutCancel(ctx)); err != nil {
		logger.Error().Err(err).Msg("Failed to discard partial output")
	}
}

// IsJobFailure reports whether err aborted a FAIL mode run.
func IsJobFailure(err error) bool {
	var je *JobError
	return errors.As(err, &je)
}
