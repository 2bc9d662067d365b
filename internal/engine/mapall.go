package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"bidsmapper/internal/classify"
	"bidsmapper/internal/diagnostic"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/logger"
	"bidsmapper/internal/source"
)

// Report is the outcome of a batch run.
type Report struct {
	// SessionID identifies the session that produced the report.
	SessionID string
	// Decisions holds one entry per successfully mapped source, in input
	// order.
	Decisions []Decision
	// Counts is the number of decisions per group.
	Counts map[string]int
	// Diagnostics collects the per-file failures: no_match,
	// duplicate_identity and already_mapped.
	Diagnostics *diagnostic.Diagnostics
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Discarded returns the decisions that landed in the discard group.
func (r *Report) Discarded() []Decision {
	var out []Decision
	for _, d := range r.Decisions {
		if d.Discarded {
			out = append(out, d)
		}
	}

	return out
}

type classified struct {
	match classify.Match
	err   error
}

// MapAll maps files as one batch. Classification runs on a bounded worker
// pool; resolution and identity building then run in input order so that
// run counters and collision winners do not depend on scheduling.
//
// Per-file failures are collected in the report and never stop the batch.
// The returned error is non-nil only when ctx is cancelled; the report then
// holds what was mapped before.
func (e *Engine) MapAll(ctx context.Context, files []source.File) (*Report, error) {
	start := time.Now()
	report := &Report{
		SessionID:   e.id,
		Counts:      map[string]int{},
		Diagnostics: &diagnostic.Diagnostics{},
	}

	results := make([]classified, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			m, err := e.classifier.Classify(f.Attributes)
			results[i] = classified{match: m, err: err}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		report.Duration = time.Since(start)
		return report, errors.Wrap(err, "mapping cancelled")
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, errors.Wrap(err, "mapping cancelled")
		}

		if err := e.claim(f.Path); err != nil {
			report.Diagnostics.AddWarning("already_mapped", "source was already mapped in this session", "", f.Path)
			continue
		}

		d, err := e.finish(f, results[i].match, results[i].err)
		if err != nil {
			e.report(report, d, err)
			continue
		}

		report.Decisions = append(report.Decisions, d)
		report.Counts[d.Group]++
	}

	report.Duration = time.Since(start)

	e.log.Infow("Batch mapped",
		logger.FieldCount, len(report.Decisions),
		logger.FieldWorkers, e.workers,
		"errors", len(report.Diagnostics.Errors),
		logger.FieldDurationMS, report.Duration.Milliseconds(),
	)

	return report, nil
}

func (e *Engine) report(r *Report, d Decision, err error) {
	switch {
	case errors.IsNoMatch(err):
		r.Diagnostics.AddError("no_match", "no rule matches the source attributes", "", d.Source)
	case errors.IsDuplicateIdentity(err):
		r.Diagnostics.AddError("duplicate_identity", err.Error(), d.Rule.ID(), d.Source)
	default:
		r.Diagnostics.AddError("map_failed", err.Error(), "", d.Source)
	}
}
