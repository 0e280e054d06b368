// Package runner times a strategy over a sequence of day spans and
// assembles the ordered result.
package runner

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

// SpanSource hands out the spans of a run. *calendar.SpanGenerator is one.
type SpanSource interface {
	Spans() iter.Seq[model.DaySpan]
}

// RunInfo describes a run to observers.
type RunInfo struct {
	Kind   extremum.Kind
	Sensor model.Sensor
}

// Observer receives progress callbacks. Callbacks happen outside the timed
// sections, so a slow observer does not change the measured time.
type Observer interface {
	RunStarted(info RunInfo)
	SpanCompleted(info RunInfo, index int, span model.DaySpan, result model.Extremum, took time.Duration)
	RunCompleted(info RunInfo, result *Result)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) RunStarted(RunInfo) {}

func (NopObserver) SpanCompleted(RunInfo, int, model.DaySpan, model.Extremum, time.Duration) {}

func (NopObserver) RunCompleted(RunInfo, *Result) {}

// Result is the outcome of one run.
type Result struct {
	Kind   extremum.Kind
	Sensor model.Sensor
	Spans  []model.DaySpan
	Record model.Record
	// Elapsed is the time spent inside the strategy, summed over calls.
	Elapsed time.Duration
	// QueryDurations holds one entry per strategy call: one per span for
	// per-span strategies, a single entry for whole-range strategies.
	QueryDurations []time.Duration
}

type Runner struct {
	observer Observer
	now      func() time.Time
}

func New(observer Observer) *Runner {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Runner{observer: observer, now: time.Now}
}

// Run executes strategy for sensor over every span of source. The first
// strategy error aborts the run; no partial result is returned.
func (r *Runner) Run(ctx context.Context, source SpanSource, strategy extremum.Strategy, sensor model.Sensor) (*Result, error) {
	if strategy == nil {
		return nil, errors.New("nil strategy")
	}
	info := RunInfo{Kind: strategy.Kind(), Sensor: sensor}
	result := &Result{Kind: info.Kind, Sensor: sensor}

	r.observer.RunStarted(info)

	switch info.Kind.Shape() {
	case extremum.ShapePerSpan:
		s, ok := strategy.(extremum.PerSpanStrategy)
		if !ok {
			return nil, errors.Errorf("%s strategy %T cannot be called per span", info.Kind, strategy)
		}
		if err := r.runPerSpan(ctx, source, s, info, result); err != nil {
			return nil, err
		}
	case extremum.ShapeWholeRange:
		s, ok := strategy.(extremum.WholeRangeStrategy)
		if !ok {
			return nil, errors.Errorf("%s strategy %T cannot be called for a whole range", info.Kind, strategy)
		}
		if err := r.runWholeRange(ctx, source, s, info, result); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown call shape for %s", info.Kind)
	}

	r.observer.RunCompleted(info, result)
	return result, nil
}

func (r *Runner) runPerSpan(ctx context.Context, source SpanSource, s extremum.PerSpanStrategy, info RunInfo, result *Result) error {
	i := 0
	for span := range source.Spans() {
		start := r.now()
		e, err := s.FindDailyExtremum(ctx, span, info.Sensor)
		took := r.now().Sub(start)
		if err != nil {
			return err
		}
		result.Spans = append(result.Spans, span)
		result.Record = append(result.Record, e)
		result.QueryDurations = append(result.QueryDurations, took)
		result.Elapsed += took

		r.observer.SpanCompleted(info, i, span, e, took)
		i++
	}
	return nil
}

func (r *Runner) runWholeRange(ctx context.Context, source SpanSource, s extremum.WholeRangeStrategy, info RunInfo, result *Result) error {
	spans := slices.Collect(source.Spans())

	start := r.now()
	record, err := s.FindRangeExtrema(ctx, spans, info.Sensor)
	took := r.now().Sub(start)
	if err != nil {
		return err
	}
	if len(record) != len(spans) {
		return errors.Errorf("%s returned %d results for %d spans", info.Kind, len(record), len(spans))
	}
	result.Spans = spans
	result.Record = record
	result.QueryDurations = []time.Duration{took}
	result.Elapsed = took

	for i, span := range spans {
		r.observer.SpanCompleted(info, i, span, record[i], 0)
	}
	return nil
}
