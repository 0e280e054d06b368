// Package extremum holds the query strategies that find, for a local day,
// the maximum value of a sensor and the time it occurred.
//
// Every strategy answers the same question: among observations with a
// timestamp in (span.Start, span.End] and a non-null value for the sensor,
// which one has the largest value. They differ in how many round trips they
// need and in how ties are broken; see the Kind constants.
package extremum

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
)

// Kind identifies a query strategy.
type Kind string

const (
	// CorrelatedSubquery selects the rows of the span whose value equals a
	// nested MAX over the same span. One round trip. Ties go to whichever
	// matching row the engine returns first.
	CorrelatedSubquery Kind = "correlated-subquery"
	// TwoQueryAggregate asks for MAX(value) and then, in a separate query,
	// for the timestamp of a row holding that value. Two round trips. The
	// queries are evaluated independently, so with ties the timestamp is
	// whichever tied row the second query happens to return.
	TwoQueryAggregate Kind = "two-query-aggregate"
	// NormalizedSubquery is CorrelatedSubquery against the sixth normal form
	// table, filtered on the observation type column.
	NormalizedSubquery Kind = "normalized-subquery"
	// SortLimit filters the span, sorts by value descending and keeps one
	// row. Ties are broken by the backend's sort stability.
	SortLimit Kind = "sort-limit"
	// TimeBucketed computes every day in one query grouped by a native time
	// bucket. The selector used per bucket decides ties.
	TimeBucketed Kind = "time-bucketed"
)

// Kinds lists every strategy kind.
var Kinds = []Kind{CorrelatedSubquery, TwoQueryAggregate, NormalizedSubquery, SortLimit, TimeBucketed}

// Shape is the call shape a strategy needs from the runner.
type Shape int

const (
	ShapePerSpan Shape = iota
	ShapeWholeRange
)

func (k Kind) Shape() Shape {
	if k == TimeBucketed {
		return ShapeWholeRange
	}
	return ShapePerSpan
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind matches a strategy name case-insensitively.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), name) {
			return k, nil
		}
	}
	return "", errors.Errorf("unknown strategy %q", name)
}

type Strategy interface {
	Kind() Kind
}

// PerSpanStrategy is called once per day.
type PerSpanStrategy interface {
	Strategy
	FindDailyExtremum(ctx context.Context, span model.DaySpan, sensor model.Sensor) (model.Extremum, error)
}

// WholeRangeStrategy is called once for all days. The returned record holds
// exactly one entry per span, in span order.
type WholeRangeStrategy interface {
	Strategy
	FindRangeExtrema(ctx context.Context, spans []model.DaySpan, sensor model.Sensor) (model.Record, error)
}

// ErrInconsistentAggregates is returned by the two-query strategy when the
// first query finds a maximum but the second finds no row holding it.
var ErrInconsistentAggregates = errors.New("maximum value has no matching timestamp")

// QueryError wraps a failure reported by a storage backend.
type QueryError struct {
	Kind Kind
	// Span is zero for whole-range queries.
	Span model.DaySpan
	Err  error
}

func (e *QueryError) Error() string {
	if e.Span == (model.DaySpan{}) {
		return fmt.Sprintf("%s query failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s query for span %s failed: %v", e.Kind, e.Span, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func queryError(kind Kind, span model.DaySpan, err error) error {
	return &QueryError{Kind: kind, Span: span, Err: err}
}

// Align places whole-range results into span order. Each result goes to the
// span containing its timestamp; a span without a result stays empty and
// results outside every span are dropped. If two results land in the same
// span the larger value wins.
func Align(spans []model.DaySpan, results []model.Extremum) model.Record {
	record := make(model.Record, len(spans))
	for _, r := range results {
		if !r.Valid {
			continue
		}
		i := sort.Search(len(spans), func(i int) bool { return spans[i].End >= r.Timestamp })
		if i == len(spans) || !spans[i].Contains(r.Timestamp) {
			continue
		}
		if !record[i].Valid || r.Value > record[i].Value {
			record[i] = r
		}
	}
	return record
}

func rangeOf(spans []model.DaySpan) model.DaySpan {
	if len(spans) == 0 {
		return model.DaySpan{}
	}
	return model.DaySpan{Start: spans[0].Start, End: spans[len(spans)-1].End}
}
