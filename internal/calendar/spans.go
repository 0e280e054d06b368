// Package calendar generates the local calendar day spans a benchmark
// iterates over.
package calendar

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/smartcampus/daymax/internal/model"
)

// ErrInvalidRange is matched by every InvalidRangeError.
var ErrInvalidRange = errors.New("invalid time range")

// InvalidRangeError reports a range whose stop is not after its start.
type InvalidRangeError struct {
	Start int64
	Stop  int64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range: stop %d is not after start %d", e.Stop, e.Start)
}

func (e *InvalidRangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

// SpanGenerator produces the contiguous local days covering a range. The
// location is fixed at construction.
type SpanGenerator struct {
	start int64
	stop  int64
	loc   *time.Location
}

// NewSpanGenerator returns a generator for [startTS, stopTS) in loc.
func NewSpanGenerator(startTS, stopTS int64, loc *time.Location) (*SpanGenerator, error) {
	if stopTS <= startTS {
		return nil, &InvalidRangeError{Start: startTS, Stop: stopTS}
	}
	if loc == nil {
		return nil, errors.New("calendar: nil location")
	}
	return &SpanGenerator{start: startTS, stop: stopTS, loc: loc}, nil
}

func (g *SpanGenerator) Location() *time.Location {
	return g.loc
}

// Spans yields the day spans in order. The first span starts at the local
// midnight at or before the range start and the last one ends exactly at the
// range stop. Each call starts a new iteration.
func (g *SpanGenerator) Spans() iter.Seq[model.DaySpan] {
	return func(yield func(model.DaySpan) bool) {
		start := StartOfDay(g.start, g.loc)
		for start < g.stop {
			end := NextMidnight(start, g.loc)
			if end > g.stop {
				end = g.stop
			}
			if !yield(model.DaySpan{Start: start, End: end}) {
				return
			}
			start = end
		}
	}
}

// All collects every span.
func (g *SpanGenerator) All() []model.DaySpan {
	return slices.Collect(g.Spans())
}

// StartOfDay returns the local midnight at or before ts.
func StartOfDay(ts int64, loc *time.Location) int64 {
	t := time.Unix(ts, 0).In(loc)
	return midnight(t.Year(), t.Month(), t.Day(), loc)
}

// NextMidnight returns the first local midnight strictly after ts.
func NextMidnight(ts int64, loc *time.Location) int64 {
	t := time.Unix(ts, 0).In(loc)
	return midnight(t.Year(), t.Month(), t.Day()+1, loc)
}

// midnight returns the first instant of the given local date. Where a DST
// transition skips 00:00 the date begins at the end of the gap, and
// time.Date may resolve the missing midnight to either side of it.
func midnight(year int, month time.Month, day int, loc *time.Location) int64 {
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Unix()
	}
	start, end := t.ZoneBounds()
	if t.Hour() >= 12 {
		// resolved to the evening before the gap
		return end.Unix()
	}
	return start.Unix()
}
