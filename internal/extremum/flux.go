package extremum

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
)

// FluxQuerier is the part of the InfluxDB query API the strategies use.
type FluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// FluxSource names where observations live in InfluxDB.
type FluxSource struct {
	Bucket      string
	Measurement string
}

// Flux ranges are [start, stop). Timestamps are whole seconds, so shifting
// both ends by one second gives (start, end].
func fluxRange(span model.DaySpan) string {
	return fmt.Sprintf("range(start: %s, stop: %s)", fluxTime(span.Start+1), fluxTime(span.End+1))
}

func fluxTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func (s FluxSource) from(span model.DaySpan, sensor model.Sensor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", s.Bucket)
	fmt.Fprintf(&b, "  |> %s\n", fluxRange(span))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q and r._field == %q)\n", s.Measurement, string(sensor))
	b.WriteString("  |> group()\n")
	return b.String()
}

// NewFluxSortLimit returns the per-day Flux pipeline: filter the day, sort
// by value descending, keep one record. Flux's sort is not stable across
// equal values, so ties go to whichever record the engine emits first.
func NewFluxSortLimit(q FluxQuerier, source FluxSource) (PerSpanStrategy, error) {
	if q == nil {
		return nil, errors.New("nil flux querier")
	}
	return &fluxSortLimit{q: q, source: source}, nil
}

type fluxSortLimit struct {
	q      FluxQuerier
	source FluxSource
}

func (f *fluxSortLimit) Kind() Kind {
	return SortLimit
}

func (f *fluxSortLimit) Query(span model.DaySpan, sensor model.Sensor) string {
	return f.source.from(span, sensor) +
		"  |> sort(columns: [\"_value\"], desc: true)\n" +
		"  |> limit(n: 1)\n"
}

func (f *fluxSortLimit) FindDailyExtremum(ctx context.Context, span model.DaySpan, sensor model.Sensor) (model.Extremum, error) {
	results, err := runFlux(ctx, f.q, f.Query(span, sensor))
	if err != nil {
		return model.Empty, queryError(SortLimit, span, err)
	}
	if len(results) == 0 {
		return model.Empty, nil
	}
	return results[0], nil
}

// NewFluxWindows returns the whole-range Flux query: one window per local
// day, max() per window. The windows are offset by one second so they cover
// (midnight, midnight]. max() keeps the first record holding the maximum.
func NewFluxWindows(q FluxQuerier, source FluxSource, loc *time.Location) (WholeRangeStrategy, error) {
	if q == nil {
		return nil, errors.New("nil flux querier")
	}
	if loc == nil {
		return nil, errors.New("nil location")
	}
	return &fluxWindows{q: q, source: source, loc: loc}, nil
}

type fluxWindows struct {
	q      FluxQuerier
	source FluxSource
	loc    *time.Location
}

func (f *fluxWindows) Kind() Kind {
	return TimeBucketed
}

func (f *fluxWindows) Query(spans []model.DaySpan, sensor model.Sensor) string {
	return "import \"timezone\"\n\n" +
		fmt.Sprintf("option location = timezone.location(name: %q)\n\n", f.loc.String()) +
		f.source.from(rangeOf(spans), sensor) +
		"  |> window(every: 1d, offset: 1s)\n" +
		"  |> max()\n"
}

func (f *fluxWindows) FindRangeExtrema(ctx context.Context, spans []model.DaySpan, sensor model.Sensor) (model.Record, error) {
	if len(spans) == 0 {
		return model.Record{}, nil
	}
	results, err := runFlux(ctx, f.q, f.Query(spans, sensor))
	if err != nil {
		return nil, queryError(TimeBucketed, model.DaySpan{}, err)
	}
	return Align(spans, results), nil
}

func runFlux(ctx context.Context, q FluxQuerier, flux string) ([]model.Extremum, error) {
	result, err := q.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var out []model.Extremum
	for result.Next() {
		e, err := fluxExtremum(result.Record())
		if err != nil {
			return nil, err
		}
		if e.Valid {
			out = append(out, e)
		}
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return out, nil
}

// fluxExtremum converts a record holding _time and _value.
func fluxExtremum(r *query.FluxRecord) (model.Extremum, error) {
	switch v := r.Value().(type) {
	case nil:
		return model.Empty, nil
	case float64:
		return model.NewExtremum(r.Time().Unix(), v), nil
	case int64:
		return model.NewExtremum(r.Time().Unix(), float64(v)), nil
	default:
		return model.Empty, errors.Errorf("unexpected %T value in flux record", v)
	}
}
