package extremum

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
)

// bucketStrategy runs one grouped query over the whole range and aligns the
// rows it returns to the spans.
type bucketStrategy struct {
	q      Querier
	layout Layout
	loc    *time.Location
	build  func(b *bucketStrategy, span model.DaySpan, sensor model.Sensor) (string, []any, error)
	// scan reads one row into a timestamp and a nullable value.
	scan func(rows Rows, ts *timeDest, value **float64) error
}

func (b *bucketStrategy) Kind() Kind {
	return TimeBucketed
}

func (b *bucketStrategy) Query(spans []model.DaySpan, sensor model.Sensor) (string, []any, error) {
	return b.build(b, rangeOf(spans), sensor)
}

func (b *bucketStrategy) FindRangeExtrema(ctx context.Context, spans []model.DaySpan, sensor model.Sensor) (model.Record, error) {
	if len(spans) == 0 {
		return model.Record{}, nil
	}
	query, args, err := b.Query(spans, sensor)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := b.q.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError(TimeBucketed, model.DaySpan{}, err)
	}
	defer rows.Close()

	var results []model.Extremum
	for rows.Next() {
		ts := b.layout.newTimeDest()
		var value *float64
		if err := b.scan(rows, ts, &value); err != nil {
			return nil, queryError(TimeBucketed, model.DaySpan{}, err)
		}
		if value != nil {
			results = append(results, model.NewExtremum(ts.unix(), *value))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(TimeBucketed, model.DaySpan{}, err)
	}
	if err := rows.Close(); err != nil {
		return nil, queryError(TimeBucketed, model.DaySpan{}, err)
	}
	return Align(spans, results), nil
}

func newBucketStrategy(q Querier, layout Layout, loc *time.Location) (*bucketStrategy, error) {
	if q == nil {
		return nil, errors.New("nil querier")
	}
	if loc == nil {
		return nil, errors.New("nil location")
	}
	if layout.Normalized() || layout.TimeIsTimestamp {
		return nil, errors.Errorf("%s needs a wide layout with epoch second timestamps", TimeBucketed)
	}
	return &bucketStrategy{q: q, layout: layout, loc: loc}, nil
}

// NewTimescaleBuckets groups by TimescaleDB's time_bucket in the configured
// timezone and keeps the first row of each bucket ordered by value
// descending (DISTINCT ON). Ties within a bucket are broken arbitrarily by
// the planner.
//
// Rows are bucketed on dateTime - 1 so that a value stamped exactly at
// midnight belongs to the day that ends there, matching (start, end].
func NewTimescaleBuckets(q Querier, layout Layout, loc *time.Location) (WholeRangeStrategy, error) {
	b, err := newBucketStrategy(q, layout, loc)
	if err != nil {
		return nil, err
	}
	b.build = func(b *bucketStrategy, span model.DaySpan, sensor model.Sensor) (string, []any, error) {
		value := b.layout.value(sensor)
		ts := goqu.C(b.layout.TimeColumn)
		bucket := goqu.L("time_bucket(INTERVAL '1 day', to_timestamp(? - 1), ?)", ts, b.loc.String()).As("bucket")
		where := append(b.layout.filter(span, sensor), value.IsNotNull())
		return goqu.Dialect(DialectPostgres).
			From(b.layout.Table).
			Select(bucket, ts, value).
			Distinct(goqu.I("bucket")).
			Where(where...).
			Order(goqu.I("bucket").Asc(), value.Desc()).
			Prepared(true).
			ToSQL()
	}
	b.scan = func(rows Rows, ts *timeDest, value **float64) error {
		var bucket time.Time
		return rows.Scan(&bucket, ts.target(), value)
	}
	return b, nil
}

// NewClickHouseBuckets groups by local calendar date and picks the
// timestamp with argMax. ClickHouse resolves ties in argMax by whichever row
// it reads first, which depends on part merge order.
func NewClickHouseBuckets(q Querier, layout Layout, loc *time.Location) (WholeRangeStrategy, error) {
	b, err := newBucketStrategy(q, layout, loc)
	if err != nil {
		return nil, err
	}
	b.build = func(b *bucketStrategy, span model.DaySpan, sensor model.Sensor) (string, []any, error) {
		value := b.layout.value(sensor)
		ts := goqu.C(b.layout.TimeColumn)
		day := goqu.L("toDate(toDateTime(? - 1, ?))", ts, b.loc.String()).As("day")
		where := append(b.layout.filter(span, sensor), value.IsNotNull())
		return goqu.Dialect(DialectDefault).
			From(b.layout.Table).
			Select(day, goqu.L("argMax(?, ?)", ts, value), goqu.MAX(value)).
			Where(where...).
			GroupBy(goqu.I("day")).
			Order(goqu.I("day").Asc()).
			Prepared(true).
			ToSQL()
	}
	b.scan = func(rows Rows, ts *timeDest, value **float64) error {
		var day time.Time
		return rows.Scan(&day, ts.target(), value)
	}
	return b, nil
}
