package extremum

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
)

// Dialect names accepted by the SQL strategies.
const (
	DialectSQLite   = "sqlite3"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	// DialectDefault renders ANSI quoting with ? placeholders (ClickHouse).
	DialectDefault = "default"
)

// Layout describes where a relational backend keeps observations.
type Layout struct {
	Table      string
	TimeColumn string
	// TimeIsTimestamp marks a native timestamp column rather than epoch seconds.
	TimeIsTimestamp bool
	// TypeColumn and ValueColumn are set for the sixth normal form table:
	// one row per (timestamp, observation type).
	TypeColumn  string
	ValueColumn string
}

// WideLayout is one row per timestamp with a column per sensor.
func WideLayout(table string) Layout {
	return Layout{Table: table, TimeColumn: "dateTime"}
}

// NormalizedLayout is the sixth normal form table keyed by (dateTime, obstype).
func NormalizedLayout(table string) Layout {
	return Layout{
		Table:       table,
		TimeColumn:  "dateTime",
		TypeColumn:  "obstype",
		ValueColumn: "measurement",
	}
}

func (l Layout) Normalized() bool {
	return l.TypeColumn != ""
}

func (l Layout) value(sensor model.Sensor) exp.IdentifierExpression {
	if l.Normalized() {
		return goqu.C(l.ValueColumn)
	}
	return goqu.C(string(sensor))
}

func (l Layout) timeArg(sec int64) any {
	if l.TimeIsTimestamp {
		return time.Unix(sec, 0).UTC()
	}
	return sec
}

// filter restricts rows to (span.Start, span.End] and, for the normalized
// table, to the sensor's observation type.
func (l Layout) filter(span model.DaySpan, sensor model.Sensor) []exp.Expression {
	ts := goqu.C(l.TimeColumn)
	where := []exp.Expression{ts.Gt(l.timeArg(span.Start)), ts.Lte(l.timeArg(span.End))}
	if l.Normalized() {
		where = append(where, goqu.C(l.TypeColumn).Eq(string(sensor)))
	}
	return where
}

// timeDest scans the time column whichever type it has.
type timeDest struct {
	stamp   bool
	seconds int64
	t       time.Time
}

func (l Layout) newTimeDest() *timeDest {
	return &timeDest{stamp: l.TimeIsTimestamp}
}

func (d *timeDest) target() any {
	if d.stamp {
		return &d.t
	}
	return &d.seconds
}

func (d *timeDest) unix() int64 {
	if d.stamp {
		return d.t.Unix()
	}
	return d.seconds
}

type sqlStrategy struct {
	kind    Kind
	q       Querier
	dialect goqu.DialectWrapper
	layout  Layout
}

func newSQLStrategy(kind Kind, q Querier, dialect string, layout Layout) (*sqlStrategy, error) {
	if q == nil {
		return nil, errors.New("nil querier")
	}
	if layout.Table == "" || layout.TimeColumn == "" {
		return nil, errors.Errorf("%s: layout needs a table and a time column", kind)
	}
	return &sqlStrategy{kind: kind, q: q, dialect: goqu.Dialect(dialect), layout: layout}, nil
}

func (s *sqlStrategy) Kind() Kind {
	return s.kind
}

func (s *sqlStrategy) maxDataset(span model.DaySpan, sensor model.Sensor) *goqu.SelectDataset {
	return s.dialect.
		From(s.layout.Table).
		Select(goqu.MAX(s.layout.value(sensor))).
		Where(s.layout.filter(span, sensor)...)
}

// argmaxDataset selects the rows of the span holding the span's maximum.
func (s *sqlStrategy) argmaxDataset(span model.DaySpan, sensor model.Sensor, cols ...any) *goqu.SelectDataset {
	value := s.layout.value(sensor)
	where := append(s.layout.filter(span, sensor), value.Eq(s.maxDataset(span, sensor)))
	return s.dialect.
		From(s.layout.Table).
		Select(cols...).
		Where(where...)
}

// NewCorrelatedSubquery returns the single query strategy over a wide table.
func NewCorrelatedSubquery(q Querier, dialect string, layout Layout) (PerSpanStrategy, error) {
	if layout.Normalized() {
		return nil, errors.Errorf("%s needs a wide layout, use %s", CorrelatedSubquery, NormalizedSubquery)
	}
	s, err := newSQLStrategy(CorrelatedSubquery, q, dialect, layout)
	if err != nil {
		return nil, err
	}
	return &subqueryStrategy{sqlStrategy: s}, nil
}

// NewNormalizedSubquery returns the single query strategy over the sixth
// normal form table.
func NewNormalizedSubquery(q Querier, dialect string, layout Layout) (PerSpanStrategy, error) {
	if !layout.Normalized() {
		return nil, errors.Errorf("%s needs a normalized layout", NormalizedSubquery)
	}
	s, err := newSQLStrategy(NormalizedSubquery, q, dialect, layout)
	if err != nil {
		return nil, err
	}
	return &subqueryStrategy{sqlStrategy: s}, nil
}

type subqueryStrategy struct {
	*sqlStrategy
}

func (s *subqueryStrategy) Query(span model.DaySpan, sensor model.Sensor) (string, []any, error) {
	return s.argmaxDataset(span, sensor, goqu.C(s.layout.TimeColumn), s.layout.value(sensor)).
		Prepared(true).
		ToSQL()
}

func (s *subqueryStrategy) FindDailyExtremum(ctx context.Context, span model.DaySpan, sensor model.Sensor) (model.Extremum, error) {
	query, args, err := s.Query(span, sensor)
	if err != nil {
		return model.Empty, errors.WithStack(err)
	}
	ts := s.layout.newTimeDest()
	var value *float64
	err = s.q.QueryRow(ctx, query, args...).Scan(ts.target(), &value)
	if errors.Is(err, ErrNoRows) {
		return model.Empty, nil
	}
	if err != nil {
		return model.Empty, queryError(s.kind, span, err)
	}
	if value == nil {
		return model.Empty, nil
	}
	return model.NewExtremum(ts.unix(), *value), nil
}

// NewTwoQueryAggregate returns the strategy that fetches the maximum and its
// time with two separate queries. Works on either layout.
func NewTwoQueryAggregate(q Querier, dialect string, layout Layout) (PerSpanStrategy, error) {
	s, err := newSQLStrategy(TwoQueryAggregate, q, dialect, layout)
	if err != nil {
		return nil, err
	}
	return &twoQueryStrategy{sqlStrategy: s}, nil
}

type twoQueryStrategy struct {
	*sqlStrategy
}

func (s *twoQueryStrategy) Queries(span model.DaySpan, sensor model.Sensor) (maxSQL string, maxArgs []any, timeSQL string, timeArgs []any, err error) {
	maxSQL, maxArgs, err = s.maxDataset(span, sensor).Prepared(true).ToSQL()
	if err != nil {
		return
	}
	timeSQL, timeArgs, err = s.argmaxDataset(span, sensor, goqu.C(s.layout.TimeColumn)).Prepared(true).ToSQL()
	return
}

func (s *twoQueryStrategy) FindDailyExtremum(ctx context.Context, span model.DaySpan, sensor model.Sensor) (model.Extremum, error) {
	maxSQL, maxArgs, timeSQL, timeArgs, err := s.Queries(span, sensor)
	if err != nil {
		return model.Empty, errors.WithStack(err)
	}

	var value *float64
	if err := s.q.QueryRow(ctx, maxSQL, maxArgs...).Scan(&value); err != nil && !errors.Is(err, ErrNoRows) {
		return model.Empty, queryError(s.kind, span, err)
	}

	// The second query runs even for an empty span so that every day costs
	// the same number of round trips.
	ts := s.layout.newTimeDest()
	err = s.q.QueryRow(ctx, timeSQL, timeArgs...).Scan(ts.target())
	switch {
	case errors.Is(err, ErrNoRows):
		if value != nil {
			return model.Empty, queryError(s.kind, span, ErrInconsistentAggregates)
		}
		return model.Empty, nil
	case err != nil:
		return model.Empty, queryError(s.kind, span, err)
	case value == nil:
		return model.Empty, nil
	}
	return model.NewExtremum(ts.unix(), *value), nil
}

// NewSortLimit returns the SQL rendering of the filter, sort, limit pipeline.
func NewSortLimit(q Querier, dialect string, layout Layout) (PerSpanStrategy, error) {
	s, err := newSQLStrategy(SortLimit, q, dialect, layout)
	if err != nil {
		return nil, err
	}
	return &sortLimitStrategy{sqlStrategy: s}, nil
}

type sortLimitStrategy struct {
	*sqlStrategy
}

func (s *sortLimitStrategy) Query(span model.DaySpan, sensor model.Sensor) (string, []any, error) {
	value := s.layout.value(sensor)
	where := append(s.layout.filter(span, sensor), value.IsNotNull())
	return s.dialect.
		From(s.layout.Table).
		Select(goqu.C(s.layout.TimeColumn), value).
		Where(where...).
		Order(value.Desc()).
		Limit(1).
		Prepared(true).
		ToSQL()
}

func (s *sortLimitStrategy) FindDailyExtremum(ctx context.Context, span model.DaySpan, sensor model.Sensor) (model.Extremum, error) {
	query, args, err := s.Query(span, sensor)
	if err != nil {
		return model.Empty, errors.WithStack(err)
	}
	ts := s.layout.newTimeDest()
	var value *float64
	err = s.q.QueryRow(ctx, query, args...).Scan(ts.target(), &value)
	if errors.Is(err, ErrNoRows) {
		return model.Empty, nil
	}
	if err != nil {
		return model.Empty, queryError(s.kind, span, err)
	}
	if value == nil {
		return model.Empty, nil
	}
	return model.NewExtremum(ts.unix(), *value), nil
}
