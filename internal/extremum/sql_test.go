package extremum

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/smartcampus/daymax/internal/model"
)

const day = int64(86400)

type fixtureRow struct {
	ts    int64
	value *float64
}

func f(v float64) *float64 {
	return &v
}

// fixtureRows covers four days:
//   - day 0: a larger value stamped exactly at the span start must be ignored
//   - day 1: the maximum is stamped exactly at the span end
//   - day 2: only null values
//   - day 3: two rows tie on the maximum
//
// and leaves day 4 without any rows at all.
var fixtureRows = []fixtureRow{
	{ts: 0, value: f(99)},
	{ts: 300, value: f(10)},
	{ts: 600, value: f(50)},
	{ts: 900, value: nil},
	{ts: day, value: f(40)},
	{ts: day + 300, value: f(5)},
	{ts: 2 * day, value: f(70)},
	{ts: 2*day + 300, value: nil},
	{ts: 2*day + 600, value: nil},
	{ts: 3*day + 300, value: f(30)},
	{ts: 3*day + 900, value: f(30)},
	{ts: 3*day + 1200, value: f(-4)},
}

var fixtureSpans = []model.DaySpan{
	{Start: 0, End: day},
	{Start: day, End: 2 * day},
	{Start: 2 * day, End: 3 * day},
	{Start: 3 * day, End: 4 * day},
	{Start: 4 * day, End: 5 * day},
}

func openFixture(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fixture.sdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("CREATE TABLE archive (dateTime INTEGER NOT NULL PRIMARY KEY, outTemp REAL, barometer REAL)")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE bench (dateTime INTEGER NOT NULL, obstype VARCHAR(63) NOT NULL, measurement REAL, " +
		"CONSTRAINT pk PRIMARY KEY (dateTime, obstype))")
	require.NoError(t, err)

	for _, row := range fixtureRows {
		_, err := db.Exec("INSERT INTO archive (dateTime, outTemp, barometer) VALUES (?, ?, ?)", row.ts, row.value, 30.0)
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO bench VALUES (?, ?, ?)", row.ts, "outTemp", row.value)
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO bench VALUES (?, ?, ?)", row.ts, "barometer", 30.0)
		require.NoError(t, err)
	}
	return db
}

func fixtureStrategies(t *testing.T, q Querier) map[string]PerSpanStrategy {
	t.Helper()
	wide := WideLayout("archive")
	long := NormalizedLayout("bench")

	strategies := map[string]PerSpanStrategy{}
	add := func(name string, s PerSpanStrategy, err error) {
		require.NoError(t, err, name)
		strategies[name] = s
	}
	s, err := NewCorrelatedSubquery(q, DialectSQLite, wide)
	add("correlated/wide", s, err)
	s, err = NewTwoQueryAggregate(q, DialectSQLite, wide)
	add("two-query/wide", s, err)
	s, err = NewSortLimit(q, DialectSQLite, wide)
	add("sort-limit/wide", s, err)
	s, err = NewNormalizedSubquery(q, DialectSQLite, long)
	add("normalized/long", s, err)
	s, err = NewTwoQueryAggregate(q, DialectSQLite, long)
	add("two-query/long", s, err)
	s, err = NewSortLimit(q, DialectSQLite, long)
	add("sort-limit/long", s, err)
	return strategies
}

func TestSQLStrategies_AgreeWithoutTies(t *testing.T) {
	q := NewSQLQuerier(openFixture(t))
	ctx := context.Background()

	expected := []model.Extremum{
		model.NewExtremum(600, 50),
		model.NewExtremum(2*day, 70),
		model.Empty,
	}
	for name, s := range fixtureStrategies(t, q) {
		t.Run(name, func(t *testing.T) {
			for i, want := range expected {
				got, err := s.FindDailyExtremum(ctx, fixtureSpans[i], model.OutTemp)
				require.NoError(t, err)
				assert.Equal(t, want, got, "span %d", i)
			}
		})
	}
}

func TestSQLStrategies_EmptySpan(t *testing.T) {
	q := NewSQLQuerier(openFixture(t))
	for name, s := range fixtureStrategies(t, q) {
		t.Run(name, func(t *testing.T) {
			got, err := s.FindDailyExtremum(context.Background(), fixtureSpans[4], model.OutTemp)
			require.NoError(t, err)
			assert.False(t, got.Valid)
		})
	}
}

func TestSQLStrategies_TieIsOneOfTheTiedRows(t *testing.T) {
	q := NewSQLQuerier(openFixture(t))
	for name, s := range fixtureStrategies(t, q) {
		t.Run(name, func(t *testing.T) {
			got, err := s.FindDailyExtremum(context.Background(), fixtureSpans[3], model.OutTemp)
			require.NoError(t, err)
			require.True(t, got.Valid)
			assert.Equal(t, 30.0, got.Value)
			assert.Contains(t, []int64{3*day + 300, 3*day + 900}, got.Timestamp)
		})
	}
}

func TestSQLStrategies_OtherSensor(t *testing.T) {
	q := NewSQLQuerier(openFixture(t))
	for name, s := range fixtureStrategies(t, q) {
		t.Run(name, func(t *testing.T) {
			got, err := s.FindDailyExtremum(context.Background(), fixtureSpans[0], model.Barometer)
			require.NoError(t, err)
			assert.Equal(t, 30.0, got.Value)
		})
	}
}

func TestSQLStrategies_BackendErrorIsWrapped(t *testing.T) {
	q := NewSQLQuerier(openFixture(t))
	s, err := NewCorrelatedSubquery(q, DialectSQLite, WideLayout("missing_table"))
	require.NoError(t, err)

	_, err = s.FindDailyExtremum(context.Background(), fixtureSpans[0], model.OutTemp)
	require.Error(t, err)
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, CorrelatedSubquery, queryErr.Kind)
	assert.Equal(t, fixtureSpans[0], queryErr.Span)
}

func TestSQLStrategies_LayoutChecks(t *testing.T) {
	q := NewSQLQuerier(openFixture(t))

	_, err := NewCorrelatedSubquery(q, DialectSQLite, NormalizedLayout("bench"))
	assert.Error(t, err)
	_, err = NewNormalizedSubquery(q, DialectSQLite, WideLayout("archive"))
	assert.Error(t, err)
	_, err = NewSortLimit(nil, DialectSQLite, WideLayout("archive"))
	assert.Error(t, err)
	_, err = NewTwoQueryAggregate(q, DialectSQLite, Layout{})
	assert.Error(t, err)
}

func TestSubqueryStrategy_Query(t *testing.T) {
	s, err := NewNormalizedSubquery(NewSQLQuerier(nil), DialectPostgres, NormalizedLayout("bench"))
	require.NoError(t, err)

	query, args, err := s.(*subqueryStrategy).Query(model.DaySpan{Start: 10, End: 20}, model.Barometer)
	require.NoError(t, err)
	assert.Contains(t, query, "MAX(")
	assert.Contains(t, query, "$6")
	assert.Equal(t, []any{int64(10), int64(20), "barometer", int64(10), int64(20), "barometer"}, args)
}

type stubQuerier struct {
	rows map[string]Row
}

func (s stubQuerier) QueryRow(_ context.Context, query string, _ ...any) Row {
	return s.rows[query]
}

func (s stubQuerier) Query(context.Context, string, ...any) (Rows, error) {
	panic("not used")
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error {
	return f(dest...)
}

func TestTwoQueryAggregate_Inconsistent(t *testing.T) {
	s, err := NewTwoQueryAggregate(NewSQLQuerier(nil), DialectSQLite, WideLayout("archive"))
	require.NoError(t, err)
	two := s.(*twoQueryStrategy)
	span := model.DaySpan{Start: 0, End: day}
	maxSQL, _, timeSQL, _, err := two.Queries(span, model.OutTemp)
	require.NoError(t, err)

	two.q = stubQuerier{rows: map[string]Row{
		maxSQL: scanFunc(func(dest ...any) error {
			*(dest[0].(**float64)) = f(12)
			return nil
		}),
		timeSQL: scanFunc(func(...any) error { return ErrNoRows }),
	}}

	_, err = s.FindDailyExtremum(context.Background(), span, model.OutTemp)
	assert.ErrorIs(t, err, ErrInconsistentAggregates)
}
