package extremum

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ErrNoRows is returned by Row.Scan when a query produced no rows,
// whichever driver ran it.
var ErrNoRows = errors.New("no rows in result set")

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier runs parameterised SQL. It is the minimum the SQL strategies
// need from a relational backend.
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// NewSQLQuerier adapts a database/sql handle (SQLite, MySQL, ClickHouse).
func NewSQLQuerier(db *sql.DB) Querier {
	return sqlQuerier{db: db}
}

type sqlQuerier struct {
	db *sql.DB
}

func (q sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: q.db.QueryRowContext(ctx, query, args...)}
}

func (q sqlQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return q.db.QueryContext(ctx, query, args...)
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

// NewPgxQuerier adapts a pgx pool (Postgres, TimescaleDB, QuestDB).
func NewPgxQuerier(pool *pgxpool.Pool) Querier {
	return pgxQuerier{pool: pool}
}

type pgxQuerier struct {
	pool *pgxpool.Pool
}

func (q pgxQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxRow{row: q.pool.QueryRow(ctx, query, args...)}
}

func (q pgxQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{Rows: rows}, nil
}

type pgxRow struct {
	row pgx.Row
}

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

type pgxRows struct {
	pgx.Rows
}

func (r pgxRows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}
