package db

import (
	"context"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

// hypertableChunk is one week of epoch seconds.
const hypertableChunk = 7 * 24 * 3600

// PostgresDatabase covers the engines spoken to over the PostgreSQL wire
// protocol with pgx: PostgreSQL itself, TimescaleDB and CrateDB.
type PostgresDatabase struct {
	backend Backend
	pool    *pgxpool.Pool
	types   columnTypes
	cfg     Config
}

func NewPostgres(ctx context.Context, cfg Config) (*PostgresDatabase, error) {
	switch cfg.Backend {
	case Postgres, TimescaleDB, CrateDB:
	default:
		return nil, errors.Errorf("%s is not spoken to with pgx", cfg.Backend)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s pool", cfg.Backend)
	}
	types := postgresTypes
	if cfg.Backend == CrateDB {
		types = crateTypes
	}
	return &PostgresDatabase{backend: cfg.Backend, pool: pool, types: types, cfg: cfg}, nil
}

func (p *PostgresDatabase) Backend() Backend {
	return p.backend
}

func (p *PostgresDatabase) InitialiseSchema(ctx context.Context) error {
	stmts := []string{p.types.drop(p.cfg.Schema), p.types.ddl(p.cfg.Schema)}
	if p.backend == TimescaleDB {
		stmts = append(stmts, fmt.Sprintf(
			"SELECT create_hypertable('%s', by_range('dateTime', %d), if_not_exists => TRUE)",
			archiveTable, hypertableChunk))
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "executing %q", stmt)
		}
	}
	return nil
}

func (p *PostgresDatabase) Load(ctx context.Context, records iter.Seq[model.Observation]) (int, error) {
	rows := rowsFor(p.cfg.Schema)
	table := p.types.table(p.cfg.Schema)
	columns := p.types.columns(p.cfg.Schema)

	if p.backend == CrateDB {
		// CrateDB has no COPY FROM STDIN.
		insert := p.types.insert(p.cfg.Schema, dollar)
		n, err := inBatches(records, p.cfg.batchSize(), rows, func(batch [][]any) error {
			b := &pgx.Batch{}
			for _, row := range batch {
				b.Queue(insert, row...)
			}
			return errors.Wrap(p.pool.SendBatch(ctx, b).Close(), "sending insert batch")
		})
		if err != nil {
			return n, err
		}
		// Rows only become visible to queries after a refresh.
		if _, err := p.pool.Exec(ctx, "REFRESH TABLE "+p.types.quote(table)); err != nil {
			return n, errors.Wrap(err, "refreshing table")
		}
		return n, nil
	}

	return inBatches(records, p.cfg.batchSize(), rows, func(batch [][]any) error {
		_, err := p.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(batch))
		if err != nil {
			return errors.Wrapf(err, "copying %d rows", len(batch))
		}
		return nil
	})
}

func (p *PostgresDatabase) Strategy(kind extremum.Kind) (extremum.Strategy, error) {
	q := extremum.NewPgxQuerier(p.pool)
	layout := p.cfg.layout()
	if kind == extremum.TimeBucketed {
		if p.backend != TimescaleDB {
			return nil, unsupported(p.backend, p.cfg.Schema, kind)
		}
		return extremum.NewTimescaleBuckets(q, layout, p.cfg.Location)
	}
	return relationalStrategy(p.backend, p.cfg.Schema, kind, q, extremum.DialectPostgres, layout)
}

func (p *PostgresDatabase) Close() error {
	p.pool.Close()
	return nil
}
