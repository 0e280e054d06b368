package db

import (
	"context"
	"database/sql"
	"iter"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

// SQLDatabase is an engine reached through database/sql: SQLite, MySQL or
// ClickHouse.
type SQLDatabase struct {
	backend Backend
	db      *sql.DB
	dialect string
	types   columnTypes
	cfg     Config
}

func NewSQLite(cfg Config) (*SQLDatabase, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite needs a database file path")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", cfg.DSN)
	}
	// One writer at a time; extra connections only contend for the lock.
	db.SetMaxOpenConns(1)
	return &SQLDatabase{backend: SQLite, db: db, dialect: extremum.DialectSQLite, types: sqliteTypes, cfg: cfg}, nil
}

func NewMySQL(cfg Config) (*SQLDatabase, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parsing mysql dsn")
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db := sql.OpenDB(connector)
	return &SQLDatabase{backend: MySQL, db: db, dialect: extremum.DialectMySQL, types: mysqlTypes, cfg: cfg}, nil
}

func NewClickHouse(cfg Config) (*SQLDatabase, error) {
	if cfg.DSN == "" {
		return nil, errors.New("clickhouse needs an address")
	}
	database := cfg.Database
	if database == "" {
		database = "default"
	}
	username := cfg.Username
	if username == "" {
		username = "default"
	}
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.DSN},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: cfg.Password,
		},
	})
	return &SQLDatabase{backend: ClickHouse, db: db, dialect: extremum.DialectDefault, types: clickhouseTypes, cfg: cfg}, nil
}

func (s *SQLDatabase) Backend() Backend {
	return s.backend
}

func (s *SQLDatabase) InitialiseSchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrapf(err, "connecting to %s", s.backend)
	}
	for _, stmt := range []string{s.types.drop(s.cfg.Schema), s.types.ddl(s.cfg.Schema)} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "executing %q", stmt)
		}
	}
	return nil
}

func (s *SQLDatabase) Load(ctx context.Context, records iter.Seq[model.Observation]) (int, error) {
	l := &txLoader{
		db:        s.db,
		insert:    s.types.insert(s.cfg.Schema, questionMark),
		batchSize: s.cfg.batchSize(),
	}
	return l.load(ctx, records, rowsFor(s.cfg.Schema))
}

func (s *SQLDatabase) Strategy(kind extremum.Kind) (extremum.Strategy, error) {
	q := extremum.NewSQLQuerier(s.db)
	layout := s.cfg.layout()
	if kind == extremum.TimeBucketed {
		if s.backend != ClickHouse {
			return nil, unsupported(s.backend, s.cfg.Schema, kind)
		}
		return extremum.NewClickHouseBuckets(q, layout, s.cfg.Location)
	}
	return relationalStrategy(s.backend, s.cfg.Schema, kind, q, s.dialect, layout)
}

func (s *SQLDatabase) Close() error {
	return errors.WithStack(s.db.Close())
}

// txLoader inserts rows through one prepared statement, committing every
// batchSize rows.
type txLoader struct {
	db        *sql.DB
	insert    string
	batchSize int

	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
}

func (l *txLoader) begin(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	stmt, err := tx.PrepareContext(ctx, l.insert)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "preparing %q", l.insert)
	}
	l.tx, l.stmt = tx, stmt
	return nil
}

func (l *txLoader) commit() error {
	if l.tx == nil {
		return nil
	}
	_ = l.stmt.Close()
	err := l.tx.Commit()
	l.tx, l.stmt, l.pending = nil, nil, 0
	return errors.Wrap(err, "committing batch")
}

func (l *txLoader) rollback() {
	if l.tx != nil {
		_ = l.stmt.Close()
		_ = l.tx.Rollback()
		l.tx, l.stmt = nil, nil
	}
}

func (l *txLoader) load(ctx context.Context, records iter.Seq[model.Observation], rows func(model.Observation) [][]any) (int, error) {
	n := 0
	for o := range records {
		if l.tx == nil {
			if err := l.begin(ctx); err != nil {
				return n, err
			}
		}
		for _, row := range rows(o) {
			if _, err := l.stmt.ExecContext(ctx, row...); err != nil {
				l.rollback()
				return n, errors.Wrapf(err, "inserting record %d", o.Timestamp)
			}
			l.pending++
		}
		n++
		if l.pending >= l.batchSize {
			if err := l.commit(); err != nil {
				return n, err
			}
			log.Debugf("Committed %d records, last at %d", n, o.Timestamp)
		}
	}
	return n, l.commit()
}
