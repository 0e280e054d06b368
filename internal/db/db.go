// Package db stores archive records in the benchmarked engines and hands
// out the query strategies each engine can answer.
package db

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

type Backend string

const (
	SQLite      Backend = "sqlite"
	MySQL       Backend = "mysql"
	Postgres    Backend = "postgres"
	TimescaleDB Backend = "timescaledb"
	CrateDB     Backend = "cratedb"
	ClickHouse  Backend = "clickhouse"
	QuestDB     Backend = "questdb"
	InfluxDB    Backend = "influxdb"
	MongoDB     Backend = "mongodb"
)

var Backends = []Backend{SQLite, MySQL, Postgres, TimescaleDB, CrateDB, ClickHouse, QuestDB, InfluxDB, MongoDB}

func (b Backend) String() string {
	return string(b)
}

func ParseBackend(name string) (Backend, error) {
	for _, b := range Backends {
		if strings.EqualFold(string(b), name) {
			return b, nil
		}
	}
	return "", errors.Errorf("unknown backend %q", name)
}

// Schema selects how relational engines lay out observations.
type Schema string

const (
	// Wide is one row per timestamp with one column per sensor.
	Wide Schema = "wide"
	// Normalized is one row per (timestamp, sensor).
	Normalized Schema = "normalized"
)

func ParseSchema(name string) (Schema, error) {
	switch Schema(strings.ToLower(name)) {
	case Wide:
		return Wide, nil
	case Normalized:
		return Normalized, nil
	}
	return "", errors.Errorf("unknown schema %q", name)
}

const (
	archiveTable     = "archive"
	normalizedTable  = "bench"
	influxMeasure    = "wxpacket"
	DefaultBatchSize = 32000
)

// ErrUnsupportedStrategy is returned by Database.Strategy for a kind the
// engine or schema cannot answer.
var ErrUnsupportedStrategy = errors.New("strategy not supported")

func unsupported(b Backend, s Schema, kind extremum.Kind) error {
	return errors.Wrapf(ErrUnsupportedStrategy, "%s on %s (%s schema)", kind, b, s)
}

type Database interface {
	Backend() Backend
	// InitialiseSchema drops any previous benchmark data and creates empty
	// storage for it.
	InitialiseSchema(ctx context.Context) error
	// Load stores records, committing every BatchSize rows, and returns the
	// number of records stored.
	Load(ctx context.Context, records iter.Seq[model.Observation]) (int, error)
	Strategy(kind extremum.Kind) (extremum.Strategy, error)
	Close() error
}

// Config selects and addresses one engine.
type Config struct {
	Backend   Backend
	Schema    Schema
	BatchSize int
	// Location is the timezone day buckets are computed in.
	Location *time.Location

	// DSN is a file path for SQLite, a driver DSN for MySQL, a connection
	// URL for the pgx engines, MongoDB and InfluxDB, and host:port for
	// ClickHouse. For QuestDB it is the PostgreSQL wire URL used to query.
	DSN string
	// IngestConf is the QuestDB ILP client configuration string.
	IngestConf string
	// Database is the ClickHouse or MongoDB database name.
	Database string
	Username string
	Password string
	// Token, Org and Bucket address InfluxDB.
	Token  string
	Org    string
	Bucket string
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

func (c Config) layout() extremum.Layout {
	if c.Schema == Normalized {
		return extremum.NormalizedLayout(normalizedTable)
	}
	return extremum.WideLayout(archiveTable)
}

// Open creates the client for cfg.Backend. Clients connect lazily;
// connection problems surface from InitialiseSchema or the first query.
func Open(ctx context.Context, cfg Config) (Database, error) {
	if cfg.Schema == "" {
		cfg.Schema = Wide
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Schema == Normalized && !supportsNormalized(cfg.Backend) {
		return nil, errors.Errorf("%s only supports the %s schema", cfg.Backend, Wide)
	}
	switch cfg.Backend {
	case SQLite:
		return database(NewSQLite(cfg))
	case MySQL:
		return database(NewMySQL(cfg))
	case ClickHouse:
		return database(NewClickHouse(cfg))
	case Postgres, TimescaleDB, CrateDB:
		return database(NewPostgres(ctx, cfg))
	case QuestDB:
		return database(NewQuestDB(ctx, cfg))
	case InfluxDB:
		return database(NewInfluxDB(cfg))
	case MongoDB:
		return database(NewMongoDB(ctx, cfg))
	default:
		return nil, errors.Errorf("no database backend named %q", cfg.Backend)
	}
}

// database keeps a failed constructor's nil pointer out of the interface.
func database[T Database](d T, err error) (Database, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}

func supportsNormalized(b Backend) bool {
	switch b {
	case SQLite, MySQL, Postgres:
		return true
	}
	return false
}

// relationalStrategy resolves the per-span SQL kinds shared by every
// relational engine.
func relationalStrategy(b Backend, schema Schema, kind extremum.Kind, q extremum.Querier, dialect string, layout extremum.Layout) (extremum.Strategy, error) {
	switch kind {
	case extremum.CorrelatedSubquery:
		if layout.Normalized() {
			return nil, unsupported(b, schema, kind)
		}
		return extremum.NewCorrelatedSubquery(q, dialect, layout)
	case extremum.NormalizedSubquery:
		if !layout.Normalized() {
			return nil, unsupported(b, schema, kind)
		}
		return extremum.NewNormalizedSubquery(q, dialect, layout)
	case extremum.TwoQueryAggregate:
		return extremum.NewTwoQueryAggregate(q, dialect, layout)
	case extremum.SortLimit:
		return extremum.NewSortLimit(q, dialect, layout)
	default:
		return nil, unsupported(b, schema, kind)
	}
}
