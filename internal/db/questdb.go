package db

import (
	"context"
	"iter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	qdb "github.com/questdb/go-questdb-client/v3"
	log "github.com/sirupsen/logrus"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

const (
	questDDL = `CREATE TABLE archive (
		dateTime TIMESTAMP,
		usUnits INT,
		interval INT,
		outTemp DOUBLE,
		barometer DOUBLE,
		windSpeed DOUBLE,
		windDir DOUBLE,
		windGust DOUBLE,
		windGustDir DOUBLE,
		rain DOUBLE
	) TIMESTAMP(dateTime) PARTITION BY MONTH BYPASS WAL`

	questVisibilityPolls = 50
	questVisibilityDelay = 100 * time.Millisecond
)

// QuestDatabase ingests over the InfluxDB line protocol and queries over
// the PostgreSQL wire protocol.
type QuestDatabase struct {
	sender qdb.LineSender
	pool   *pgxpool.Pool
	cfg    Config
}

func NewQuestDB(ctx context.Context, cfg Config) (*QuestDatabase, error) {
	if cfg.IngestConf == "" || cfg.DSN == "" {
		return nil, errors.New("questdb needs an ingest configuration and a query URL")
	}
	sender, err := qdb.LineSenderFromConf(ctx, cfg.IngestConf)
	if err != nil {
		return nil, errors.Wrap(err, "creating questdb line sender")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		_ = sender.Close(ctx)
		return nil, errors.Wrap(err, "creating questdb query pool")
	}
	return &QuestDatabase{sender: sender, pool: pool, cfg: cfg}, nil
}

func (d *QuestDatabase) Backend() Backend {
	return QuestDB
}

func (d *QuestDatabase) InitialiseSchema(ctx context.Context) error {
	for _, stmt := range []string{"DROP TABLE IF EXISTS archive", questDDL} {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "executing %q", stmt)
		}
	}
	return nil
}

func (d *QuestDatabase) Load(ctx context.Context, records iter.Seq[model.Observation]) (int, error) {
	n, err := inBatches(records, d.cfg.batchSize(), func(o model.Observation) []model.Observation {
		return []model.Observation{o}
	}, func(batch []model.Observation) error {
		for _, o := range batch {
			line := d.sender.Table(archiveTable).
				Int64Column("usUnits", int64(o.UsUnits)).
				Int64Column("interval", int64(o.Interval))
			for _, s := range model.Sensors {
				if v, ok := o.Value(s); ok {
					line = line.Float64Column(string(s), v)
				}
			}
			if err := line.At(ctx, time.Unix(o.Timestamp, 0)); err != nil {
				return errors.Wrapf(err, "sending record %d", o.Timestamp)
			}
		}
		return errors.Wrap(d.sender.Flush(ctx), "flushing line sender")
	})
	if err != nil {
		return n, err
	}
	return n, d.waitVisible(ctx, n)
}

// waitVisible polls until the query side sees every ingested row.
func (d *QuestDatabase) waitVisible(ctx context.Context, want int) error {
	var got int64
	for range questVisibilityPolls {
		if err := d.pool.QueryRow(ctx, "SELECT count() FROM archive").Scan(&got); err != nil {
			return errors.Wrap(err, "counting archive rows")
		}
		if got >= int64(want) {
			return nil
		}
		log.Debugf("QuestDB shows %d of %d rows", got, want)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(questVisibilityDelay):
		}
	}
	return errors.Errorf("questdb shows %d of %d ingested rows", got, want)
}

func (d *QuestDatabase) Strategy(kind extremum.Kind) (extremum.Strategy, error) {
	if kind != extremum.SortLimit {
		return nil, unsupported(QuestDB, d.cfg.Schema, kind)
	}
	layout := extremum.WideLayout(archiveTable)
	layout.TimeIsTimestamp = true
	return extremum.NewSortLimit(extremum.NewPgxQuerier(d.pool), extremum.DialectPostgres, layout)
}

func (d *QuestDatabase) Close() error {
	var result *multierror.Error
	if err := d.sender.Close(context.Background()); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "closing line sender"))
	}
	d.pool.Close()
	return result.ErrorOrNil()
}
