// Package orchestrator drives one benchmark session: it prepares the
// backend, runs every configured strategy for every sensor, writes the
// per-run output files and summarises the timings.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/smartcampus/daymax/internal/calendar"
	"github.com/smartcampus/daymax/internal/compare"
	"github.com/smartcampus/daymax/internal/configuration"
	"github.com/smartcampus/daymax/internal/db"
	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
	"github.com/smartcampus/daymax/internal/report"
	"github.com/smartcampus/daymax/internal/runner"
	"github.com/smartcampus/daymax/internal/sink"
	"github.com/smartcampus/daymax/internal/synth"
)

type IngestionResult struct {
	DurationMs int64 `json:"durationMs"`
	NRecords   int   `json:"nRecords"`
}

type QueryResult struct {
	Strategy   extremum.Kind `json:"strategy"`
	Sensor     model.Sensor  `json:"sensor"`
	DurationMs int64         `json:"durationMs"`
	Queries    int           `json:"queries"`
	Days       int           `json:"days"`
	EmptyDays  int           `json:"emptyDays"`
	Output     string        `json:"output"`
	// Comparison describes how the record differs from the first strategy
	// run for the same sensor. It is empty for that first strategy.
	Comparison string `json:"comparison,omitempty"`
	Equivalent bool   `json:"equivalent"`
}

// Summary is written as JSON at the end of a session.
type Summary struct {
	DbType    db.Backend        `json:"dbType"`
	Schema    db.Schema         `json:"schema"`
	Timezone  string            `json:"timezone"`
	Start     int64             `json:"start"`
	Stop      int64             `json:"stop"`
	Ingestion []IngestionResult `json:"ingestion"`
	Queries   []QueryResult     `json:"queries"`

	// Path is where the summary was written.
	Path string `json:"-"`
}

// Equivalent reports whether every strategy agreed with the first one run
// for its sensor.
func (s *Summary) Equivalent() bool {
	for _, q := range s.Queries {
		if !q.Equivalent {
			return false
		}
	}
	return true
}

type Session struct {
	cfg    configuration.Config
	open   func(ctx context.Context, cfg db.Config) (db.Database, error)
	create func(path string) (io.WriteCloser, error)
	now    func() time.Time
}

func NewSession(cfg configuration.Config) *Session {
	return &Session{cfg: cfg, open: db.Open, create: createFile, now: time.Now}
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// OutputName is the file a run's record is written to.
func OutputName(backend db.Backend, kind extremum.Kind, sensor model.Sensor) string {
	return fmt.Sprintf("%s_%s_%s.out", backend, kind, sensor)
}

// Load initialises the schema and loads synthetic data without running any
// strategy.
func (s *Session) Load(ctx context.Context) (result *IngestionResult, err error) {
	loc, start, stop, err := s.bounds()
	if err != nil {
		return nil, err
	}
	database, err := s.open(ctx, s.cfg.DB(loc))
	if err != nil {
		return nil, err
	}
	defer closeDatabase(database, &err)

	metrics := report.NewMetrics(database.Backend().String())
	if result, err = s.ingest(ctx, database, start, stop, metrics); err != nil {
		return nil, err
	}
	if err = s.writeMetrics(metrics); err != nil {
		return nil, err
	}
	return result, nil
}

// Run executes the whole session. A failing strategy aborts the session;
// output files of runs that completed before it are kept.
func (s *Session) Run(ctx context.Context) (summary *Summary, err error) {
	loc, start, stop, err := s.bounds()
	if err != nil {
		return nil, err
	}
	spans, err := calendar.NewSpanGenerator(start, stop, loc)
	if err != nil {
		return nil, err
	}
	database, err := s.open(ctx, s.cfg.DB(loc))
	if err != nil {
		return nil, err
	}
	defer closeDatabase(database, &err)

	backend := database.Backend()
	metrics := report.NewMetrics(backend.String())
	summary = &Summary{
		DbType:   backend,
		Schema:   s.cfg.Database.Schema,
		Timezone: loc.String(),
		Start:    start,
		Stop:     stop,
	}

	if s.cfg.Generate {
		ingestion, err := s.ingest(ctx, database, start, stop, metrics)
		if err != nil {
			return nil, err
		}
		summary.Ingestion = append(summary.Ingestion, *ingestion)
	}

	strategies, err := resolveStrategies(database, s.cfg.Strategies)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}

	run := runner.New(report.Observers(report.NewLogObserver(backend.String(), loc), metrics))
	for _, sensor := range s.cfg.Sensors {
		var reference *runner.Result
		for _, strategy := range strategies {
			result, err := run.Run(ctx, spans, strategy, sensor)
			if err != nil {
				return nil, errors.Wrapf(err, "running %s for %s on %s", strategy.Kind(), sensor, backend)
			}

			path := filepath.Join(s.cfg.OutputDir, OutputName(backend, result.Kind, sensor))
			if err := sink.NewFileSink(path, loc).Write(result.Record); err != nil {
				return nil, err
			}

			q := QueryResult{
				Strategy:   result.Kind,
				Sensor:     sensor,
				DurationMs: result.Elapsed.Milliseconds(),
				Queries:    len(result.QueryDurations),
				Days:       len(result.Record),
				EmptyDays:  result.Record.EmptyCount(),
				Output:     path,
				Equivalent: true,
			}
			if reference == nil {
				reference = result
			} else {
				diff := compare.Records(reference.Record, result.Record)
				q.Comparison = diff.String()
				q.Equivalent = diff.Equivalent()
				entry := log.WithFields(log.Fields{"sensor": sensor, "strategy": result.Kind, "reference": reference.Kind})
				if q.Equivalent {
					entry.Infof("Matches reference: %s", diff)
				} else {
					entry.Warnf("Differs from reference: %s", diff)
				}
			}
			summary.Queries = append(summary.Queries, q)
		}
	}

	if err := s.writeSummary(summary); err != nil {
		return nil, err
	}
	if err := s.writeMetrics(metrics); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Session) bounds() (*time.Location, int64, int64, error) {
	loc, err := s.cfg.Location()
	if err != nil {
		return nil, 0, 0, err
	}
	start, stop, err := s.cfg.Range()
	if err != nil {
		return nil, 0, 0, err
	}
	return loc, start, stop, nil
}

func (s *Session) ingest(ctx context.Context, database db.Database, start, stop int64, metrics *report.Metrics) (*IngestionResult, error) {
	gen, err := synth.New(start, stop, s.cfg.IntervalSeconds())
	if err != nil {
		return nil, err
	}
	if err := database.InitialiseSchema(ctx); err != nil {
		return nil, err
	}

	log.WithField("backend", database.Backend()).Infof("Loading %d records", gen.Count())
	began := s.now()
	n, err := database.Load(ctx, gen.Records())
	took := s.now().Sub(began)
	if err != nil {
		return nil, err
	}
	metrics.ObserveLoad(n, took)
	log.WithField("backend", database.Backend()).Infof("Loaded %d rows in %.2f seconds", n, took.Seconds())
	return &IngestionResult{DurationMs: took.Milliseconds(), NRecords: n}, nil
}

// resolveStrategies builds the configured kinds, or every kind the backend
// supports when none are configured.
func resolveStrategies(database db.Database, kinds []extremum.Kind) ([]extremum.Strategy, error) {
	explicit := len(kinds) > 0
	if !explicit {
		kinds = extremum.Kinds
	}
	var strategies []extremum.Strategy
	for _, kind := range kinds {
		strategy, err := database.Strategy(kind)
		if err != nil {
			if !explicit && errors.Is(err, db.ErrUnsupportedStrategy) {
				log.WithField("backend", database.Backend()).Debugf("Skipping %s", kind)
				continue
			}
			return nil, err
		}
		strategies = append(strategies, strategy)
	}
	if len(strategies) == 0 {
		return nil, errors.Errorf("no strategies available for %s", database.Backend())
	}
	return strategies, nil
}

func (s *Session) writeSummary(summary *Summary) error {
	path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("daymax-result-%s.json", s.now().Format("20060102-150405")))
	out, err := s.create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	summary.Path = path
	log.Infof("Summary written to %s", path)
	return nil
}

func (s *Session) writeMetrics(metrics *report.Metrics) error {
	if s.cfg.MetricsFile == "" {
		return nil
	}
	return metrics.WriteToTextfile(s.cfg.MetricsFile)
}

func closeDatabase(database db.Database, err *error) {
	if cerr := database.Close(); cerr != nil {
		*err = multierror.Append(*err, errors.Wrap(cerr, "closing database")).ErrorOrNil()
	}
}
