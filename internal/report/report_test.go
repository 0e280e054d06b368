package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
	"github.com/smartcampus/daymax/internal/runner"
)

var info = runner.RunInfo{Kind: extremum.SortLimit, Sensor: model.OutTemp}

func spans(n int) []model.DaySpan {
	out := make([]model.DaySpan, n)
	for i := range out {
		out[i] = model.DaySpan{Start: int64(i) * 86400, End: int64(i+1) * 86400}
	}
	return out
}

// replay feeds a finished result through an observer the way the runner does.
func replay(o runner.Observer, result *runner.Result, took time.Duration) {
	o.RunStarted(info)
	for i, span := range result.Spans {
		o.SpanCompleted(info, i, span, result.Record[i], took)
	}
	o.RunCompleted(info, result)
}

func TestMetrics_Run(t *testing.T) {
	m := NewMetrics("sqlite")
	result := &runner.Result{
		Kind:   info.Kind,
		Sensor: info.Sensor,
		Spans:  spans(3),
		Record: model.Record{model.NewExtremum(100, 71.5), model.Empty, model.NewExtremum(86500*2, 68)},
		QueryDurations: []time.Duration{
			10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond,
		},
		Elapsed: 60 * time.Millisecond,
	}
	replay(m, result, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.spans.WithLabelValues("sqlite", "sort-limit", "outTemp", "value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.spans.WithLabelValues("sqlite", "sort-limit", "outTemp", "empty")))
	assert.InDelta(t, 0.06, testutil.ToFloat64(m.runDuration.WithLabelValues("sqlite", "sort-limit", "outTemp")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.queryDuration))

	m.ObserveLoad(105121, 2500*time.Millisecond)
	assert.Equal(t, 105121.0, testutil.ToFloat64(m.recordsLoaded))
	assert.InDelta(t, 2.5, testutil.ToFloat64(m.loadDuration), 1e-9)
}

func TestMetrics_HistogramCountsCalls(t *testing.T) {
	m := NewMetrics("timescaledb")
	whole := runner.RunInfo{Kind: extremum.TimeBucketed, Sensor: model.Barometer}
	m.RunCompleted(whole, &runner.Result{
		Kind:           whole.Kind,
		Sensor:         whole.Sensor,
		Spans:          spans(365),
		QueryDurations: []time.Duration{1200 * time.Millisecond},
		Elapsed:        1200 * time.Millisecond,
	})

	expected := `
# HELP daymax_run_duration_seconds Time spent in the strategy over a whole run.
# TYPE daymax_run_duration_seconds gauge
daymax_run_duration_seconds{backend="timescaledb",sensor="barometer",strategy="time-bucketed"} 1.2
`
	require.NoError(t, testutil.CollectAndCompare(m.runDuration, strings.NewReader(expected)))

	count, err := testutil.GatherAndCount(m.Registry(), MetricsPrefix+"query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_WriteToTextfile(t *testing.T) {
	m := NewMetrics("mysql")
	m.ObserveLoad(10, time.Second)

	path := filepath.Join(t.TempDir(), "daymax.prom")
	require.NoError(t, m.WriteToTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `daymax_records_loaded{backend="mysql"} 10`)

	assert.Error(t, m.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "daymax.prom")))
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&log.JSONFormatter{})
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
	})

	o := NewLogObserver("sqlite", time.UTC)
	o.every = 2
	result := &runner.Result{
		Spans:          spans(3),
		Record:         model.Record{model.NewExtremum(100, 71.5), model.Empty, model.Empty},
		QueryDurations: make([]time.Duration, 3),
	}
	replay(o, result, time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, `"strategy":"sort-limit"`)
	assert.Contains(t, out, "Processed 2 days")
	assert.Contains(t, out, `"empty":2`)
	assert.Contains(t, out, "Finished in")
	assert.NotContains(t, out, "Day done")
}

type countingObserver struct {
	started, spans, completed int
}

func (c *countingObserver) RunStarted(runner.RunInfo) { c.started++ }

func (c *countingObserver) SpanCompleted(runner.RunInfo, int, model.DaySpan, model.Extremum, time.Duration) {
	c.spans++
}

func (c *countingObserver) RunCompleted(runner.RunInfo, *runner.Result) { c.completed++ }

func TestObservers(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	result := &runner.Result{Spans: spans(4), Record: make(model.Record, 4)}
	replay(Observers(a, b), result, 0)

	for _, c := range []*countingObserver{a, b} {
		assert.Equal(t, 1, c.started)
		assert.Equal(t, 4, c.spans)
		assert.Equal(t, 1, c.completed)
	}
}
