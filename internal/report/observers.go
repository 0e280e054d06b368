// Package report turns runner callbacks into log lines and Prometheus
// metrics.
package report

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/smartcampus/daymax/internal/model"
	"github.com/smartcampus/daymax/internal/runner"
)

// DefaultProgressEvery is how many spans pass between progress lines.
const DefaultProgressEvery = 30

// LogObserver logs run progress through logrus.
type LogObserver struct {
	backend string
	every   int
	loc     *time.Location
}

func NewLogObserver(backend string, loc *time.Location) *LogObserver {
	return &LogObserver{backend: backend, every: DefaultProgressEvery, loc: loc}
}

func (o *LogObserver) fields(info runner.RunInfo) *log.Entry {
	return log.WithFields(log.Fields{
		"backend":  o.backend,
		"strategy": info.Kind,
		"sensor":   info.Sensor,
	})
}

func (o *LogObserver) RunStarted(info runner.RunInfo) {
	o.fields(info).Info("Running daily maximum queries")
}

func (o *LogObserver) SpanCompleted(info runner.RunInfo, index int, span model.DaySpan, result model.Extremum, took time.Duration) {
	entry := o.fields(info).WithFields(log.Fields{"day": index, "span": span.String(), "took": took})
	if result.Valid {
		entry = entry.WithFields(log.Fields{"max": result.Value, "at": time.Unix(result.Timestamp, 0).In(o.loc)})
	}
	if o.every > 0 && (index+1)%o.every == 0 {
		entry.Infof("Processed %d days", index+1)
		return
	}
	entry.Debug("Day done")
}

func (o *LogObserver) RunCompleted(info runner.RunInfo, result *runner.Result) {
	o.fields(info).WithFields(log.Fields{
		"days":    len(result.Record),
		"empty":   result.Record.EmptyCount(),
		"queries": len(result.QueryDurations),
	}).Infof("Finished in %.2f seconds", result.Elapsed.Seconds())
}

// Observers fans callbacks out to every observer in order.
func Observers(observers ...runner.Observer) runner.Observer {
	return multiObserver(observers)
}

type multiObserver []runner.Observer

func (m multiObserver) RunStarted(info runner.RunInfo) {
	for _, o := range m {
		o.RunStarted(info)
	}
}

func (m multiObserver) SpanCompleted(info runner.RunInfo, index int, span model.DaySpan, result model.Extremum, took time.Duration) {
	for _, o := range m {
		o.SpanCompleted(info, index, span, result, took)
	}
}

func (m multiObserver) RunCompleted(info runner.RunInfo, result *runner.Result) {
	for _, o := range m {
		o.RunCompleted(info, result)
	}
}
