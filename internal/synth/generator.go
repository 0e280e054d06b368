// Package synth generates deterministic fake weather archive records.
package synth

import (
	"iter"
	"math"

	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
)

const (
	avgTemp        = 70.0
	ampTemp        = 20.0
	dailyTempRange = 40.0
	avgBaro        = 30.0
	ampBaro        = 1.0
	ampWind        = 10.0
	weatherCycle   = 3600 * 24.0 * 4
	daySeconds     = 3600 * 24.0
	yearSeconds    = daySeconds * 365.0

	// Every nullEvery'th sensor value is dropped, counting across sensors.
	nullEvery = 71

	usUnits = 1
)

// nullable are the sensors subject to periodic nulls, in counting order.
var nullable = []model.Sensor{
	model.Barometer, model.OutTemp, model.WindDir, model.WindGust, model.WindGustDir, model.WindSpeed,
}

type spike struct {
	sensor model.Sensor
	value  float64
}

type gap struct {
	from, to int64
}

// Generator yields one record every Interval seconds from Start to Stop
// inclusive.
type Generator struct {
	Start    int64
	Stop     int64
	Interval int64

	spikes map[int64][]spike
	gaps   []gap
}

type Option func(*Generator)

// WithSpike overrides the value of sensor at ts.
func WithSpike(ts int64, sensor model.Sensor, value float64) Option {
	return func(g *Generator) {
		g.spikes[ts] = append(g.spikes[ts], spike{sensor: sensor, value: value})
	}
}

// WithGap leaves out every record with from <= ts < to.
func WithGap(from, to int64) Option {
	return func(g *Generator) {
		g.gaps = append(g.gaps, gap{from: from, to: to})
	}
}

func New(start, stop, interval int64, opts ...Option) (*Generator, error) {
	if interval <= 0 {
		return nil, errors.Errorf("interval must be positive, got %d", interval)
	}
	if stop < start {
		return nil, errors.Errorf("stop %d is before start %d", stop, start)
	}
	g := &Generator{Start: start, Stop: stop, Interval: interval, spikes: map[int64][]spike{}}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Count is the number of records Records yields.
func (g *Generator) Count() int {
	n := 0
	for ts := g.Start; ts <= g.Stop; ts += g.Interval {
		if !g.skipped(ts) {
			n++
		}
	}
	return n
}

func (g *Generator) skipped(ts int64) bool {
	for _, gp := range g.gaps {
		if ts >= gp.from && ts < gp.to {
			return true
		}
	}
	return false
}

// Records yields the records in timestamp order. The output only depends on
// the generator's parameters, so repeated iterations are identical.
func (g *Generator) Records() iter.Seq[model.Observation] {
	return func(yield func(model.Observation) bool) {
		count := 0
		for ts := g.Start; ts <= g.Stop; ts += g.Interval {
			obs := g.record(ts)
			for _, s := range nullable {
				count++
				if count%nullEvery == 0 {
					*obs.Field(s) = nil
				}
			}
			for _, sp := range g.spikes[ts] {
				v := sp.value
				*obs.Field(sp.sensor) = &v
			}
			if g.skipped(ts) {
				continue
			}
			if !yield(obs) {
				return
			}
		}
	}
}

func (g *Generator) record(ts int64) model.Observation {
	elapsed := float64(ts - g.Start)
	dailyPhase := elapsed * 2.0 * math.Pi / daySeconds
	annualPhase := elapsed * 2.0 * math.Pi / yearSeconds
	weatherPhase := elapsed * 2.0 * math.Pi / weatherCycle

	outTemp := 0.5*ampTemp*(-math.Cos(annualPhase)) + avgTemp + 0.5*dailyTempRange*math.Sin(dailyPhase)
	barometer := 0.5*ampBaro*math.Cos(annualPhase) + avgBaro
	windSpeed := math.Abs(ampWind * (1.0 + math.Sin(weatherPhase)))
	windDir := math.Mod(weatherPhase*180/math.Pi, 360.0)
	windGust := 1.2 * windSpeed
	windGustDir := windDir
	rain := 0.0
	if s := math.Sin(weatherPhase); s > 0.98 {
		rain = 0.08
	} else if s > 0.95 {
		rain = 0.04
	}

	return model.Observation{
		Timestamp:   ts,
		UsUnits:     usUnits,
		Interval:    int(g.Interval / 60),
		OutTemp:     &outTemp,
		Barometer:   &barometer,
		WindSpeed:   &windSpeed,
		WindDir:     &windDir,
		WindGust:    &windGust,
		WindGustDir: &windGustDir,
		Rain:        &rain,
	}
}
