// Package model holds the value types shared by every package: sensor
// names, archive observations, day spans and the per-day maxima.
package model

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Sensor names a single observation type. The set is closed: names are used
// as column identifiers by the relational backends.
type Sensor string

const (
	OutTemp     Sensor = "outTemp"
	Barometer   Sensor = "barometer"
	WindSpeed   Sensor = "windSpeed"
	WindDir     Sensor = "windDir"
	WindGust    Sensor = "windGust"
	WindGustDir Sensor = "windGustDir"
	Rain        Sensor = "rain"
)

// Sensors lists every known sensor in schema column order.
var Sensors = []Sensor{OutTemp, Barometer, WindSpeed, WindDir, WindGust, WindGustDir, Rain}

func (s Sensor) String() string {
	return string(s)
}

// ParseSensor matches a name case-insensitively against the known sensors.
func ParseSensor(name string) (Sensor, error) {
	for _, s := range Sensors {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", errors.Errorf("unknown sensor %q", name)
}

// Observation is one archive record: a timestamp plus every sensor reading
// taken at that time. A nil reading means the value is missing.
type Observation struct {
	Timestamp   int64
	UsUnits     int
	Interval    int
	OutTemp     *float64
	Barometer   *float64
	WindSpeed   *float64
	WindDir     *float64
	WindGust    *float64
	WindGustDir *float64
	Rain        *float64
}

// Value returns the reading for s and whether it is present.
func (o Observation) Value(s Sensor) (float64, bool) {
	var v *float64
	switch s {
	case OutTemp:
		v = o.OutTemp
	case Barometer:
		v = o.Barometer
	case WindSpeed:
		v = o.WindSpeed
	case WindDir:
		v = o.WindDir
	case WindGust:
		v = o.WindGust
	case WindGustDir:
		v = o.WindGustDir
	case Rain:
		v = o.Rain
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Field returns a pointer to the reading slot for s, or nil for an unknown sensor.
func (o *Observation) Field(s Sensor) **float64 {
	switch s {
	case OutTemp:
		return &o.OutTemp
	case Barometer:
		return &o.Barometer
	case WindSpeed:
		return &o.WindSpeed
	case WindDir:
		return &o.WindDir
	case WindGust:
		return &o.WindGust
	case WindGustDir:
		return &o.WindGustDir
	case Rain:
		return &o.Rain
	}
	return nil
}

// DaySpan is the half-open interval (Start, End] in epoch seconds.
type DaySpan struct {
	Start int64
	End   int64
}

func (s DaySpan) Contains(ts int64) bool {
	return ts > s.Start && ts <= s.End
}

// Seconds is the length of the span. Usually 86400, but 82800 or 90000 on
// the days a DST transition happens.
func (s DaySpan) Seconds() int64 {
	return s.End - s.Start
}

func (s DaySpan) String() string {
	return fmt.Sprintf("(%d, %d]", s.Start, s.End)
}

// Extremum is the maximum of a sensor within a span and the time it was
// observed. Valid is false when the span held no value for the sensor.
type Extremum struct {
	Timestamp int64
	Value     float64
	Valid     bool
}

// Empty is the result for a span without observations.
var Empty = Extremum{}

func NewExtremum(ts int64, value float64) Extremum {
	return Extremum{Timestamp: ts, Value: value, Valid: true}
}

// Record is one extremum per span, in span order.
type Record []Extremum

// EmptyCount returns how many spans had no value.
func (r Record) EmptyCount() int {
	n := 0
	for _, e := range r {
		if !e.Valid {
			n++
		}
	}
	return n
}
