package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSensor(t *testing.T) {
	s, err := ParseSensor("OUTTEMP")
	require.NoError(t, err)
	assert.Equal(t, OutTemp, s)

	_, err = ParseSensor("outTemp; DROP TABLE archive")
	assert.Error(t, err)
}

func TestObservation_Value(t *testing.T) {
	v := 12.5
	o := Observation{Timestamp: 1, Barometer: &v}

	got, ok := o.Value(Barometer)
	assert.True(t, ok)
	assert.Equal(t, 12.5, got)

	_, ok = o.Value(OutTemp)
	assert.False(t, ok)

	*o.Field(OutTemp) = &v
	got, ok = o.Value(OutTemp)
	assert.True(t, ok)
	assert.Equal(t, 12.5, got)
}

func TestDaySpan_Contains(t *testing.T) {
	span := DaySpan{Start: 100, End: 200}
	assert.False(t, span.Contains(100))
	assert.True(t, span.Contains(101))
	assert.True(t, span.Contains(200))
	assert.False(t, span.Contains(201))
	assert.Equal(t, int64(100), span.Seconds())
}

func TestRecord_EmptyCount(t *testing.T) {
	r := Record{NewExtremum(1, 2), Empty, NewExtremum(3, 4), Empty}
	assert.Equal(t, 2, r.EmptyCount())
}
