package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcampus/daymax/internal/model"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func TestSpanGenerator_Year(t *testing.T) {
	loc := losAngeles(t)
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, loc).Unix()
	stop := time.Date(2011, 1, 1, 0, 0, 0, 0, loc).Unix()

	g, err := NewSpanGenerator(start, stop, loc)
	require.NoError(t, err)
	spans := g.All()

	require.Len(t, spans, 365)
	assert.Equal(t, start, spans[0].Start)
	assert.Equal(t, stop, spans[len(spans)-1].End)

	lengths := map[int64]int{}
	for i, span := range spans {
		if i > 0 {
			assert.Equal(t, spans[i-1].End, span.Start, "span %d is not contiguous", i)
		}
		assert.Greater(t, span.End, span.Start)
		lengths[span.Seconds()]++

		local := time.Unix(span.Start, 0).In(loc)
		assert.Zero(t, local.Hour())
		assert.Zero(t, local.Minute())
	}
	assert.Equal(t, map[int64]int{86400: 363, 82800: 1, 90000: 1}, lengths)

	springForward := time.Date(2010, 3, 14, 0, 0, 0, 0, loc).Unix()
	fallBack := time.Date(2010, 11, 7, 0, 0, 0, 0, loc).Unix()
	for _, span := range spans {
		switch span.Start {
		case springForward:
			assert.Equal(t, int64(82800), span.Seconds())
		case fallBack:
			assert.Equal(t, int64(90000), span.Seconds())
		}
	}
}

func TestSpanGenerator_CoversRange(t *testing.T) {
	loc := losAngeles(t)
	base := time.Date(2010, 3, 10, 0, 0, 0, 0, loc).Unix()

	tests := map[string]struct {
		start int64
		stop  int64
	}{
		"single second":         {start: base, stop: base + 1},
		"exactly one day":       {start: base, stop: base + 86400},
		"across spring forward": {start: base, stop: time.Date(2010, 3, 20, 0, 0, 0, 0, loc).Unix()},
		"partial last day":      {start: base, stop: base + 5*86400 + 3600},
		"across fall back":      {start: time.Date(2010, 11, 1, 0, 0, 0, 0, loc).Unix(), stop: time.Date(2010, 11, 10, 12, 0, 0, 0, loc).Unix()},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			g, err := NewSpanGenerator(tc.start, tc.stop, loc)
			require.NoError(t, err)
			spans := g.All()
			require.NotEmpty(t, spans)

			assert.Equal(t, tc.start, spans[0].Start)
			assert.Equal(t, tc.stop, spans[len(spans)-1].End)
			var covered int64
			for i, span := range spans {
				if i > 0 {
					assert.Equal(t, spans[i-1].End, span.Start)
				}
				covered += span.Seconds()
			}
			assert.Equal(t, tc.stop-tc.start, covered)
		})
	}
}

func TestSpanGenerator_RoundsStartDown(t *testing.T) {
	loc := losAngeles(t)
	midnight := time.Date(2010, 6, 1, 0, 0, 0, 0, loc).Unix()
	g, err := NewSpanGenerator(midnight+7*3600, midnight+3*86400, loc)
	require.NoError(t, err)

	spans := g.All()
	require.Len(t, spans, 3)
	assert.Equal(t, model.DaySpan{Start: midnight, End: midnight + 86400}, spans[0])
	assert.Equal(t, midnight+3*86400, spans[2].End)
}

func TestSpanGenerator_Restartable(t *testing.T) {
	loc := time.UTC
	g, err := NewSpanGenerator(0, 10*86400, loc)
	require.NoError(t, err)

	var first []model.DaySpan
	for span := range g.Spans() {
		first = append(first, span)
		if len(first) == 3 {
			break
		}
	}
	assert.Len(t, first, 3)
	assert.Len(t, g.All(), 10)
	assert.Equal(t, first, g.All()[:3])
}

func TestNewSpanGenerator_InvalidRange(t *testing.T) {
	tests := map[string]struct {
		start, stop int64
	}{
		"equal":    {start: 100, stop: 100},
		"reversed": {start: 100, stop: 50},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewSpanGenerator(tc.start, tc.stop, time.UTC)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRange)

			var rangeErr *InvalidRangeError
			require.ErrorAs(t, err, &rangeErr)
			assert.Equal(t, tc.start, rangeErr.Start)
			assert.Equal(t, tc.stop, rangeErr.Stop)
		})
	}

	_, err := NewSpanGenerator(0, 1, nil)
	assert.Error(t, err)
}

// In Sao Paulo the 2018 DST change skipped 00:00 on 4 November, so that
// day starts at 01:00 -02 and lasts 23 hours.
func TestSpanGenerator_MidnightSkippedByDST(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	start := time.Date(2018, 11, 1, 0, 0, 0, 0, loc).Unix()
	stop := time.Date(2018, 11, 8, 0, 0, 0, 0, loc).Unix()
	dayStart := time.Date(2018, 11, 4, 3, 0, 0, 0, time.UTC).Unix()

	g, err := NewSpanGenerator(start, stop, loc)
	require.NoError(t, err)
	spans := g.All()

	require.Len(t, spans, 7)
	assert.Equal(t, model.DaySpan{Start: time.Date(2018, 11, 3, 3, 0, 0, 0, time.UTC).Unix(), End: dayStart}, spans[2])
	assert.Equal(t, int64(86400), spans[2].Seconds())
	assert.Equal(t, dayStart, spans[3].Start)
	assert.Equal(t, int64(82800), spans[3].Seconds())
	for i, span := range spans {
		local := time.Unix(span.Start, 0).In(loc)
		assert.Equal(t, 1+i, local.Day(), "span %d starts on the wrong date", i)
		if i != 3 {
			assert.Equal(t, int64(86400), span.Seconds(), "span %d", i)
		}
	}

	noon := time.Date(2018, 11, 4, 12, 0, 0, 0, loc).Unix()
	assert.Equal(t, dayStart, StartOfDay(noon, loc))
	assert.Equal(t, dayStart, NextMidnight(dayStart-1, loc))
	assert.Equal(t, time.Date(2018, 11, 5, 2, 0, 0, 0, time.UTC).Unix(), NextMidnight(dayStart, loc))

	g, err = NewSpanGenerator(noon, stop, loc)
	require.NoError(t, err)
	assert.Equal(t, dayStart, g.All()[0].Start)
}
