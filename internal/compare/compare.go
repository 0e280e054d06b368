// Package compare checks whether two benchmark records describe the same
// daily maxima.
package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
	"github.com/smartcampus/daymax/internal/sink"
)

type Outcome int

const (
	Match Outcome = iota
	// TieDivergence is the same value at a different timestamp. Strategies
	// break ties differently, so this is not a disagreement.
	TieDivergence
	ValueMismatch
	// PresenceMismatch is one side empty and the other not.
	PresenceMismatch
	// LengthMismatch marks positions only one record has.
	LengthMismatch
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case TieDivergence:
		return "tie divergence"
	case ValueMismatch:
		return "value mismatch"
	case PresenceMismatch:
		return "presence mismatch"
	case LengthMismatch:
		return "length mismatch"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Difference is one position where the records do not match exactly.
type Difference struct {
	Index   int
	Outcome Outcome
	A, B    model.Extremum
}

type Report struct {
	Compared    int
	Differences []Difference
}

// Equivalent is true when the records differ at most in how ties were
// broken.
func (r Report) Equivalent() bool {
	for _, d := range r.Differences {
		if d.Outcome != TieDivergence {
			return false
		}
	}
	return true
}

// Count returns how many positions had outcome o.
func (r Report) Count(o Outcome) int {
	if o == Match {
		return r.Compared - len(r.Differences)
	}
	n := 0
	for _, d := range r.Differences {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d compared, %d matched", r.Compared, r.Count(Match))
	for _, o := range []Outcome{TieDivergence, ValueMismatch, PresenceMismatch, LengthMismatch} {
		if n := r.Count(o); n > 0 {
			fmt.Fprintf(&b, ", %d %s", n, o)
		}
	}
	return b.String()
}

// sameValue compares at the precision the output files carry.
func sameValue(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

func classify(a, b model.Extremum) Outcome {
	switch {
	case !a.Valid && !b.Valid:
		return Match
	case a.Valid != b.Valid:
		return PresenceMismatch
	case !sameValue(a.Value, b.Value):
		return ValueMismatch
	case a.Timestamp != b.Timestamp:
		return TieDivergence
	}
	return Match
}

// Records compares a and b position by position.
func Records(a, b model.Record) Report {
	n := max(len(a), len(b))
	report := Report{Compared: n}
	for i := range n {
		if i >= len(a) || i >= len(b) {
			d := Difference{Index: i, Outcome: LengthMismatch}
			if i < len(a) {
				d.A = a[i]
			} else {
				d.B = b[i]
			}
			report.Differences = append(report.Differences, d)
			continue
		}
		if o := classify(a[i], b[i]); o != Match {
			report.Differences = append(report.Differences, Difference{Index: i, Outcome: o, A: a[i], B: b[i]})
		}
	}
	return report
}

// Lines rebuilds a record from parsed output lines.
func Lines(lines []sink.Line) (model.Record, error) {
	record := make(model.Record, len(lines))
	for i, l := range lines {
		if !l.Valid {
			continue
		}
		ts, ok := l.Epoch()
		if !ok {
			return nil, errors.Errorf("line %d: no epoch in %q", i+1, l.Timestamp)
		}
		record[i] = model.NewExtremum(ts, l.Value)
	}
	return record, nil
}

// Files compares two output files written by sink.FileSink.
func Files(pathA, pathB string) (Report, error) {
	var records [2]model.Record
	for i, path := range []string{pathA, pathB} {
		lines, err := sink.ParseFile(path)
		if err != nil {
			return Report{}, err
		}
		if records[i], err = Lines(lines); err != nil {
			return Report{}, errors.Wrap(err, path)
		}
	}
	return Records(records[0], records[1]), nil
}
