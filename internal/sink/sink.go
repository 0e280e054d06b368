// Package sink writes benchmark records as text, one line per day:
//
//	2010-01-01 14:35:00 PST (1262385300) 71.25
//
// and reads them back.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/model"
)

// Missing is written in both fields for a day without observations.
const Missing = "N/A"

const timestampLayout = "2006-01-02 15:04:05 MST"

type Sink interface {
	Write(record model.Record) error
}

// FormatTimestamp renders ts as local time followed by the epoch seconds.
func FormatTimestamp(ts int64, loc *time.Location) string {
	return fmt.Sprintf("%s (%d)", time.Unix(ts, 0).In(loc).Format(timestampLayout), ts)
}

// FormatLine renders one entry without the trailing newline.
func FormatLine(e model.Extremum, loc *time.Location) string {
	if !e.Valid {
		return Missing + " " + Missing
	}
	return fmt.Sprintf("%s %.2f", FormatTimestamp(e.Timestamp, loc), e.Value)
}

// TextSink writes records to an io.Writer.
type TextSink struct {
	w   io.Writer
	loc *time.Location
}

func NewTextSink(w io.Writer, loc *time.Location) *TextSink {
	return &TextSink{w: w, loc: loc}
}

func (s *TextSink) Write(record model.Record) error {
	bw := bufio.NewWriter(s.w)
	for _, e := range record {
		if _, err := bw.WriteString(FormatLine(e, s.loc) + "\n"); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(bw.Flush())
}

// FileSink writes each record to Path, replacing any previous content.
type FileSink struct {
	Path string
	Loc  *time.Location
}

func NewFileSink(path string, loc *time.Location) *FileSink {
	return &FileSink{Path: path, Loc: loc}
}

func (s *FileSink) Write(record model.Record) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	out, err := os.Create(s.Path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", s.Path)
	}
	if err := NewTextSink(out, s.Loc).Write(record); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "writing %s", s.Path)
	}
	return errors.Wrapf(out.Close(), "closing %s", s.Path)
}

// Line is one parsed output line.
type Line struct {
	Timestamp string
	Value     float64
	Valid     bool
}

// Parse reads lines written by TextSink. The value is the last
// space-separated field; everything before it is the timestamp.
func Parse(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		cut := strings.LastIndexByte(text, ' ')
		if cut <= 0 {
			return nil, errors.Errorf("line %d: expected \"<timestamp> <value>\", got %q", n, text)
		}
		stamp, value := text[:cut], text[cut+1:]
		if stamp == Missing && value == Missing {
			lines = append(lines, Line{})
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		lines = append(lines, Line{Timestamp: stamp, Value: v, Valid: true})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return lines, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	return Parse(f)
}

// Epoch extracts the epoch seconds from a formatted timestamp.
func (l Line) Epoch() (int64, bool) {
	open := strings.LastIndexByte(l.Timestamp, '(')
	if !l.Valid || open < 0 || !strings.HasSuffix(l.Timestamp, ")") {
		return 0, false
	}
	ts, err := strconv.ParseInt(l.Timestamp[open+1:len(l.Timestamp)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
