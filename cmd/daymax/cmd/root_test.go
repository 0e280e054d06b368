package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcampus/daymax/internal/model"
	"github.com/smartcampus/daymax/internal/sink"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	cmd := RootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSpans_DSTWeek(t *testing.T) {
	out, err := execute(t, "spans",
		"--timezone", "America/Los_Angeles", "--start", "2020-03-07", "--stop", "2020-03-10", "--log-level", "warn")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2020-03-07 00:00:00 PST (1583568000)\t2020-03-08 00:00:00 PST (1583654400)\t86400s", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "\t82800s"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "\t86400s"), lines[2])
}

func TestSpans_InvalidRange(t *testing.T) {
	_, err := execute(t, "spans", "--timezone", "UTC", "--start", "2020-03-07", "--stop", "2020-03-07")
	assert.Error(t, err)
}

func writeRecord(t *testing.T, dir, name string, record model.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, sink.NewFileSink(path, time.UTC).Write(record))
	return path
}

func TestCompare(t *testing.T) {
	dir := t.TempDir()
	reference := writeRecord(t, dir, "a.out", model.Record{model.NewExtremum(100, 71.5), model.Empty, model.NewExtremum(300, 30.1)})
	tied := writeRecord(t, dir, "b.out", model.Record{model.NewExtremum(100, 71.5), model.Empty, model.NewExtremum(250, 30.1)})
	wrong := writeRecord(t, dir, "c.out", model.Record{model.NewExtremum(100, 71.5), model.NewExtremum(200, 12), model.NewExtremum(300, 30.1)})

	out, err := execute(t, "compare", reference, tied, "--timezone", "UTC")
	require.NoError(t, err)
	assert.Contains(t, out, "3 compared, 2 matched, 1 tie divergence")
	assert.NotContains(t, out, "day 2")

	out, err = execute(t, "compare", reference, tied, "--ties", "--timezone", "UTC")
	require.NoError(t, err)
	assert.Contains(t, out, "day 2: tie divergence")

	out, err = execute(t, "compare", reference, wrong, "--timezone", "UTC")
	require.Error(t, err)
	assert.Contains(t, out, "day 1: presence mismatch")
}

func TestCompare_Args(t *testing.T) {
	_, err := execute(t, "compare", "only-one.out")
	assert.Error(t, err)
}
