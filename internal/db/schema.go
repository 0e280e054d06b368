package db

import (
	"fmt"
	"strings"

	"github.com/smartcampus/daymax/internal/model"
)

// columnTypes is how one SQL engine spells the benchmark tables.
type columnTypes struct {
	quote   func(string) string
	epoch   string
	integer string
	real    string
	text    string
	// suffix follows the closing parenthesis of CREATE TABLE.
	suffix string
	// primaryKey is false for engines that order storage instead.
	primaryKey bool
}

func doubleQuote(name string) string {
	return `"` + name + `"`
}

func backQuote(name string) string {
	return "`" + name + "`"
}

func bare(name string) string {
	return name
}

var (
	sqliteTypes = columnTypes{
		quote: doubleQuote, epoch: "INTEGER NOT NULL", integer: "INTEGER NOT NULL",
		real: "REAL", text: "VARCHAR(63) NOT NULL", primaryKey: true,
	}
	mysqlTypes = columnTypes{
		quote: backQuote, epoch: "BIGINT NOT NULL", integer: "INTEGER NOT NULL",
		real: "DOUBLE", text: "VARCHAR(63) NOT NULL", primaryKey: true,
	}
	postgresTypes = columnTypes{
		quote: doubleQuote, epoch: "BIGINT NOT NULL", integer: "INTEGER NOT NULL",
		real: "DOUBLE PRECISION", text: "VARCHAR(63) NOT NULL", primaryKey: true,
	}
	crateTypes = columnTypes{
		quote: doubleQuote, epoch: "BIGINT NOT NULL", integer: "INTEGER NOT NULL",
		real: "DOUBLE PRECISION", text: "TEXT NOT NULL", primaryKey: true,
		suffix: ` CLUSTERED INTO 4 SHARDS`,
	}
	clickhouseTypes = columnTypes{
		quote: bare, epoch: "Int64", integer: "Int32",
		real: "Nullable(Float64)", text: "LowCardinality(String)",
		suffix: " ENGINE = MergeTree() ORDER BY dateTime",
	}
)

// wideColumns lists the archive table columns in insert order.
func wideColumns() []string {
	cols := []string{"dateTime", "usUnits", "interval"}
	for _, s := range model.Sensors {
		cols = append(cols, string(s))
	}
	return cols
}

var normalizedColumns = []string{"dateTime", "obstype", "measurement"}

func (t columnTypes) wideDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s %s", t.quote(archiveTable), t.quote("dateTime"), t.epoch)
	if t.primaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	fmt.Fprintf(&b, ", %s %s, %s %s", t.quote("usUnits"), t.integer, t.quote("interval"), t.integer)
	for _, s := range model.Sensors {
		fmt.Fprintf(&b, ", %s %s", t.quote(string(s)), t.real)
	}
	b.WriteString(")")
	b.WriteString(t.suffix)
	return b.String()
}

func (t columnTypes) normalizedDDL() string {
	ddl := fmt.Sprintf("CREATE TABLE %s (%s %s, %s %s, %s %s",
		t.quote(normalizedTable),
		t.quote("dateTime"), t.epoch,
		t.quote("obstype"), t.text,
		t.quote("measurement"), t.real)
	if t.primaryKey {
		ddl += fmt.Sprintf(", PRIMARY KEY (%s, %s)", t.quote("dateTime"), t.quote("obstype"))
	}
	return ddl + ")" + t.suffix
}

func (t columnTypes) ddl(schema Schema) string {
	if schema == Normalized {
		return t.normalizedDDL()
	}
	return t.wideDDL()
}

func (t columnTypes) table(schema Schema) string {
	if schema == Normalized {
		return normalizedTable
	}
	return archiveTable
}

func (t columnTypes) columns(schema Schema) []string {
	if schema == Normalized {
		return normalizedColumns
	}
	return wideColumns()
}

// insert renders a single-row INSERT with the given placeholder style.
func (t columnTypes) insert(schema Schema, placeholder func(i int) string) string {
	cols := t.columns(schema)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = t.quote(c)
		marks[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.quote(t.table(schema)), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func (t columnTypes) drop(schema Schema) string {
	return "DROP TABLE IF EXISTS " + t.quote(t.table(schema))
}

func questionMark(int) string {
	return "?"
}

func dollar(i int) string {
	return fmt.Sprintf("$%d", i)
}

// nullable hands drivers an untyped nil for a missing reading.
func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func wideRow(o model.Observation) []any {
	row := []any{o.Timestamp, int32(o.UsUnits), int32(o.Interval)}
	for _, s := range model.Sensors {
		row = append(row, nullable(*o.Field(s)))
	}
	return row
}

// normalizedRows splits a record into one row per sensor, nulls included.
func normalizedRows(o model.Observation) [][]any {
	rows := make([][]any, 0, len(model.Sensors))
	for _, s := range model.Sensors {
		rows = append(rows, []any{o.Timestamp, string(s), nullable(*o.Field(s))})
	}
	return rows
}

func rowsFor(schema Schema) func(model.Observation) [][]any {
	if schema == Normalized {
		return normalizedRows
	}
	return func(o model.Observation) [][]any {
		return [][]any{wideRow(o)}
	}
}
