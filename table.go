package etl

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Column is one named column of a Table with its metadata.
type Column struct {
	Name   string
	Values []interface{}
	Meta   VariableMeta
}

// Table is a column-major table. Index columns identify a row (e.g. country
// and year); every other column is a variable.
type Table struct {
	Metadata TableMeta

	columns []*Column
	byName  map[string]int
	index   []string
}

// NewTable returns an empty table with the given short name.
func NewTable(shortName string) *Table {
	return &Table{
		Metadata: TableMeta{ShortName: shortName},
		byName:   make(map[string]int),
	}
}

// AddColumn appends a column. All columns must have the same length.
func (t *Table) AddColumn(name string, values []interface{}, meta VariableMeta) error {
	if _, ok := t.byName[name]; ok {
		return errors.Errorf("table %s already has a column %q", t.Metadata.ShortName, name)
	}
	if len(t.columns) > 0 && len(values) != t.NumRows() {
		return errors.Errorf("column %q has %d values, table %s has %d rows", name, len(values), t.Metadata.ShortName, t.NumRows())
	}
	t.byName[name] = len(t.columns)
	t.columns = append(t.columns, &Column{Name: name, Values: values, Meta: meta})
	return nil
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	if i, ok := t.byName[name]; ok {
		return t.columns[i]
	}
	return nil
}

// ColumnNames returns all column names, index columns included, in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) NumRows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.columns[0].Values)
}

// SetIndex marks the given columns as the primary index.
func (t *Table) SetIndex(cols ...string) error {
	for _, c := range cols {
		if t.Column(c) == nil {
			return errors.Errorf("index column %q not in table %s", c, t.Metadata.ShortName)
		}
	}
	t.index = append([]string(nil), cols...)
	return nil
}

func (t *Table) Index() []string {
	return t.index
}

func (t *Table) isIndex(name string) bool {
	for _, c := range t.index {
		if c == name {
			return true
		}
	}
	return false
}

// Variables returns the non-index columns in order.
func (t *Table) Variables() []*Column {
	var vars []*Column
	for _, c := range t.columns {
		if !t.isIndex(c.Name) {
			vars = append(vars, c)
		}
	}
	return vars
}

// Row returns the i'th row keyed by column name.
func (t *Table) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(t.columns))
	for _, c := range t.columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Rename renames a column, keeping index membership.
func (t *Table) Rename(old, name string) error {
	i, ok := t.byName[old]
	if !ok {
		return errors.Errorf("no column %q in table %s", old, t.Metadata.ShortName)
	}
	if old == name {
		return nil
	}
	if _, ok := t.byName[name]; ok {
		return errors.Errorf("table %s already has a column %q", t.Metadata.ShortName, name)
	}
	delete(t.byName, old)
	t.byName[name] = i
	t.columns[i].Name = name
	for j, c := range t.index {
		if c == old {
			t.index[j] = name
		}
	}
	return nil
}

// Copy returns a deep copy of the table structure. Cell values are shared.
func (t *Table) Copy() *Table {
	c := NewTable(t.Metadata.ShortName)
	c.Metadata = t.Metadata
	for i, col := range t.columns {
		c.byName[col.Name] = i
		c.columns = append(c.columns, &Column{Name: col.Name, Values: append([]interface{}(nil), col.Values...), Meta: col.Meta})
	}
	c.index = append([]string(nil), t.index...)
	return c
}

// DropRows removes every row for which drop returns true.
func (t *Table) DropRows(drop func(row int) bool) {
	keep := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if !drop(i) {
			keep = append(keep, i)
		}
	}
	for _, c := range t.columns {
		vals := make([]interface{}, len(keep))
		for j, i := range keep {
			vals[j] = c.Values[i]
		}
		c.Values = vals
	}
}

// ParseCell turns a raw text cell into an int64, a float64 or a string.
// Empty cells are nil. Integers are read in base 10 only, and a number
// written with a leading zero ("004", "08") stays a string so that codes
// keep their spelling.
func ParseCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !looksNumeric(s) {
		return s
	}
	if digits := strings.TrimLeft(s, "+-"); len(digits) > 1 && digits[0] == '0' && digits[1] >= '0' && digits[1] <= '9' {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	return s
}

// looksNumeric rejects everything strconv would read as a number but a
// spreadsheet would not: hex and binary prefixes, underscores, Inf and NaN.
func looksNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && !strings.ContainsRune("+-.eE", r) {
			return false
		}
	}
	return true
}
