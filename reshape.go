package etl

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	entityColumns = []string{"country", "entity"}
	timeColumns   = []string{"year", "date"}
)

// LongToWide pivots the dimension columns of t into the column names. The
// dimensions are the index columns other than the entity and time columns.
// Every variable v and dimension combination d1=a, d2=b becomes a column
// v__d1_a__d2_b whose title is suffixed " - d1: a - d2: b". Combinations
// with no values at all are dropped. When t has no dimensions it is returned
// unchanged and reshaped is false. Two combinations whose column names
// normalize to the same identifier are an error.
func LongToWide(t *Table) (wide *Table, reshaped bool, err error) {
	var keys, dims []string
	for _, c := range t.Index() {
		if contains(entityColumns, c) || contains(timeColumns, c) {
			keys = append(keys, c)
		} else {
			dims = append(dims, c)
		}
	}
	if len(dims) == 0 {
		return t, false, nil
	}

	// rows of the wide table, one per distinct key tuple
	rowOf := make(map[string]int)
	var rowKeys [][]interface{}
	// distinct dimension tuples in order of appearance
	comboOf := make(map[string]int)
	var combos [][]string
	srcRow := make([]int, t.NumRows())
	srcCombo := make([]int, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		kv := make([]interface{}, len(keys))
		for j, k := range keys {
			kv[j] = t.Column(k).Values[i]
		}
		rk := tupleKey(kv)
		r, ok := rowOf[rk]
		if !ok {
			r = len(rowKeys)
			rowOf[rk] = r
			rowKeys = append(rowKeys, kv)
		}
		srcRow[i] = r

		dv := make([]string, len(dims))
		for j, d := range dims {
			dv[j] = cast.ToString(t.Column(d).Values[i])
		}
		ck := strings.Join(dv, "\x00")
		c, ok := comboOf[ck]
		if !ok {
			c = len(combos)
			comboOf[ck] = c
			combos = append(combos, dv)
		}
		srcCombo[i] = c
	}

	wide = NewTable(t.Metadata.ShortName)
	wide.Metadata = t.Metadata
	for j, k := range keys {
		vals := make([]interface{}, len(rowKeys))
		for r, kv := range rowKeys {
			vals[r] = kv[j]
		}
		if err := wide.AddColumn(k, vals, t.Column(k).Meta); err != nil {
			return nil, false, err
		}
	}
	if err := wide.SetIndex(keys...); err != nil {
		return nil, false, err
	}

	for _, v := range t.Variables() {
		cols := make([][]interface{}, len(combos))
		for c := range combos {
			cols[c] = make([]interface{}, len(rowKeys))
		}
		for i, val := range v.Values {
			cols[srcCombo[i]][srcRow[i]] = val
		}
		for c, dv := range combos {
			if allNil(cols[c]) {
				continue
			}
			parts := []string{Underscore(v.Name, false)}
			title := firstNonEmpty(v.Meta.Title, v.Name)
			meta := v.Meta
			meta.Dimensions = make(map[string]string, len(dims))
			for j, d := range dims {
				parts = append(parts, Underscore(d+"_"+dv[j], false))
				title += fmt.Sprintf(" - %s: %s", d, dv[j])
				meta.Dimensions[d] = dv[j]
			}
			meta.Title = title
			name := joinName(parts...)
			if wide.Column(name) != nil {
				return nil, false, errors.Errorf("reshaping %s: %s %v and an earlier combination both become column %s", t.Metadata.ShortName, v.Name, dv, name)
			}
			if err := wide.AddColumn(name, cols[c], meta); err != nil {
				return nil, false, errors.Wrapf(err, "reshaping %s", t.Metadata.ShortName)
			}
		}
	}
	return wide, true, nil
}

func tupleKey(vals []interface{}) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = cast.ToString(v)
	}
	return strings.Join(parts, "\x00")
}

func allNil(vals []interface{}) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
