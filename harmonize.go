package etl

import (
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type harmonizeOptions struct {
	excludedPath string
	warn         Logger
}

// HarmonizeOption is a functional option for HarmonizeEntities.
type HarmonizeOption func(o *harmonizeOptions)

// OptHarmonizeExcluded drops rows whose entity is listed in the JSON array at
// path.
func OptHarmonizeExcluded(path string) HarmonizeOption {
	return func(o *harmonizeOptions) {
		o.excludedPath = path
	}
}

// OptHarmonizeWarnOnly logs unmapped entities to l and leaves them as they
// are instead of failing.
func OptHarmonizeWarnOnly(l Logger) HarmonizeOption {
	return func(o *harmonizeOptions) {
		o.warn = l
	}
}

// HarmonizeEntities rewrites the entity names in column using the JSON object
// at mappingPath, which maps raw names to canonical ones. Names that are
// already canonical are kept. Any other name is an error.
func HarmonizeEntities(t *Table, column, mappingPath string, opts ...HarmonizeOption) error {
	o := &harmonizeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	col := t.Column(column)
	if col == nil {
		return errors.Errorf("table %s has no column %q", t.Metadata.ShortName, column)
	}

	mapping := make(map[string]string)
	if err := readJSONFile(mappingPath, &mapping); err != nil {
		return errors.Wrap(err, "reading entity mapping")
	}
	canonical := make(map[string]struct{}, len(mapping))
	for _, v := range mapping {
		canonical[v] = struct{}{}
	}

	if o.excludedPath != "" {
		var excluded []string
		if err := readJSONFile(o.excludedPath, &excluded); err != nil {
			return errors.Wrap(err, "reading excluded entities")
		}
		drop := make(map[string]struct{}, len(excluded))
		for _, e := range excluded {
			drop[e] = struct{}{}
		}
		t.DropRows(func(i int) bool {
			_, ok := drop[cast.ToString(col.Values[i])]
			return ok
		})
	}

	unknown := make(map[string]struct{})
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		name := cast.ToString(v)
		if to, ok := mapping[name]; ok {
			col.Values[i] = to
			continue
		}
		if _, ok := canonical[name]; !ok {
			unknown[name] = struct{}{}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	names := sortedKeys(unknown)
	if o.warn != nil {
		o.warn.Printf("%s: %d entities not harmonized: %s", t.Metadata.ShortName, len(names), strings.Join(names, ", "))
		return nil
	}
	return errors.Errorf("%s: %d entities missing from %s: %s", t.Metadata.ShortName, len(names), mappingPath, strings.Join(names, ", "))
}

// HarmonizeCountries harmonizes the country column of t with the step's
// countries file, dropping the entities in its excluded countries file if
// there is one.
func (pf *PathFinder) HarmonizeCountries(t *Table, opts ...HarmonizeOption) error {
	if fileExists(pf.ExcludedCountriesPath()) {
		opts = append([]HarmonizeOption{OptHarmonizeExcluded(pf.ExcludedCountriesPath())}, opts...)
	}
	return HarmonizeEntities(t, "country", pf.CountriesPath(), opts...)
}

func readJSONFile(path string, v interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decoding %s", path)
}
