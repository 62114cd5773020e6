package etl

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	yaml "gopkg.in/yaml.v2"
)

const (
	metaSuffix     = ".meta.yml"
	overrideSuffix = ".meta.override.yml"
)

// OriginsPolicy says what a metadata file may do to a variable that already
// carries origins.
type OriginsPolicy string

const (
	OriginsReplace OriginsPolicy = "replace"
	OriginsIgnore  OriginsPolicy = "ignore"
	OriginsRaise   OriginsPolicy = "raise"
)

// MissingPolicy says what to do with a metadata entry for a variable no
// table has.
type MissingPolicy string

const (
	MissingRaise  MissingPolicy = "raise"
	MissingIgnore MissingPolicy = "ignore"
)

// MetaFile is the parsed content of a <short_name>.meta.yml file. Nested maps
// are normalized to map[string]interface{}.
type MetaFile struct {
	Path string
	// Common is definitions.common, applied to every variable as defaults.
	// The rest of definitions only exists to be referenced by YAML anchors.
	Common  map[string]interface{}
	Dataset map[string]interface{}
	Tables  map[string]map[string]interface{}
}

// ReadMetaFile parses a metadata file.
func ReadMetaFile(path string) (*MetaFile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading metadata file")
	}
	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	doc := stringMap(raw)
	mf := &MetaFile{Path: path, Tables: make(map[string]map[string]interface{})}
	if defs, ok := doc["definitions"].(map[string]interface{}); ok {
		mf.Common, _ = defs["common"].(map[string]interface{})
	}
	mf.Dataset, _ = doc["dataset"].(map[string]interface{})
	if tables, ok := doc["tables"].(map[string]interface{}); ok {
		for name, t := range tables {
			tm, _ := t.(map[string]interface{})
			mf.Tables[name] = tm
		}
	}
	return mf, nil
}

// stringMap turns the map[interface{}]interface{} values yaml.v2 produces into
// map[string]interface{}, recursively.
func stringMap(v interface{}) map[string]interface{} {
	m, _ := normalize(v).(map[string]interface{})
	return m
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[cast.ToString(k)] = normalize(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// overlay decodes the fields of upd on top of dst. Only keys present in upd
// change; dst must be a pointer to a struct with json tags.
func overlay(dst interface{}, upd map[string]interface{}) error {
	b, err := json.Marshal(dst)
	if err != nil {
		return errors.Wrap(err, "encoding current metadata")
	}
	cur := make(map[string]interface{})
	if err := json.Unmarshal(b, &cur); err != nil {
		return errors.Wrap(err, "decoding current metadata")
	}
	for k, v := range upd {
		cur[k] = v
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ZeroFields:       true,
		Result:           dst,
	})
	if err != nil {
		return errors.Wrap(err, "creating decoder")
	}
	return errors.Wrap(dec.Decode(cur), "applying metadata")
}

// applyVariable lays block over the metadata of c. A block that sets origins
// on a variable that already has some is handled according to policy.
func applyVariable(c *Column, block map[string]interface{}, policy OriginsPolicy) error {
	if _, ok := block["origins"]; ok && len(c.Meta.Origins) > 0 {
		switch policy {
		case OriginsIgnore:
			block = without(block, "origins")
		case OriginsRaise:
			return errors.Errorf("variable %s already has origins", c.Name)
		}
	}
	dims := c.Meta.Dimensions
	if err := overlay(&c.Meta, block); err != nil {
		return errors.Wrapf(err, "variable %s", c.Name)
	}
	if _, ok := block["title"]; ok && len(dims) > 0 {
		c.Meta.Title += dimensionSuffix(dims)
	}
	c.Meta.Dimensions = dims
	return nil
}

func dimensionSuffix(dims map[string]string) string {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(" - " + k + ": " + dims[k])
	}
	return sb.String()
}

func without(m map[string]interface{}, key string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func merged(base, top map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// columnsFor returns the columns of t described by the variable name v:
// the column itself, or the wide columns LongToWide produced from it.
func columnsFor(t *Table, v string) []*Column {
	if c := t.Column(v); c != nil {
		return []*Column{c}
	}
	var out []*Column
	for _, c := range t.Variables() {
		if len(c.Meta.Dimensions) > 0 && strings.HasPrefix(c.Name, v+"__") {
			out = append(out, c)
		}
	}
	return out
}

// Apply lays the metadata file over ds and its tables.
func (mf *MetaFile) Apply(ds *Dataset, origins OriginsPolicy, missing MissingPolicy) error {
	if len(mf.Dataset) > 0 {
		coords := ds.Metadata
		if err := overlay(&ds.Metadata, mf.Dataset); err != nil {
			return errors.Wrapf(err, "dataset metadata from %s", mf.Path)
		}
		ds.Metadata.Channel, ds.Metadata.Namespace = coords.Channel, coords.Namespace
		ds.Metadata.Version, ds.Metadata.ShortName = coords.Version, coords.ShortName
	}

	for _, name := range ds.TableNames() {
		t, err := ds.ReadTable(name)
		if err != nil {
			return err
		}
		if len(mf.Common) > 0 {
			for _, c := range t.Variables() {
				if err := applyVariable(c, mf.Common, origins); err != nil {
					return errors.Wrapf(err, "common definitions from %s", mf.Path)
				}
			}
		}
	}

	names := make([]string, 0, len(mf.Tables))
	for name := range mf.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		block := mf.Tables[name]
		t, err := ds.ReadTable(name)
		if err != nil {
			// a file may describe tables another step produces
			continue
		}
		if v, ok := block["title"]; ok {
			t.Metadata.Title = cast.ToString(v)
		}
		if v, ok := block["description"]; ok {
			t.Metadata.Description = cast.ToString(v)
		}
		vars, _ := block["variables"].(map[string]interface{})
		vnames := make([]string, 0, len(vars))
		for v := range vars {
			vnames = append(vnames, v)
		}
		sort.Strings(vnames)
		for _, v := range vnames {
			cols := columnsFor(t, v)
			if len(cols) == 0 {
				if missing == MissingRaise {
					return &Error{Kind: MissingVariable, Path: mf.Path, Name: name + "." + v}
				}
				continue
			}
			vb, _ := vars[v].(map[string]interface{})
			for _, c := range cols {
				if err := applyVariable(c, merged(mf.Common, vb), origins); err != nil {
					return errors.Wrapf(err, "table %s", name)
				}
			}
		}
	}
	return nil
}

// applyMetaFile applies the file at path if it exists.
func applyMetaFile(ds *Dataset, path string, origins OriginsPolicy, missing MissingPolicy) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	mf, err := ReadMetaFile(path)
	if err != nil {
		return false, err
	}
	return true, mf.Apply(ds, origins, missing)
}
