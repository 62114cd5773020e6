package etl

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const (
	indexFile    = "index.json"
	tableExt     = ".avro"
	tableMetaExt = ".meta.json"
)

// Dataset is a handle on a built dataset directory. Tables added in memory
// are written by Save; tables already on disk are read lazily.
type Dataset struct {
	Dir      string
	Metadata DatasetMeta
	// SourceChecksum is the input checksum of the run that built the
	// dataset. Empty when unknown.
	SourceChecksum string

	names  []string
	tables map[string]*Table
}

type datasetIndex struct {
	Metadata       DatasetMeta `json:"metadata"`
	Tables         []string    `json:"tables"`
	SourceChecksum string      `json:"source_checksum,omitempty"`
}

type tableFile struct {
	Table   TableMeta     `json:"table"`
	Index   []string      `json:"primary_key"`
	Columns []columnEntry `json:"columns"`
}

type columnEntry struct {
	Name string       `json:"name"`
	Meta VariableMeta `json:"meta"`
}

// NewDataset returns an empty dataset rooted at dir. Nothing is written
// until Save.
func NewDataset(dir string, meta DatasetMeta) *Dataset {
	return &Dataset{
		Dir:      dir,
		Metadata: meta,
		tables:   make(map[string]*Table),
	}
}

// OpenDataset reads the index of the dataset at dir.
func OpenDataset(dir string) (*Dataset, error) {
	data, err := ioutil.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, errors.Wrap(err, "reading dataset index")
	}
	var idx datasetIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", filepath.Join(dir, indexFile))
	}
	return &Dataset{
		Dir:            dir,
		Metadata:       idx.Metadata,
		SourceChecksum: idx.SourceChecksum,
		names:          idx.Tables,
		tables:         make(map[string]*Table),
	}, nil
}

// DatasetExists reports whether a dataset has been saved at dir.
func DatasetExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, indexFile))
	return err == nil
}

func (d *Dataset) dependency() {}

// Step returns the coordinate recorded in the dataset metadata.
func (d *Dataset) Step() Step {
	return Step{
		Type:      TypeData,
		Channel:   d.Metadata.Channel,
		Namespace: d.Metadata.Namespace,
		Version:   d.Metadata.Version,
		ShortName: d.Metadata.ShortName,
		Private:   !d.Metadata.IsPublic,
	}
}

// TableNames returns the table short names in insertion order.
func (d *Dataset) TableNames() []string {
	return append([]string(nil), d.names...)
}

// Add inserts t under its short name. A name already present is an error.
func (d *Dataset) Add(t *Table) error {
	name := t.Metadata.ShortName
	if name == "" {
		return errors.New("table has no short name")
	}
	for _, n := range d.names {
		if n == name {
			return errors.Errorf("table %q is already in dataset %s", name, d.Metadata.ShortName)
		}
	}
	d.names = append(d.names, name)
	d.tables[name] = t
	return nil
}

// ReadTable returns the named table, from memory if it was added since the
// dataset was opened and from disk otherwise.
func (d *Dataset) ReadTable(name string) (*Table, error) {
	if t, ok := d.tables[name]; ok {
		return t, nil
	}
	found := false
	for _, n := range d.names {
		found = found || n == name
	}
	if !found {
		return nil, errors.Errorf("dataset %s has no table %q (has %v)", d.Dir, name, d.names)
	}
	t, err := readTable(d.Dir, name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading table %s", name)
	}
	d.tables[name] = t
	return t, nil
}

// Save writes the index and every table to Dir, creating it if needed.
func (d *Dataset) Save() error {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return errors.Wrap(err, "creating dataset dir")
	}
	for _, name := range d.names {
		t, err := d.ReadTable(name)
		if err != nil {
			return err
		}
		if err := writeTable(d.Dir, t); err != nil {
			return errors.Wrapf(err, "writing table %s", name)
		}
	}
	idx := datasetIndex{Metadata: d.Metadata, Tables: d.names, SourceChecksum: d.SourceChecksum}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding dataset index")
	}
	return errors.Wrap(ioutil.WriteFile(filepath.Join(d.Dir, indexFile), data, 0644), "writing dataset index")
}

// Avro field names are positional since column names need not be valid
// Avro names. The real names live in the .meta.json file.
func avroField(i int) string {
	return fmt.Sprintf("c%d", i)
}

var avroTypes = []interface{}{"null", "long", "double", "string", "boolean"}

func tableSchema(t *Table) (string, error) {
	fields := make([]map[string]interface{}, len(t.columns))
	for i, c := range t.columns {
		fields[i] = map[string]interface{}{
			"name":    avroField(i),
			"doc":     c.Name,
			"type":    avroTypes,
			"default": nil,
		}
	}
	schema := map[string]interface{}{
		"type":   "record",
		"name":   "row",
		"fields": fields,
	}
	b, err := json.Marshal(schema)
	return string(b), err
}

// toAvro wraps v as the Avro union branch it belongs to.
func toAvro(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return goavro.Union("boolean", x)
	case string:
		return goavro.Union("string", x)
	case float32, float64:
		return goavro.Union("double", cast.ToFloat64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return goavro.Union("long", cast.ToInt64(x))
	default:
		return goavro.Union("string", cast.ToString(x))
	}
}

func fromAvro(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for _, val := range m {
		return val
	}
	return nil
}

func writeTable(dir string, t *Table) error {
	schema, err := tableSchema(t)
	if err != nil {
		return errors.Wrap(err, "building schema")
	}
	f, err := os.Create(filepath.Join(dir, t.Metadata.ShortName+tableExt))
	if err != nil {
		return errors.Wrap(err, "creating table file")
	}
	defer f.Close()
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Schema:          schema,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return errors.Wrap(err, "creating ocf writer")
	}
	rows := make([]interface{}, t.NumRows())
	for i := range rows {
		rec := make(map[string]interface{}, len(t.columns))
		for j, c := range t.columns {
			rec[avroField(j)] = toAvro(c.Values[i])
		}
		rows[i] = rec
	}
	if len(rows) > 0 {
		if err := w.Append(rows); err != nil {
			return errors.Wrap(err, "appending rows")
		}
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing table file")
	}

	tf := tableFile{Table: t.Metadata, Index: t.index}
	for _, c := range t.columns {
		tf.Columns = append(tf.Columns, columnEntry{Name: c.Name, Meta: c.Meta})
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding table metadata")
	}
	return errors.Wrap(ioutil.WriteFile(filepath.Join(dir, t.Metadata.ShortName+tableMetaExt), data, 0644), "writing table metadata")
}

func readTable(dir, name string) (*Table, error) {
	data, err := ioutil.ReadFile(filepath.Join(dir, name+tableMetaExt))
	if err != nil {
		return nil, errors.Wrap(err, "reading table metadata")
	}
	var tf tableFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, errors.Wrap(err, "decoding table metadata")
	}

	f, err := os.Open(filepath.Join(dir, name+tableExt))
	if err != nil {
		return nil, errors.Wrap(err, "opening table file")
	}
	defer f.Close()
	r, err := goavro.NewOCFReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "creating ocf reader")
	}
	cols := make([][]interface{}, len(tf.Columns))
	for r.Scan() {
		datum, err := r.Read()
		if err != nil {
			return nil, errors.Wrap(err, "reading row")
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("unexpected row type %T", datum)
		}
		for j := range cols {
			cols[j] = append(cols[j], fromAvro(rec[avroField(j)]))
		}
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning rows")
	}

	t := NewTable(tf.Table.ShortName)
	t.Metadata = tf.Table
	for j, c := range tf.Columns {
		vals := cols[j]
		if vals == nil {
			vals = []interface{}{}
		}
		if err := t.AddColumn(c.Name, vals, c.Meta); err != nil {
			return nil, err
		}
	}
	if err := t.SetIndex(tf.Index...); err != nil {
		return nil, err
	}
	return t, nil
}
