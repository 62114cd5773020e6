package etl

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/datacatalog/etl/csv"
	pjson "github.com/datacatalog/etl/json"
	"github.com/pkg/errors"
)

// Fetcher retrieves snapshot content from remote storage by content key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// Snapshot is a handle on a snapshot file and its .dvc metadata.
type Snapshot struct {
	// Path is where the file lives locally, whether or not it has been
	// pulled yet.
	Path     string
	Metadata *SnapshotMeta

	step    Step
	fetcher Fetcher
	log     Logger
}

// OpenSnapshot returns the handle for the snapshot step s. The .dvc sidecar
// must exist; the file itself may still have to be pulled.
func OpenSnapshot(cfg *Config, s Step) (*Snapshot, error) {
	if s.Channel != ChannelSnapshot {
		return nil, errors.Errorf("%s is not a snapshot", s)
	}
	path := filepath.Join(cfg.SnapshotDir, s.Namespace, s.Version, s.FileName())
	meta, err := ReadSnapshotMeta(path + ".dvc")
	if err != nil {
		return nil, errors.Wrapf(err, "opening snapshot %s", s)
	}
	meta.Namespace, meta.Version, meta.ShortName, meta.FileExtension = s.Namespace, s.Version, s.ShortName, s.Ext
	return &Snapshot{
		Path:     path,
		Metadata: meta,
		step:     s,
		fetcher:  cfg.Fetcher,
		log:      cfg.Log,
	}, nil
}

func (s *Snapshot) dependency() {}

func (s *Snapshot) Step() Step {
	return s.step
}

// ContentKey is the remote key of the snapshot content, laid out the way DVC
// lays out its cache: md5/<first two hex digits>/<rest>.
func (s *Snapshot) ContentKey() string {
	sum := s.Metadata.MD5
	if len(sum) < 3 {
		return ""
	}
	return "md5/" + sum[:2] + "/" + sum[2:]
}

// Pull downloads the snapshot file unless it is already present. The
// downloaded content is checked against the md5 in the sidecar.
func (s *Snapshot) Pull(ctx context.Context) error {
	if _, err := os.Stat(s.Path); err == nil {
		return nil
	}
	if s.fetcher == nil {
		return errors.Errorf("snapshot %s is missing and no fetcher is configured", s.Path)
	}
	key := s.ContentKey()
	if key == "" {
		return errors.Errorf("snapshot %s has no md5 in its .dvc file", s.Path)
	}
	if s.log != nil {
		s.log.Printf("pulling %s from %s", s.step, key)
	}
	body, err := s.fetcher.Fetch(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", key)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return errors.Wrap(err, "creating snapshot dir")
	}
	tmp, err := ioutil.TempFile(filepath.Dir(s.Path), ".pull-")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())
	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), body); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "downloading %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != s.Metadata.MD5 {
		return errors.Errorf("snapshot %s: md5 mismatch, expected %s got %s", s.step, s.Metadata.MD5, got)
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.Path), "moving snapshot into place")
}

// ReadTable pulls the snapshot if needed and reads it into a table named
// after the snapshot. Every column carries the snapshot's origin, source and
// license.
func (s *Snapshot) ReadTable(ctx context.Context) (*Table, error) {
	if err := s.Pull(ctx); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "opening snapshot")
	}
	defer f.Close()

	var t *Table
	switch s.step.Ext {
	case "csv":
		t, err = readCSVTable(f, s.Path)
	case "json":
		t, err = readJSONTable(f)
	default:
		return nil, errors.Errorf("cannot read a table from %s: unsupported extension %q", s.Path, s.step.Ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.Path)
	}
	t.Metadata.ShortName = s.step.ShortName
	dm := s.Metadata.ToDatasetMeta()
	t.Metadata.Title, t.Metadata.Description = dm.Title, dm.Description

	var meta VariableMeta
	if o := s.Metadata.Origin; o != nil {
		meta.Origins = []Origin{*o}
	}
	if src := s.Metadata.Source; src != nil {
		meta.Sources = []Source{*src}
	}
	if l := s.Metadata.License; l != nil {
		meta.Licenses = []License{*l}
	}
	for _, c := range t.columns {
		c.Meta = meta
	}
	return t, nil
}

func readCSVTable(r io.Reader, name string) (*Table, error) {
	header, recs, err := csv.ReadAll(r, csv.WithName(name))
	if err != nil {
		return nil, err
	}
	t := NewTable("")
	for _, h := range header {
		vals := make([]interface{}, len(recs))
		for i, rec := range recs {
			if v, ok := rec[h]; ok {
				vals[i] = ParseCell(v)
			}
		}
		if err := t.AddColumn(h, vals, VariableMeta{}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readJSONTable(r io.Reader) (*Table, error) {
	recs, err := pjson.ReadAll(r)
	if err != nil {
		return nil, err
	}
	// Columns appear in the order their key is first seen, keys of one
	// record sorted.
	var names []string
	seen := make(map[string]struct{})
	for _, rec := range recs {
		var fresh []string
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		names = append(names, fresh...)
	}
	t := NewTable("")
	for _, name := range names {
		vals := make([]interface{}, len(recs))
		for i, rec := range recs {
			vals[i] = jsonCell(rec[name])
		}
		if err := t.AddColumn(name, vals, VariableMeta{}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func jsonCell(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		return ParseCell(x.String())
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}
