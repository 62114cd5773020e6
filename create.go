package etl

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// destRe picks channel/namespace/version/short_name off the end of a dataset
// directory.
var destRe = regexp.MustCompile(`([^/]+)/([^/]+)/([^/]+)/([^/]+)/?$`)

type datasetOptions struct {
	defaultMeta      *DatasetMeta
	snapshotMeta     *SnapshotMeta
	underscore       bool
	camelToSnake     bool
	longToWide       *bool
	ifOriginsExist   OriginsPolicy
	missingVariables MissingPolicy
	metadataPath     string
	grapherChecks    bool
	sourceChecksum   string
	public           *bool
}

// DatasetOption is a functional option for CreateDataset.
type DatasetOption func(o *datasetOptions) error

// OptDefaultMetadata gives the dataset metadata to start from.
func OptDefaultMetadata(m *DatasetMeta) DatasetOption {
	return func(o *datasetOptions) error {
		o.defaultMeta = m
		return nil
	}
}

// OptSnapshotMetadata starts from the metadata of the snapshot the dataset
// is built from.
func OptSnapshotMetadata(m *SnapshotMeta) DatasetOption {
	return func(o *datasetOptions) error {
		o.snapshotMeta = m
		return nil
	}
}

// OptUnderscoreTables normalizes table and column names with Underscore. On
// by default.
func OptUnderscoreTables(b bool) DatasetOption {
	return func(o *datasetOptions) error {
		o.underscore = b
		return nil
	}
}

func OptCamelToSnake(b bool) DatasetOption {
	return func(o *datasetOptions) error {
		o.camelToSnake = b
		return nil
	}
}

// OptLongToWide forces reshaping on or off. By default only grapher datasets
// are reshaped.
func OptLongToWide(b bool) DatasetOption {
	return func(o *datasetOptions) error {
		o.longToWide = &b
		return nil
	}
}

func OptIfOriginsExist(p OriginsPolicy) DatasetOption {
	return func(o *datasetOptions) error {
		switch p {
		case OriginsReplace, OriginsIgnore, OriginsRaise:
			o.ifOriginsExist = p
			return nil
		}
		return errors.Errorf("unknown origins policy %q", p)
	}
}

// OptMissingVariables sets what to do with metadata for variables no table
// has. It is ignored once a reshape has renamed variables.
func OptMissingVariables(p MissingPolicy) DatasetOption {
	return func(o *datasetOptions) error {
		switch p {
		case MissingRaise, MissingIgnore:
			o.missingVariables = p
			return nil
		}
		return errors.Errorf("unknown missing variables policy %q", p)
	}
}

// OptMetadataPath sets the metadata file to overlay. The override file is
// looked for next to it.
func OptMetadataPath(path string) DatasetOption {
	return func(o *datasetOptions) error {
		o.metadataPath = path
		return nil
	}
}

func OptGrapherChecks(b bool) DatasetOption {
	return func(o *datasetOptions) error {
		o.grapherChecks = b
		return nil
	}
}

// OptSourceChecksum records the input checksum of the build in the dataset
// index.
func OptSourceChecksum(sum string) DatasetOption {
	return func(o *datasetOptions) error {
		o.sourceChecksum = sum
		return nil
	}
}

func OptPublic(b bool) DatasetOption {
	return func(o *datasetOptions) error {
		o.public = &b
		return nil
	}
}

// CreateDataset assembles tables into a dataset at dest and saves it. The
// last four segments of dest are the dataset's channel, namespace, version
// and short name.
//
// The starting metadata is the first of: OptDefaultMetadata,
// OptSnapshotMetadata converted with ToDatasetMeta, or CombineTablesMeta.
// Tables are then renamed, reshaped when the channel is grapher (or when
// OptLongToWide says so) and added; a table name given twice is an error.
// Finally <short_name>.meta.yml and <short_name>.meta.override.yml are laid
// over the result if they exist, and grapher datasets are checked.
func CreateDataset(cfg *Config, dest string, tables []*Table, opts ...DatasetOption) (*Dataset, error) {
	o := &datasetOptions{
		underscore:       true,
		ifOriginsExist:   OriginsReplace,
		missingVariables: MissingRaise,
		grapherChecks:    true,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}

	coords, err := destCoordinates(dest)
	if err != nil {
		return nil, err
	}

	var meta DatasetMeta
	switch {
	case o.defaultMeta != nil:
		meta = *o.defaultMeta
	case o.snapshotMeta != nil:
		meta = *o.snapshotMeta.ToDatasetMeta()
	default:
		meta = *CombineTablesMeta(tables)
	}
	meta.Channel, meta.Namespace, meta.Version, meta.ShortName = coords.Channel, coords.Namespace, coords.Version, coords.ShortName
	if o.public != nil {
		meta.IsPublic = *o.public
	}

	ds := NewDataset(dest, meta)
	ds.SourceChecksum = o.sourceChecksum
	wide := coords.Channel == Grapher
	if o.longToWide != nil {
		wide = *o.longToWide
	}
	reshaped := false
	for _, t := range tables {
		t = t.Copy()
		if o.underscore {
			if err := underscoreTable(t, o.camelToSnake); err != nil {
				return nil, err
			}
		}
		if wide {
			var r bool
			var err error
			if t, r, err = LongToWide(t); err != nil {
				return nil, err
			}
			reshaped = reshaped || r
		}
		if err := ds.Add(t); err != nil {
			return nil, err
		}
	}

	missing := o.missingVariables
	if reshaped {
		missing = MissingIgnore
	}
	metaPath := o.metadataPath
	if metaPath == "" {
		metaPath = defaultMetadataPath(cfg, coords)
	}
	if metaPath != "" {
		if _, err := applyMetaFile(ds, metaPath, o.ifOriginsExist, missing); err != nil {
			return nil, err
		}
		override := strings.TrimSuffix(metaPath, metaSuffix) + overrideSuffix
		if _, err := applyMetaFile(ds, override, OriginsReplace, missing); err != nil {
			return nil, err
		}
	}

	if coords.Channel == Grapher && o.grapherChecks {
		if err := GrapherChecks(ds); err != nil {
			return nil, err
		}
	}
	if err := ds.Save(); err != nil {
		return nil, errors.Wrapf(err, "saving dataset %s", dest)
	}
	if cfg != nil && cfg.Log != nil {
		cfg.Log.Printf("saved %s with tables %v", dest, ds.TableNames())
	}
	return ds, nil
}

// destCoordinates parses the trailing channel/namespace/version/short_name of
// a dataset directory.
func destCoordinates(dest string) (Step, error) {
	m := destRe.FindStringSubmatch(filepath.ToSlash(dest))
	if m == nil {
		return Step{}, &Error{Kind: WrongStepName, Name: dest}
	}
	c, err := ParseChannel(m[1])
	if err != nil {
		return Step{}, err
	}
	return Step{Type: TypeData, Channel: c, Namespace: m[2], Version: m[3], ShortName: m[4]}, nil
}

// defaultMetadataPath finds the metadata file of the step producing the
// dataset, in file or directory form. It returns "" when neither exists.
func defaultMetadataPath(cfg *Config, s Step) string {
	if cfg == nil || cfg.StepDir == "" {
		return ""
	}
	base := filepath.Join(cfg.StepDir, TypeData, string(s.Channel), s.Namespace, s.Version)
	for _, p := range []string{
		filepath.Join(base, s.ShortName+metaSuffix),
		filepath.Join(base, s.ShortName, s.ShortName+metaSuffix),
	} {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func underscoreTable(t *Table, camelToSnake bool) error {
	t.Metadata.ShortName = Underscore(t.Metadata.ShortName, camelToSnake)
	for _, name := range t.ColumnNames() {
		if err := t.Rename(name, Underscore(name, camelToSnake)); err != nil {
			return errors.Wrapf(err, "normalizing column names of %s", t.Metadata.ShortName)
		}
	}
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
