package etl

import (
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// License is the reuse license of a data product.
type License struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Origin describes the data product a variable's values came from. It is the
// newer of the two citation models and supersedes Source.
type Origin struct {
	Producer            string   `json:"producer,omitempty" yaml:"producer,omitempty"`
	Title               string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description         string   `json:"description,omitempty" yaml:"description,omitempty"`
	TitleSnapshot       string   `json:"title_snapshot,omitempty" yaml:"title_snapshot,omitempty"`
	DescriptionSnapshot string   `json:"description_snapshot,omitempty" yaml:"description_snapshot,omitempty"`
	CitationFull        string   `json:"citation_full,omitempty" yaml:"citation_full,omitempty"`
	AttributionShort    string   `json:"attribution_short,omitempty" yaml:"attribution_short,omitempty"`
	VersionProducer     string   `json:"version_producer,omitempty" yaml:"version_producer,omitempty"`
	URLMain             string   `json:"url_main,omitempty" yaml:"url_main,omitempty"`
	URLDownload         string   `json:"url_download,omitempty" yaml:"url_download,omitempty"`
	DateAccessed        string   `json:"date_accessed,omitempty" yaml:"date_accessed,omitempty"`
	DatePublished       string   `json:"date_published,omitempty" yaml:"date_published,omitempty"`
	License             *License `json:"license,omitempty" yaml:"license,omitempty"`
}

// Source is the legacy citation model.
type Source struct {
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	URL             string `json:"url,omitempty" yaml:"url,omitempty"`
	SourceDataURL   string `json:"source_data_url,omitempty" yaml:"source_data_url,omitempty"`
	DateAccessed    string `json:"date_accessed,omitempty" yaml:"date_accessed,omitempty"`
	PublicationDate string `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	PublishedBy     string `json:"published_by,omitempty" yaml:"published_by,omitempty"`
}

// VariableMeta is the metadata of one column.
type VariableMeta struct {
	Title                 string                 `json:"title,omitempty"`
	Description           string                 `json:"description,omitempty"`
	DescriptionShort      string                 `json:"description_short,omitempty"`
	DescriptionKey        []string               `json:"description_key,omitempty"`
	DescriptionProcessing string                 `json:"description_processing,omitempty"`
	Unit                  string                 `json:"unit,omitempty"`
	ShortUnit             string                 `json:"short_unit,omitempty"`
	ProcessingLevel       string                 `json:"processing_level,omitempty"`
	Display               map[string]interface{} `json:"display,omitempty"`
	Origins               []Origin               `json:"origins,omitempty"`
	Sources               []Source               `json:"sources,omitempty"`
	Licenses              []License              `json:"licenses,omitempty"`
	// Dimensions is set on columns produced by LongToWide and maps each
	// consumed dimension to its value.
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// TableMeta is the metadata of one table.
type TableMeta struct {
	ShortName   string `json:"short_name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// DatasetMeta is the metadata of a dataset. The coordinate fields are filled
// in by CreateDataset from the destination path.
type DatasetMeta struct {
	Channel            Channel   `json:"channel,omitempty"`
	Namespace          string    `json:"namespace,omitempty"`
	Version            string    `json:"version,omitempty"`
	ShortName          string    `json:"short_name,omitempty"`
	Title              string    `json:"title,omitempty"`
	Description        string    `json:"description,omitempty"`
	Licenses           []License `json:"licenses,omitempty"`
	Sources            []Source  `json:"sources,omitempty"`
	IsPublic           bool      `json:"is_public"`
	NonRedistributable bool      `json:"non_redistributable,omitempty"`
	UpdatePeriodDays   int       `json:"update_period_days,omitempty"`
}

// SnapshotMeta is the metadata of a snapshot as recorded in its .dvc
// sidecar.
type SnapshotMeta struct {
	Namespace     string `yaml:"-"`
	Version       string `yaml:"-"`
	ShortName     string `yaml:"-"`
	FileExtension string `yaml:"-"`

	Origin             *Origin  `yaml:"origin,omitempty"`
	Source             *Source  `yaml:"source,omitempty"`
	License            *License `yaml:"license,omitempty"`
	IsPublic           *bool    `yaml:"is_public,omitempty"`
	NonRedistributable bool     `yaml:"non_redistributable,omitempty"`

	// MD5 and Size describe the file content as tracked by DVC.
	MD5  string `yaml:"-"`
	Size int64  `yaml:"-"`
}

type dvcFile struct {
	Meta SnapshotMeta `yaml:"meta"`
	Outs []struct {
		MD5  string `yaml:"md5"`
		Size int64  `yaml:"size"`
		Path string `yaml:"path"`
	} `yaml:"outs"`
}

// ReadSnapshotMeta reads a .dvc sidecar. The coordinate fields are left for
// the caller to set.
func ReadSnapshotMeta(path string) (*SnapshotMeta, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot metadata")
	}
	var f dvcFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	m := f.Meta
	if len(f.Outs) > 0 {
		m.MD5, m.Size = f.Outs[0].MD5, f.Outs[0].Size
	}
	return &m, nil
}

// Public reports whether the snapshot may be published. Snapshots are public
// unless the sidecar says otherwise.
func (m *SnapshotMeta) Public() bool {
	return m.IsPublic == nil || *m.IsPublic
}

// ToDatasetMeta converts snapshot metadata into the default metadata of a
// dataset built directly from it.
func (m *SnapshotMeta) ToDatasetMeta() *DatasetMeta {
	d := &DatasetMeta{
		Namespace:          m.Namespace,
		Version:            m.Version,
		ShortName:          m.ShortName,
		IsPublic:           m.Public(),
		NonRedistributable: m.NonRedistributable,
	}
	switch {
	case m.Origin != nil:
		d.Title = firstNonEmpty(m.Origin.TitleSnapshot, m.Origin.Title)
		d.Description = firstNonEmpty(m.Origin.DescriptionSnapshot, m.Origin.Description)
	case m.Source != nil:
		d.Title = m.Source.Name
		d.Description = m.Source.Description
		d.Sources = []Source{*m.Source}
	}
	if m.License != nil {
		d.Licenses = []License{*m.License}
	} else if m.Origin != nil && m.Origin.License != nil {
		d.Licenses = []License{*m.Origin.License}
	}
	return d
}

// hasOrigins reports whether any variable of any table carries origins.
func hasOrigins(tables []*Table) bool {
	for _, t := range tables {
		for _, c := range t.columns {
			if len(c.Meta.Origins) > 0 {
				return true
			}
		}
	}
	return false
}

// CombineTablesMeta synthesizes dataset metadata from the tables it will
// contain. Titles and descriptions are kept only if every table agrees.
// With the origins model the licenses are those of the origins and no
// sources are recorded; otherwise sources and licenses are the de-duplicated
// union over all variables.
func CombineTablesMeta(tables []*Table) *DatasetMeta {
	d := &DatasetMeta{IsPublic: true}
	var titles, descs []string
	for _, t := range tables {
		titles = append(titles, t.Metadata.Title)
		descs = append(descs, t.Metadata.Description)
	}
	d.Title = unique(titles)
	d.Description = unique(descs)

	if hasOrigins(tables) {
		var lics []License
		for _, t := range tables {
			for _, c := range t.columns {
				for _, o := range c.Meta.Origins {
					if o.License != nil {
						lics = append(lics, *o.License)
					}
				}
			}
		}
		d.Licenses = dedupeLicenses(lics)
		return d
	}

	var srcs []Source
	var lics []License
	for _, t := range tables {
		for _, c := range t.columns {
			srcs = append(srcs, c.Meta.Sources...)
			lics = append(lics, c.Meta.Licenses...)
		}
	}
	d.Sources = dedupeSources(srcs)
	d.Licenses = dedupeLicenses(lics)
	return d
}

// unique returns the common non-empty value of vals, or "" if they differ.
func unique(vals []string) string {
	out := ""
	for _, v := range vals {
		if v == "" {
			continue
		}
		if out != "" && out != v {
			return ""
		}
		out = v
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func dedupeLicenses(in []License) []License {
	seen := make(map[License]struct{})
	var out []License
	for _, l := range in {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func dedupeSources(in []Source) []Source {
	seen := make(map[Source]struct{})
	var out []Source
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// dedupeOrigins keeps the first of every set of equal origins. Origin holds a
// pointer so equality goes through the JSON encoding.
func dedupeOrigins(in []Origin) []Origin {
	seen := make(map[string]struct{})
	var out []Origin
	for _, o := range in {
		b, err := json.Marshal(o)
		if err != nil {
			out = append(out, o)
			continue
		}
		if _, ok := seen[string(b)]; ok {
			continue
		}
		seen[string(b)] = struct{}{}
		out = append(out, o)
	}
	return out
}
