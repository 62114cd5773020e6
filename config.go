package etl

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Config is built once per process and handed to every PathFinder. It carries
// the directory layout, the ambient logger and statter, and the DAGSet that
// caches the dependency graphs.
type Config struct {
	// BaseDir is the repository root everything else defaults relative to.
	BaseDir string
	// StepDir holds step sources: <StepDir>/<type>/<channel>/<ns>/<ver>/<short>.
	StepDir string
	// DataDir holds built datasets: <DataDir>/<channel>/<ns>/<ver>/<short>.
	DataDir string
	// SnapshotDir holds snapshot files and their .dvc sidecars.
	SnapshotDir    string
	DAGFile        string
	ArchiveDAGFile string

	Log   Logger
	Stats Statter
	// Fetcher downloads snapshot files missing from SnapshotDir. Nil means
	// snapshots must already be present.
	Fetcher Fetcher

	DAGs *DAGSet
}

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(c *Config) error

// OptConfigStepDir overrides the default <base>/steps.
func OptConfigStepDir(dir string) ConfigOption {
	return func(c *Config) error {
		c.StepDir = dir
		return nil
	}
}

// OptConfigDataDir overrides the default <base>/data.
func OptConfigDataDir(dir string) ConfigOption {
	return func(c *Config) error {
		c.DataDir = dir
		return nil
	}
}

// OptConfigSnapshotDir overrides the default <base>/snapshots.
func OptConfigSnapshotDir(dir string) ConfigOption {
	return func(c *Config) error {
		c.SnapshotDir = dir
		return nil
	}
}

// OptConfigDAGFile overrides the default <base>/dag/main.yml.
func OptConfigDAGFile(path string) ConfigOption {
	return func(c *Config) error {
		c.DAGFile = path
		return nil
	}
}

// OptConfigArchiveDAGFile overrides the default <base>/dag/archive/main.yml.
func OptConfigArchiveDAGFile(path string) ConfigOption {
	return func(c *Config) error {
		c.ArchiveDAGFile = path
		return nil
	}
}

func OptConfigLogger(l Logger) ConfigOption {
	return func(c *Config) error {
		c.Log = l
		return nil
	}
}

func OptConfigStatter(s Statter) ConfigOption {
	return func(c *Config) error {
		c.Stats = s
		return nil
	}
}

func OptConfigFetcher(f Fetcher) ConfigOption {
	return func(c *Config) error {
		c.Fetcher = f
		return nil
	}
}

// NewConfig returns a Config rooted at baseDir. Directories are made absolute
// so that step paths reported by runtime.Caller compare cleanly against them.
func NewConfig(baseDir string, opts ...ConfigOption) (*Config, error) {
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving base dir")
	}
	c := &Config{
		BaseDir:        base,
		StepDir:        filepath.Join(base, "steps"),
		DataDir:        filepath.Join(base, "data"),
		SnapshotDir:    filepath.Join(base, "snapshots"),
		DAGFile:        filepath.Join(base, "dag", "main.yml"),
		ArchiveDAGFile: filepath.Join(base, "dag", "archive", "main.yml"),
		Log:            NewStdLogger(os.Stderr),
		Stats:          NopStatter{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	for _, p := range []*string{&c.StepDir, &c.DataDir, &c.SnapshotDir, &c.DAGFile, &c.ArchiveDAGFile} {
		if *p, err = filepath.Abs(*p); err != nil {
			return nil, errors.Wrap(err, "resolving config path")
		}
	}
	if c.DAGs == nil {
		c.DAGs = NewDAGSet(c.DAGFile, c.ArchiveDAGFile)
	}
	return c, nil
}

// DatasetDir is where the dataset built by data step s lives.
func (c *Config) DatasetDir(s Step) string {
	return filepath.Join(c.DataDir, string(s.Channel), s.Namespace, s.Version, s.ShortName)
}
