package etl

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// stepDepth is the number of path segments between the step directory and a
// file-form step: <type>/<channel>/<namespace>/<version>/<short_name>.go.
const stepDepth = 5

// PathFinder resolves the identity of one step from the location of its
// source file and looks up the step's dependencies. A PathFinder belongs to
// a single step execution and is not safe for concurrent use.
type PathFinder struct {
	cfg  *Config
	file string
	dir  string

	stepType  string
	channel   Channel
	namespace string
	version   string
	shortName string

	dag      DAG
	step     string
	private  bool
	resolved bool

	// sourceChecksum is set by the Runner and recorded by CreateDataset.
	sourceChecksum string
}

// NewPathFinder derives the coordinates of the step whose source is file.
// The file must live under cfg.StepDir either as
// <type>/<channel>/<namespace>/<version>/<short_name>.go or, in directory
// form, anywhere inside <type>/<channel>/<namespace>/<version>/<short_name>/.
// Anything else is a CurrentFileMustBeAStep error. Nothing is read from disk
// apart from checking whether a bare path is a directory.
func NewPathFinder(cfg *Config, file string) (*PathFinder, error) {
	notStep := &Error{Kind: CurrentFileMustBeAStep, Path: file}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, notStep
	}
	rel, err := filepath.Rel(cfg.StepDir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, notStep
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	// archived steps keep the same layout under an archive/ directory
	if segs[0] == "archive" {
		segs = segs[1:]
	}

	pf := &PathFinder{cfg: cfg, file: abs}
	last := segs[len(segs)-1]
	switch {
	case len(segs) == stepDepth && strings.HasSuffix(last, ".go"):
		pf.shortName = strings.TrimSuffix(last, ".go")
		pf.dir = filepath.Dir(abs)
	case len(segs) == stepDepth && isDir(abs):
		pf.shortName = last
		pf.dir = abs
	case len(segs) == stepDepth+1 && strings.HasSuffix(last, ".go"):
		pf.shortName = segs[stepDepth-1]
		pf.dir = filepath.Dir(abs)
	default:
		return nil, notStep
	}
	pf.stepType, pf.namespace, pf.version = segs[0], segs[2], segs[3]
	if pf.stepType != TypeData && pf.stepType != TypeExport {
		return nil, notStep
	}
	if pf.channel, err = ParseChannel(segs[1]); err != nil {
		return nil, notStep
	}
	if pf.channel == ChannelSnapshot || pf.namespace == "" || pf.version == "" || pf.shortName == "" {
		return nil, notStep
	}
	return pf, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Channel, Namespace, Version and ShortName are the step's coordinates as
// derived from its path.
func (pf *PathFinder) Channel() Channel { return pf.channel }
func (pf *PathFinder) Namespace() string { return pf.namespace }
func (pf *PathFinder) Version() string { return pf.version }
func (pf *PathFinder) ShortName() string { return pf.shortName }
func (pf *PathFinder) File() string { return pf.file }
func (pf *PathFinder) Config() *Config { return pf.cfg }
func (pf *PathFinder) StepType() string { return pf.stepType }
func (pf *PathFinder) Logger() Logger { return pf.cfg.Log }

// Coordinate returns the step's coordinate. Private is only meaningful once
// Step has resolved it.
func (pf *PathFinder) Coordinate() Step {
	return Step{
		Type:      pf.stepType,
		Channel:   pf.channel,
		Namespace: pf.namespace,
		Version:   pf.version,
		ShortName: pf.shortName,
		Private:   pf.private,
	}
}

// DAG returns the dependency graph this step belongs to, loading it on first
// use.
func (pf *PathFinder) DAG() (DAG, error) {
	if pf.dag != nil {
		return pf.dag, nil
	}
	d, err := pf.cfg.DAGs.For(pf.file)
	if err != nil {
		return nil, errors.Wrap(err, "loading dag")
	}
	pf.dag = d
	return d, nil
}

// Step returns the canonical identifier of the step. The public form is
// tried first, then the private form; the result is remembered.
func (pf *PathFinder) Step() (string, error) {
	if pf.resolved {
		return pf.step, nil
	}
	dag, err := pf.DAG()
	if err != nil {
		return "", err
	}
	s := pf.Coordinate()
	s.Private = false
	public := s.String()
	if dag.Has(public) {
		pf.step, pf.private, pf.resolved = public, false, true
		return pf.step, nil
	}
	s.Private = true
	if private := s.String(); dag.Has(private) {
		pf.step, pf.private, pf.resolved = private, true, true
		return pf.step, nil
	}
	return "", &Error{Kind: CurrentStepMustBeInDag, Step: public, Path: pf.file}
}

// IsPrivate reports whether the DAG knows the step in its private form.
func (pf *PathFinder) IsPrivate() (bool, error) {
	if _, err := pf.Step(); err != nil {
		return false, err
	}
	return pf.private, nil
}

// Dependencies returns the step's declared dependencies verbatim.
func (pf *PathFinder) Dependencies() ([]string, error) {
	step, err := pf.Step()
	if err != nil {
		return nil, err
	}
	return pf.dag[step], nil
}

// DepOption narrows a dependency search.
type DepOption func(p *Pattern)

// OptDepShortName restricts the search to dependencies with the given short
// name.
func OptDepShortName(name string) DepOption {
	return func(p *Pattern) {
		p.ShortName = name
	}
}

// OptDepType sets the step type of non-snapshot dependencies (data by
// default).
func OptDepType(t string) DepOption {
	return func(p *Pattern) {
		p.Type = t
	}
}

// OptDepChannel restricts the search to one channel.
func OptDepChannel(c Channel) DepOption {
	return func(p *Pattern) {
		p.Channels = []Channel{c}
	}
}

func OptDepNamespace(ns string) DepOption {
	return func(p *Pattern) {
		p.Namespace = ns
	}
}

func OptDepVersion(v string) DepOption {
	return func(p *Pattern) {
		p.Version = v
	}
}

// OptDepPrivate restricts the search to private (true) or public (false)
// dependencies. Without it both are searched.
func OptDepPrivate(private bool) DepOption {
	return func(p *Pattern) {
		p.Private = &private
	}
}

// NewPattern applies opts to an empty Pattern.
func NewPattern(opts ...DepOption) Pattern {
	var p Pattern
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// DependencyStepName returns the one declared dependency matching opts.
//
// If nothing matches and either the requested channel or the step's own
// channel is grapher, the search is repeated assuming the dependency lives in
// the grapher channel, whatever its type. Zero matches after that is a
// NoMatchingStepsAmongDependencies error; more than one match at any point is
// a MultipleMatchingStepsAmongDependencies error.
func (pf *PathFinder) DependencyStepName(opts ...DepOption) (string, error) {
	return pf.resolve(NewPattern(opts...))
}

func (pf *PathFinder) resolve(p Pattern) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	step, err := pf.Step()
	if err != nil {
		return "", err
	}
	deps := pf.dag[step]

	matches := matching(p, deps)
	if len(matches) == 0 && (pf.channel == Grapher || p.asks(Grapher)) {
		g := p
		g.Channels = []Channel{Grapher}
		g.AnyType = true
		matches = matching(g, deps)
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", &Error{Kind: NoMatchingStepsAmongDependencies, Step: step, Pattern: p.String()}
	}
	return "", &Error{Kind: MultipleMatchingStepsAmongDependencies, Step: step, Pattern: p.String(), Candidates: matches}
}

func matching(p Pattern, deps []string) []string {
	var out []string
	for _, d := range deps {
		if p.MatchesName(d) {
			out = append(out, d)
		}
	}
	return out
}

// LoadDependency resolves the dependency matching opts and opens it.
func (pf *PathFinder) LoadDependency(opts ...DepOption) (Dependency, error) {
	return pf.load(NewPattern(opts...))
}

func (pf *PathFinder) load(p Pattern) (Dependency, error) {
	name, err := pf.resolve(p)
	if err != nil {
		return nil, err
	}
	s, err := ParseStep(name)
	if err != nil {
		return nil, err
	}
	if s.Channel == ChannelSnapshot {
		snap, err := OpenSnapshot(pf.cfg, s)
		if err != nil {
			return nil, err
		}
		return snap, nil
	}
	ds, err := OpenDataset(pf.cfg.DatasetDir(s))
	if err != nil {
		return nil, errors.Wrapf(err, "opening dependency %s", name)
	}
	return ds, nil
}

// LoadSnapshot loads a snapshot dependency. The short name defaults to the
// step's own.
func (pf *PathFinder) LoadSnapshot(opts ...DepOption) (*Snapshot, error) {
	p := NewPattern(append([]DepOption{OptDepShortName(pf.shortName)}, opts...)...)
	p.Channels = []Channel{ChannelSnapshot}
	dep, err := pf.load(p)
	if err != nil {
		return nil, err
	}
	snap, ok := dep.(*Snapshot)
	if !ok {
		return nil, errors.Errorf("dependency %s is not a snapshot", dep.Step())
	}
	return snap, nil
}

// LoadDataset loads a dataset dependency. The short name defaults to the
// step's own, and without OptDepChannel the meadow, garden and examples
// channels are searched.
func (pf *PathFinder) LoadDataset(opts ...DepOption) (*Dataset, error) {
	p := NewPattern(append([]DepOption{OptDepShortName(pf.shortName)}, opts...)...)
	if len(p.Channels) == 0 {
		p.Channels = []Channel{Meadow, Garden, Examples}
	}
	if p.asks(ChannelSnapshot) {
		return nil, errors.New("LoadDataset cannot load a snapshot, use LoadSnapshot")
	}
	dep, err := pf.load(p)
	if err != nil {
		return nil, err
	}
	ds, ok := dep.(*Dataset)
	if !ok {
		return nil, errors.Errorf("dependency %s is not a dataset", dep.Step())
	}
	return ds, nil
}

// ReadSnapTable loads a snapshot dependency and reads it as a table.
func (pf *PathFinder) ReadSnapTable(ctx context.Context, opts ...DepOption) (*Table, error) {
	snap, err := pf.LoadSnapshot(opts...)
	if err != nil {
		return nil, err
	}
	return snap.ReadTable(ctx)
}

// Directory is where the step's sidecar files live.
func (pf *PathFinder) Directory() string {
	return pf.dir
}

func (pf *PathFinder) sidecar(suffix string) string {
	return filepath.Join(pf.dir, pf.shortName+suffix)
}

func (pf *PathFinder) MetadataPath() string { return pf.sidecar(metaSuffix) }
func (pf *PathFinder) OverridePath() string { return pf.sidecar(overrideSuffix) }
func (pf *PathFinder) CountriesPath() string { return pf.sidecar(".countries.json") }
func (pf *PathFinder) ExcludedCountriesPath() string { return pf.sidecar(".excluded_countries.json") }

// DestDir is where the step's output dataset is written.
func (pf *PathFinder) DestDir() string {
	return pf.cfg.DatasetDir(pf.Coordinate())
}

// CreateDataset assembles and saves the step's output dataset in DestDir
// with the step's own metadata file.
func (pf *PathFinder) CreateDataset(tables []*Table, opts ...DatasetOption) (*Dataset, error) {
	private, err := pf.IsPrivate()
	if err != nil {
		return nil, err
	}
	opts = append([]DatasetOption{
		OptMetadataPath(pf.MetadataPath()),
		OptPublic(!private),
		OptSourceChecksum(pf.sourceChecksum),
	}, opts...)
	return CreateDataset(pf.cfg, pf.DestDir(), tables, opts...)
}
