package etl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datacatalog/etl/test"
)

const pathFinderDAG = `steps:
  data://garden/demography/2024-07-15/population:
    - data://meadow/demography/2024-07-15/population
    - snapshot://demography/2024-07-15/population.csv
    - data://grapher/demography/2023-01-01/population
  data-private://garden/demography/2024-07-15/secret:
    - data://meadow/demography/2024-07-15/population
  data://grapher/demography/2024-08-01/population:
    - data://grapher/demography/2024-07-15/population
  data://garden/x/2021/bar:
    - data://garden/x/2020/foo
    - data-private://garden/x/2020/foo
`

const populationDVC = `meta:
  origin:
    producer: Example
    title: Population
outs:
  - md5: 0123456789abcdef0123456789abcdef
    size: 10
    path: population.csv
`

func newTestConfig(t *testing.T, files map[string]string) (*Config, func()) {
	t.Helper()
	if _, ok := files["dag/main.yml"]; !ok {
		files["dag/main.yml"] = pathFinderDAG
	}
	dir, done := test.TempTree(t, files)
	cfg, err := NewConfig(dir, OptConfigLogger(NopLogger{}))
	if err != nil {
		done()
		t.Fatalf("getting config: %v", err)
	}
	return cfg, done
}

func stepFile(cfg *Config, rel string) string {
	return filepath.Join(cfg.StepDir, filepath.FromSlash(rel))
}

func TestNewPathFinderNotAStep(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{})
	defer done()

	for _, file := range []string{
		filepath.Join(cfg.BaseDir, "population.go"),
		stepFile(cfg, "data/garden/demography/2024-07-15.go"),
		stepFile(cfg, "data/garden/demography/2024-07-15/population/nested/step.go"),
		stepFile(cfg, "scripts/garden/demography/2024-07-15/population.go"),
		stepFile(cfg, "data/snapshot/demography/2024-07-15/population.go"),
		stepFile(cfg, "data/walden/demography/2024-07-15/population.go"),
		stepFile(cfg, "export/walden/demography/2024-07-15/population/step.go"),
	} {
		if _, err := NewPathFinder(cfg, file); !IsKind(err, CurrentFileMustBeAStep) {
			t.Fatalf("%s: expected CurrentFileMustBeAStep, got %v", file, err)
		}
	}
}

func TestPathFinderForms(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{})
	defer done()
	if err := os.MkdirAll(stepFile(cfg, "data/garden/demography/2024-07-15/population"), 0755); err != nil {
		t.Fatalf("making step dir: %v", err)
	}

	exp := Step{Type: TypeData, Channel: Garden, Namespace: "demography", Version: "2024-07-15", ShortName: "population"}
	for _, rel := range []string{
		"data/garden/demography/2024-07-15/population.go",
		"data/garden/demography/2024-07-15/population",
		"data/garden/demography/2024-07-15/population/step.go",
		"archive/data/garden/demography/2024-07-15/population.go",
	} {
		pf, err := NewPathFinder(cfg, stepFile(cfg, rel))
		test.ErrNil(t, err, rel)
		test.MustBe(t, pf.Coordinate(), exp, rel)
	}

	file, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/population.go"))
	test.ErrNil(t, err, "file form")
	dir, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/population/step.go"))
	test.ErrNil(t, err, "directory form")
	test.MustBe(t, file.MetadataPath(), stepFile(cfg, "data/garden/demography/2024-07-15/population.meta.yml"))
	test.MustBe(t, dir.MetadataPath(), stepFile(cfg, "data/garden/demography/2024-07-15/population/population.meta.yml"))
	test.MustBe(t, dir.CountriesPath(), stepFile(cfg, "data/garden/demography/2024-07-15/population/population.countries.json"))
	test.MustBe(t, file.DestDir(), filepath.Join(cfg.DataDir, "garden", "demography", "2024-07-15", "population"))
	test.MustBe(t, dir.DestDir(), file.DestDir())
}

func TestPathFinderStep(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{})
	defer done()

	pf, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/population.go"))
	test.ErrNil(t, err, "public")
	step, err := pf.Step()
	test.ErrNil(t, err, "public step")
	test.MustBe(t, step, "data://garden/demography/2024-07-15/population")
	deps, err := pf.Dependencies()
	test.ErrNil(t, err, "dependencies")
	test.MustBe(t, len(deps), 3)

	pf, err = NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/secret.go"))
	test.ErrNil(t, err, "private")
	step, err = pf.Step()
	test.ErrNil(t, err, "private step")
	test.MustBe(t, step, "data-private://garden/demography/2024-07-15/secret")
	private, err := pf.IsPrivate()
	test.ErrNil(t, err, "is private")
	test.MustBe(t, private, true)

	pf, err = NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/missing.go"))
	test.ErrNil(t, err, "missing")
	if _, err := pf.Step(); !IsKind(err, CurrentStepMustBeInDag) {
		t.Fatalf("expected CurrentStepMustBeInDag, got %v", err)
	}
	if _, err := pf.DependencyStepName(OptDepShortName("population")); !IsKind(err, CurrentStepMustBeInDag) {
		t.Fatalf("expected CurrentStepMustBeInDag from dependency lookup, got %v", err)
	}
}

func TestDependencyStepName(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{})
	defer done()
	garden, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/population.go"))
	test.ErrNil(t, err, "garden")

	name, err := garden.DependencyStepName(OptDepShortName("population"), OptDepChannel(Meadow))
	test.ErrNil(t, err, "meadow")
	test.MustBe(t, name, "data://meadow/demography/2024-07-15/population")

	name, err = garden.DependencyStepName(OptDepShortName("population"), OptDepChannel(ChannelSnapshot))
	test.ErrNil(t, err, "snapshot")
	test.MustBe(t, name, "snapshot://demography/2024-07-15/population.csv")

	// meadow and snapshot both match without a channel
	_, err = garden.DependencyStepName(OptDepShortName("population"))
	if !IsKind(err, MultipleMatchingStepsAmongDependencies) {
		t.Fatalf("expected MultipleMatchingStepsAmongDependencies, got %v", err)
	}

	name, err = garden.DependencyStepName(OptDepShortName("population"), OptDepChannel(Grapher))
	test.ErrNil(t, err, "grapher asked")
	test.MustBe(t, name, "data://grapher/demography/2023-01-01/population")

	_, err = garden.DependencyStepName(OptDepShortName("nothing"))
	if !IsKind(err, NoMatchingStepsAmongDependencies) {
		t.Fatalf("expected NoMatchingStepsAmongDependencies, got %v", err)
	}
	_, err = garden.DependencyStepName(OptDepChannel("walden"))
	if !IsKind(err, UnknownChannel) {
		t.Fatalf("expected UnknownChannel, got %v", err)
	}
}

func TestDependencyStepNameGrapherFallback(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{
		"dag/main.yml": `steps:
  data://garden/demography/2024-08-01/population:
    - data://grapher/demography/2024-07-15/population
  data://grapher/demography/2024-08-01/population:
    - data://grapher/demography/2024-07-15/population
`,
	})
	defer done()

	garden, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-08-01/population.go"))
	test.ErrNil(t, err, "garden")
	_, err = garden.DependencyStepName(OptDepShortName("population"))
	if !IsKind(err, NoMatchingStepsAmongDependencies) {
		t.Fatalf("expected NoMatchingStepsAmongDependencies, got %v", err)
	}

	grapher, err := NewPathFinder(cfg, stepFile(cfg, "data/grapher/demography/2024-08-01/population.go"))
	test.ErrNil(t, err, "grapher")
	name, err := grapher.DependencyStepName(OptDepShortName("population"))
	test.ErrNil(t, err, "grapher fallback")
	test.MustBe(t, name, "data://grapher/demography/2024-07-15/population")
}

func TestDependencyStepNamePrivacy(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{})
	defer done()
	pf, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/x/2021/bar.go"))
	test.ErrNil(t, err, "bar")

	_, err = pf.DependencyStepName(OptDepShortName("foo"))
	if !IsKind(err, MultipleMatchingStepsAmongDependencies) {
		t.Fatalf("expected MultipleMatchingStepsAmongDependencies, got %v", err)
	}
	e := err.(*Error)
	test.MustBe(t, e.Candidates, []string{"data://garden/x/2020/foo", "data-private://garden/x/2020/foo"})

	name, err := pf.DependencyStepName(OptDepShortName("foo"), OptDepPrivate(true))
	test.ErrNil(t, err, "private")
	test.MustBe(t, name, "data-private://garden/x/2020/foo")
	name, err = pf.DependencyStepName(OptDepShortName("foo"), OptDepPrivate(false))
	test.ErrNil(t, err, "public")
	test.MustBe(t, name, "data://garden/x/2020/foo")
}

func TestLoadDependency(t *testing.T) {
	cfg, done := newTestConfig(t, map[string]string{
		"snapshots/demography/2024-07-15/population.csv.dvc": populationDVC,
	})
	defer done()
	pf, err := NewPathFinder(cfg, stepFile(cfg, "data/garden/demography/2024-07-15/population.go"))
	test.ErrNil(t, err, "garden")

	dep, err := pf.LoadDependency(OptDepShortName("population"), OptDepChannel(ChannelSnapshot))
	test.ErrNil(t, err, "loading snapshot")
	snap, ok := dep.(*Snapshot)
	if !ok {
		t.Fatalf("expected a snapshot, got %T", dep)
	}
	test.MustBe(t, snap.Path, filepath.Join(cfg.SnapshotDir, "demography", "2024-07-15", "population.csv"))
	test.MustBe(t, snap.Metadata.Origin.Producer, "Example")
	test.MustBe(t, snap.ContentKey(), "md5/01/23456789abcdef0123456789abcdef")

	snap, err = pf.LoadSnapshot()
	test.ErrNil(t, err, "LoadSnapshot")
	test.MustBe(t, snap.Step().String(), "snapshot://demography/2024-07-15/population.csv")

	meadow := Step{Type: TypeData, Channel: Meadow, Namespace: "demography", Version: "2024-07-15", ShortName: "population"}
	if err := NewDataset(cfg.DatasetDir(meadow), DatasetMeta{Channel: Meadow, Namespace: "demography", Version: "2024-07-15", ShortName: "population", IsPublic: true}).Save(); err != nil {
		t.Fatalf("saving meadow dataset: %v", err)
	}
	ds, err := pf.LoadDataset()
	test.ErrNil(t, err, "LoadDataset")
	test.MustBe(t, ds.Step().String(), meadow.String())

	if _, err := pf.LoadDataset(OptDepChannel(ChannelSnapshot)); err == nil {
		t.Fatal("expected error loading a snapshot as a dataset")
	}
	_, err = pf.LoadDependency(OptDepShortName("population"), OptDepChannel(Garden))
	if !IsKind(err, NoMatchingStepsAmongDependencies) {
		t.Fatalf("expected NoMatchingStepsAmongDependencies, got %v", err)
	}
}
