package etl

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/datacatalog/etl/test"
)

const mainDAG = `include:
  - other.yml
steps:
  data://meadow/un/2022/wpp:
    - snapshot://un/2022/wpp.zip
  data://garden/un/2022/wpp:
    - data://meadow/un/2022/wpp
    - etag://example.org/regions.csv
`

const otherDAG = `include:
  - main.yml
steps:
  data://grapher/un/2022/wpp:
    - data://garden/un/2022/wpp
`

func TestLoadDAG(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{
		"dag/main.yml":  mainDAG,
		"dag/other.yml": otherDAG,
	})
	defer done()

	d, err := LoadDAG(filepath.Join(dir, "dag", "main.yml"))
	test.ErrNil(t, err, "loading dag")
	test.MustBe(t, d["data://garden/un/2022/wpp"], []string{"data://meadow/un/2022/wpp", "etag://example.org/regions.csv"})
	if !d.Has("data://grapher/un/2022/wpp") {
		t.Fatal("included step missing")
	}
	if d.Has("snapshot://un/2022/wpp.zip") {
		t.Fatal("snapshot should only be a dependency")
	}
	test.MustBe(t, len(d.Steps()), 5)

	order, err := d.Order(d.Steps())
	test.ErrNil(t, err, "ordering")
	pos := make(map[string]int)
	for i, s := range order {
		pos[s] = i
	}
	for step, deps := range d {
		for _, dep := range deps {
			if pos[dep] > pos[step] {
				t.Fatalf("%s ordered before its dependency %s: %v", step, dep, order)
			}
		}
	}

	test.MustBe(t, d.Upstream("data://garden/un/2022/wpp"), []string{
		"data://garden/un/2022/wpp",
		"data://meadow/un/2022/wpp",
		"etag://example.org/regions.csv",
		"snapshot://un/2022/wpp.zip",
	})
	test.MustBe(t, d.Downstream("data://meadow/un/2022/wpp"), []string{
		"data://garden/un/2022/wpp",
		"data://grapher/un/2022/wpp",
		"data://meadow/un/2022/wpp",
	})
}

func TestLoadDAGDuplicate(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{
		"a.yml": "include: [b.yml]\nsteps:\n  data://garden/x/2020/a: []\n",
		"b.yml": "steps:\n  data://garden/x/2020/a: []\n",
	})
	defer done()
	_, err := LoadDAG(filepath.Join(dir, "a.yml"))
	if err == nil || !strings.Contains(err.Error(), "more than once") {
		t.Fatalf("expected duplicate step error, got %v", err)
	}
}

func TestDAGOrderCycle(t *testing.T) {
	d := DAG{
		"data://garden/x/2020/a": {"data://garden/x/2020/b"},
		"data://garden/x/2020/b": {"data://garden/x/2020/a"},
		"data://garden/x/2020/c": nil,
	}
	_, err := d.Order(d.Steps())
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
	order, err := d.Order([]string{"data://garden/x/2020/c"})
	test.ErrNil(t, err, "ordering acyclic subset")
	test.MustBe(t, order, []string{"data://garden/x/2020/c"})
}

func TestDAGSet(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{
		"dag/main.yml":         "steps:\n  data://garden/x/2020/live: []\n",
		"dag/archive/main.yml": "steps:\n  data://garden/x/2019/old: []\n",
	})
	defer done()
	set := NewDAGSet(filepath.Join(dir, "dag", "main.yml"), filepath.Join(dir, "dag", "archive", "main.yml"))

	live1, err := set.Live()
	test.ErrNil(t, err, "live")
	live2, err := set.For(filepath.Join(dir, "steps", "data", "garden", "x", "2020", "live.go"))
	test.ErrNil(t, err, "live via For")
	if reflect.ValueOf(live1).Pointer() != reflect.ValueOf(live2).Pointer() {
		t.Fatal("expected the same live dag on every call")
	}
	archive, err := set.For(filepath.Join(dir, "steps", "archive", "data", "garden", "x", "2019", "old.go"))
	test.ErrNil(t, err, "archive")
	if !archive.Has("data://garden/x/2019/old") || archive.Has("data://garden/x/2020/live") {
		t.Fatalf("unexpected archive dag: %v", archive)
	}

	test.WriteFile(t, filepath.Join(dir, "dag", "main.yml"), "steps: {}\n")
	live3, err := set.Live()
	test.ErrNil(t, err, "live after edit")
	if !live3.Has("data://garden/x/2020/live") {
		t.Fatal("dag should be read only once")
	}
}
