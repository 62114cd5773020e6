package run_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/datacatalog/etl"
	"github.com/datacatalog/etl/run"
	"github.com/datacatalog/etl/test"
)

func TestOpenIndex(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{})
	defer done()
	cfg, err := etl.NewConfig(dir, etl.OptConfigLogger(etl.NopLogger{}))
	test.ErrNil(t, err, "config")

	for _, tst := range []struct {
		backend string
		path    string
		created string
	}{
		{backend: "memory"},
		{backend: "bolt", created: filepath.Join(cfg.DataDir, ".etl-index.db")},
		{backend: "leveldb", created: filepath.Join(cfg.DataDir, ".etl-index")},
		{backend: "bolt", path: filepath.Join(dir, "custom.db"), created: filepath.Join(dir, "custom.db")},
	} {
		t.Run(tst.backend, func(t *testing.T) {
			idx, err := run.OpenIndex(tst.backend, tst.path, cfg)
			test.ErrNil(t, err, "opening")
			e := etl.Entry{Step: "data://garden/a/1/b", Checksum: "abc", UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
			test.ErrNil(t, idx.Put(e), "putting")
			got, err := idx.Get(e.Step)
			test.ErrNil(t, err, "getting")
			test.MustBe(t, got.Checksum, "abc")
			test.ErrNil(t, idx.Close(), "closing")
			if tst.created != "" {
				if _, err := os.Stat(tst.created); err != nil {
					t.Fatalf("index not created at %s: %v", tst.created, err)
				}
			}
		})
	}

	if _, err := run.OpenIndex("redis", "", cfg); err == nil || !strings.Contains(err.Error(), "unknown index backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{})
	defer done()
	path := filepath.Join(dir, "etl.log")

	log, closer, err := run.NewLogger(true, path)
	test.ErrNil(t, err, "getting logger")
	log.Printf("hello %s", "world")
	log.Debugf("debug %d", 1)
	test.ErrNil(t, closer.Close(), "closing")

	data, err := ioutil.ReadFile(path)
	test.ErrNil(t, err, "reading log")
	if !strings.Contains(string(data), "hello world") || !strings.Contains(string(data), "debug 1") {
		t.Fatalf("unexpected log content: %q", data)
	}

	if _, closer, err := run.NewLogger(false, ""); err != nil || closer != nil {
		t.Fatalf("expected stderr logger without closer, got %v %v", closer, err)
	}
}

func TestSetup(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{
		"dag/main.yml": "steps:\n  data://garden/a/1/b: []\n",
	})
	defer done()
	m := run.NewMain()
	m.BaseDir = dir
	m.IndexBackend = "memory"
	m.Workers = 3
	m.DryRun = true
	runner, closers, err := m.Setup()
	test.ErrNil(t, err, "setup")
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	test.MustBe(t, runner.Workers, 3)
	test.MustBe(t, runner.DryRun, true)
	if _, ok := runner.Index.(*etl.MapIndex); !ok {
		t.Fatalf("unexpected index %T", runner.Index)
	}
	plan, err := runner.Plan()
	test.ErrNil(t, err, "planning")
	test.MustBe(t, plan, []string{"data://garden/a/1/b"})
}
