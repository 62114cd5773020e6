package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/datacatalog/etl/test"
)

const rootGraphDAG = `steps:
  data://meadow/a/1/b:
    - snapshot://a/1/b.csv
  data://garden/a/1/b:
    - data://meadow/a/1/b
`

const rootGraphOut = `snapshot://a/1/b.csv
data://meadow/a/1/b
  <- snapshot://a/1/b.csv
data://garden/a/1/b
  <- data://meadow/a/1/b
`

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rc := NewRootCommand(nil, buf, ioutil.Discard)
	rc.SetArgs(args)
	err := rc.Execute()
	return buf.String(), err
}

func TestRootSharedFlags(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{"dag/main.yml": rootGraphDAG})
	defer done()
	empty, doneEmpty := test.TempTree(t, map[string]string{"README": "no dag here\n"})
	defer doneEmpty()

	out, err := execRoot(t, "graph", "--base-dir", dir, "data://garden/a/1/b")
	test.ErrNil(t, err, "base-dir flag")
	test.MustBe(t, out, rootGraphOut, "base-dir flag")

	moved := filepath.Join(dir, "dag", "other.yml")
	test.WriteFile(t, moved, rootGraphDAG)
	out, err = execRoot(t, "graph", "--base-dir", empty, "--dag-file", moved, "data://garden/a/1/b")
	test.ErrNil(t, err, "dag-file flag")
	test.MustBe(t, out, rootGraphOut, "dag-file flag")

	if _, err := execRoot(t, "graph", "--base-dir", empty, "data://garden/a/1/b"); err == nil {
		t.Fatal("expected error for a base dir without a dag")
	}
}

func TestRootSharedFlagsEnv(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{"dag/main.yml": rootGraphDAG})
	defer done()
	empty, doneEmpty := test.TempTree(t, map[string]string{"README": "no dag here\n"})
	defer doneEmpty()

	if err := os.Setenv("ETL_BASE_DIR", dir); err != nil {
		t.Fatalf("setting env: %v", err)
	}
	defer os.Unsetenv("ETL_BASE_DIR")

	out, err := execRoot(t, "graph", "data://garden/a/1/b")
	test.ErrNil(t, err, "env")
	test.MustBe(t, out, rootGraphOut, "env")

	// The command line wins over the environment.
	if _, err := execRoot(t, "graph", "--base-dir", empty, "data://garden/a/1/b"); err == nil {
		t.Fatal("expected the base-dir flag to override ETL_BASE_DIR")
	}
}

func TestRootSharedFlagsConfig(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{"dag/main.yml": rootGraphDAG})
	defer done()

	conf := filepath.Join(dir, "etl.toml")
	test.WriteFile(t, conf, "base-dir = '"+dir+"'\n")
	out, err := execRoot(t, "graph", "--config", conf, "data://garden/a/1/b")
	test.ErrNil(t, err, "config file")
	test.MustBe(t, out, rootGraphOut, "config file")

	if _, err := execRoot(t, "graph", "--config", filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
