// Package test has helpers shared by the tests of several packages.
package test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// MustBe asserts that thing1 and thing2 are equal, and fails with their diff
// otherwise.
func MustBe(t *testing.T, thing1, thing2 interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) > 0 {
		ctx = context[0] + ": "
	}
	if diff := cmp.Diff(thing1, thing2); diff != "" {
		t.Fatalf("%vunexpected difference (-got +want):\n%s", ctx, diff)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t *testing.T, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// TempTree creates a temporary directory holding files, keyed by slash
// separated relative path. The returned function removes it.
func TempTree(t *testing.T, files map[string]string) (string, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "etl-test")
	if err != nil {
		t.Fatalf("getting temp dir: %v", err)
	}
	for name, content := range files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), content)
	}
	return dir, func() { os.RemoveAll(dir) }
}

// WriteFile writes content to path, creating its directory.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("making dir for %s: %v", path, err)
	}
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
