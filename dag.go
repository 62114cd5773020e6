package etl

import (
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// DAG maps each step identifier to the identifiers it declares as
// dependencies, in declaration order. Steps that are only ever depended upon
// (snapshots, etag:// URLs) need not be keys.
type DAG map[string][]string

// dagFile is the on-disk shape of a DAG file.
type dagFile struct {
	Include []string            `yaml:"include"`
	Steps   map[string][]string `yaml:"steps"`
}

// LoadDAG reads the DAG file at path and every file it includes. Include
// paths are relative to the including file. A step defined in more than one
// file is an error.
func LoadDAG(path string) (DAG, error) {
	d := DAG{}
	if err := d.load(path, make(map[string]struct{})); err != nil {
		return nil, err
	}
	return d, nil
}

func (d DAG) load(path string, seen map[string]struct{}) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", path)
	}
	if _, ok := seen[abs]; ok {
		return nil
	}
	seen[abs] = struct{}{}

	data, err := ioutil.ReadFile(abs)
	if err != nil {
		return errors.Wrap(err, "reading dag file")
	}
	var f dagFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errors.Wrapf(err, "decoding dag file %s", abs)
	}
	for step, deps := range f.Steps {
		if _, ok := d[step]; ok {
			return errors.Errorf("step %s is defined more than once (again in %s)", step, abs)
		}
		d[step] = append([]string(nil), deps...)
	}
	for _, inc := range f.Include {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		if err := d.load(inc, seen); err != nil {
			return errors.Wrapf(err, "including %s", inc)
		}
	}
	return nil
}

// Has reports whether step is a key of the DAG.
func (d DAG) Has(step string) bool {
	_, ok := d[step]
	return ok
}

// Steps returns every step that is either a key or a dependency, sorted.
func (d DAG) Steps() []string {
	all := make(map[string]struct{}, len(d))
	for step, deps := range d {
		all[step] = struct{}{}
		for _, dep := range deps {
			all[dep] = struct{}{}
		}
	}
	return sortedKeys(all)
}

// Reverse returns the DAG with every edge flipped: each step maps to the
// steps that depend on it.
func (d DAG) Reverse() DAG {
	r := make(DAG, len(d))
	for _, step := range d.Steps() {
		r[step] = nil
	}
	for step, deps := range d {
		for _, dep := range deps {
			r[dep] = append(r[dep], step)
		}
	}
	for step := range r {
		sort.Strings(r[step])
	}
	return r
}

// Upstream returns the given steps together with everything they
// transitively depend on, sorted.
func (d DAG) Upstream(steps ...string) []string {
	return d.closure(steps)
}

// Downstream returns the given steps together with everything that
// transitively depends on them, sorted.
func (d DAG) Downstream(steps ...string) []string {
	return d.Reverse().closure(steps)
}

func (d DAG) closure(steps []string) []string {
	seen := make(map[string]struct{})
	stack := append([]string(nil), steps...)
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		stack = append(stack, d[s]...)
	}
	return sortedKeys(seen)
}

// Order sorts steps so that every step comes after the dependencies it
// shares with the set. Ties are broken alphabetically so the order is
// stable. A cycle among the steps is an error.
func (d DAG) Order(steps []string) ([]string, error) {
	in := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		in[s] = struct{}{}
	}
	pending := make(map[string]int, len(in))
	users := make(map[string][]string)
	for s := range in {
		pending[s] = 0
		for _, dep := range d[s] {
			if _, ok := in[dep]; !ok || dep == s {
				continue
			}
			pending[s]++
			users[dep] = append(users[dep], s)
		}
	}

	var ready []string
	for s, n := range pending {
		if n == 0 {
			ready = append(ready, s)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(in))
	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]
		order = append(order, s)
		var next []string
		for _, u := range users[s] {
			pending[u]--
			if pending[u] == 0 {
				next = append(next, u)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			sort.Strings(ready)
		}
	}
	if len(order) != len(in) {
		var stuck []string
		for s, n := range pending {
			if n > 0 {
				stuck = append(stuck, s)
			}
		}
		sort.Strings(stuck)
		return nil, errors.Errorf("dependency cycle among steps: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
