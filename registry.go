package etl

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// StepFunc is the body of a data or export step.
type StepFunc func(ctx context.Context, pf *PathFinder) error

// RegisteredStep is a step function together with the location of its
// source relative to the step directory.
type RegisteredStep struct {
	// Rel is e.g. data/garden/demography/2024-07-15/population.go or, in
	// directory form, data/garden/demography/2024-07-15/population/step.go.
	Rel  string
	Func StepFunc
}

// Registry maps step coordinates to step functions.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]RegisteredStep
}

func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]RegisteredStep)}
}

// DefaultRegistry is where RegisterStep records steps.
var DefaultRegistry = NewRegistry()

// RegisterStep registers fn as the step whose source file is the caller's.
// It is meant to be called from an init function in the step's own file, so
// the step is identified by where it lives, the same way a PathFinder
// identifies it.
func RegisterStep(fn StepFunc) {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		panic("etl: RegisterStep cannot locate its caller")
	}
	if err := DefaultRegistry.Register(file, fn); err != nil {
		panic(err)
	}
}

// Register records fn for the step at file. Only the trailing segments of
// file are looked at, so the same binary works whether it was built with
// absolute or module-relative source paths.
func (r *Registry) Register(file string, fn StepFunc) error {
	s, rel, err := stepFromTail(file)
	if err != nil {
		return err
	}
	key := s.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.steps[key]; ok {
		return errors.Errorf("step %s registered twice (%s and %s)", key, prev.Rel, rel)
	}
	r.steps[key] = RegisteredStep{Rel: rel, Func: fn}
	return nil
}

// Lookup returns the registration for s, whatever its visibility.
func (r *Registry) Lookup(s Step) (RegisteredStep, bool) {
	s.Private = false
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.steps[s.String()]
	return rs, ok
}

// Steps returns the public identifiers of all registered steps, sorted.
func (r *Registry) Steps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.steps))
	for k := range r.steps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// stepFromTail reads a step coordinate off the last segments of a source
// path, trying the directory form first.
func stepFromTail(file string) (Step, string, error) {
	segs := strings.Split(filepath.ToSlash(file), "/")
	if !strings.HasSuffix(file, ".go") {
		return Step{}, "", &Error{Kind: CurrentFileMustBeAStep, Path: file}
	}
	for _, n := range []int{stepDepth + 1, stepDepth} {
		if len(segs) < n {
			continue
		}
		tail := segs[len(segs)-n:]
		if tail[0] != TypeData && tail[0] != TypeExport {
			continue
		}
		c, err := ParseChannel(tail[1])
		if err != nil || c == ChannelSnapshot {
			continue
		}
		short := strings.TrimSuffix(tail[4], ".go")
		s := Step{Type: tail[0], Channel: c, Namespace: tail[2], Version: tail[3], ShortName: short}
		return s, strings.Join(tail, "/"), nil
	}
	return Step{}, "", &Error{Kind: CurrentFileMustBeAStep, Path: file}
}
