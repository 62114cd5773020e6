package etl

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Runner executes steps of the DAG in dependency order.
type Runner struct {
	Config    *Config
	Registry  *Registry
	Index     Index
	Publisher Publisher

	// Workers is how many steps may run at once.
	Workers int
	// Force rebuilds steps whose inputs have not changed.
	Force bool
	// DryRun plans and logs but runs nothing.
	DryRun bool
	// Only runs the selected steps without their dependencies.
	Only bool
	// Downstream also runs every step depending on a selected one.
	Downstream bool
	// Archive runs against the archive DAG.
	Archive bool

	mu   sync.Mutex
	sums map[string]string
}

// NewRunner returns a Runner over cfg using the default registry, an
// in-memory index and no event publisher.
func NewRunner(cfg *Config) *Runner {
	return &Runner{
		Config:    cfg,
		Registry:  DefaultRegistry,
		Index:     NewMapIndex(),
		Publisher: NopPublisher{},
		Workers:   1,
	}
}

func (r *Runner) dag() (DAG, error) {
	if r.Archive {
		return r.Config.DAGs.Archive()
	}
	return r.Config.DAGs.Live()
}

// Plan returns the steps a run with the given patterns would execute, in
// order. A step is selected when its identifier contains any pattern; no
// patterns select everything.
func (r *Runner) Plan(patterns ...string) ([]string, error) {
	dag, err := r.dag()
	if err != nil {
		return nil, err
	}
	var selected []string
	for _, s := range dag.Steps() {
		if len(patterns) == 0 {
			selected = append(selected, s)
			continue
		}
		for _, p := range patterns {
			if strings.Contains(s, p) {
				selected = append(selected, s)
				break
			}
		}
	}
	if len(selected) == 0 {
		return nil, errors.Errorf("no steps match %v", patterns)
	}
	if r.Downstream {
		selected = dag.Downstream(selected...)
	}
	if !r.Only {
		selected = dag.Upstream(selected...)
	}
	return dag.Order(selected)
}

// Run plans and executes. The first failing step cancels the others and its
// error is returned.
func (r *Runner) Run(ctx context.Context, patterns ...string) error {
	plan, err := r.Plan(patterns...)
	if err != nil {
		return err
	}
	dag, err := r.dag()
	if err != nil {
		return err
	}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	runID := uuid.NewV4().String()
	r.Config.Log.Printf("run %s: %d steps, %d workers", runID, len(plan), workers)
	r.sums = make(map[string]string, len(plan))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(map[string]chan struct{}, len(plan))
	for _, s := range plan {
		done[s] = make(chan struct{})
	}
	sem := make(chan struct{}, workers)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for _, s := range plan {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			defer close(done[s])
			for _, d := range dag[s] {
				if ch, ok := done[d]; ok {
					select {
					case <-ch:
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			if err := r.runStep(ctx, runID, s, dag[s]); err != nil {
				r.publish(Event{Type: EventStepFailed, RunID: runID, Step: s, Error: err.Error()})
				fail(errors.Wrapf(err, "step %s", s))
			}
		}(s)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (r *Runner) publish(e Event) {
	e.Time = time.Now()
	if err := r.Publisher.Publish(e); err != nil {
		r.Config.Log.Printf("publishing %s event for %s: %v", e.Type, e.Step, err)
	}
}

func (r *Runner) setSum(step, sum string) {
	r.mu.Lock()
	r.sums[step] = sum
	r.mu.Unlock()
}

func (r *Runner) depSums(deps []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(deps))
	for i, d := range deps {
		if s, ok := r.sums[d]; ok {
			out[i] = s
		} else {
			out[i] = d
		}
	}
	return out
}

func (r *Runner) runStep(ctx context.Context, runID, id string, deps []string) error {
	s, err := ParseStep(id)
	if err != nil {
		// etag:// and other opaque dependencies are not built
		r.Config.Log.Debugf("skipping opaque step %s", id)
		r.setSum(id, id)
		return nil
	}
	if s.Channel == ChannelSnapshot {
		return r.runSnapshot(ctx, s, id)
	}

	reg, ok := r.Registry.Lookup(s)
	if !ok {
		return errors.Errorf("no step function registered for %s", id)
	}
	file := filepath.Join(r.Config.StepDir, filepath.FromSlash(reg.Rel))
	if r.Archive {
		file = filepath.Join(r.Config.StepDir, "archive", filepath.FromSlash(reg.Rel))
	}
	pf, err := NewPathFinder(r.Config, file)
	if err != nil {
		return err
	}
	if got, err := pf.Step(); err != nil {
		return err
	} else if got != id {
		return errors.Errorf("step file %s resolves to %s", reg.Rel, got)
	}

	inputs, err := stepInputs(pf)
	if err != nil {
		return err
	}
	sum, err := InputChecksum(inputs, r.depSums(deps))
	if err != nil {
		return errors.Wrap(err, "computing input checksum")
	}
	r.setSum(id, sum)

	if !r.Force {
		if e, err := r.Index.Get(id); err == nil && e.Checksum == sum && DatasetExists(pf.DestDir()) {
			r.Config.Log.Debugf("%s is up to date", id)
			r.Config.Stats.Count("steps.skipped", 1, 1)
			r.publish(Event{Type: EventStepSkipped, RunID: runID, Step: id, Checksum: sum, Path: pf.DestDir()})
			return nil
		} else if err != nil && !IsNotFound(err) {
			return errors.Wrap(err, "reading build index")
		}
	}
	if r.DryRun {
		r.Config.Log.Printf("would run %s", id)
		return nil
	}

	r.Config.Log.Printf("running %s", id)
	start := time.Now()
	pf.sourceChecksum = sum
	if err := reg.Func(ctx, pf); err != nil {
		return err
	}
	took := time.Since(start)
	r.Config.Stats.Timing("steps.duration", took, 1, "channel:"+string(s.Channel))
	r.Config.Stats.Count("steps.built", 1, 1)
	r.Config.Log.Printf("finished %s in %v", id, took.Round(time.Millisecond))

	if err := r.Index.Put(Entry{Step: id, Checksum: sum, Path: pf.DestDir(), RunID: runID, UpdatedAt: time.Now()}); err != nil {
		return errors.Wrap(err, "updating build index")
	}
	r.publish(Event{Type: EventStepBuilt, RunID: runID, Step: id, Checksum: sum, Path: pf.DestDir()})
	return nil
}

func (r *Runner) runSnapshot(ctx context.Context, s Step, id string) error {
	snap, err := OpenSnapshot(r.Config, s)
	if err != nil {
		return err
	}
	r.setSum(id, snapshotChecksum(snap))
	if r.DryRun {
		return nil
	}
	if err := snap.Pull(ctx); err != nil {
		return err
	}
	r.Config.Stats.Count("snapshots.ready", 1, 1)
	return nil
}
