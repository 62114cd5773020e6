package etl

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Entry is what the build Index remembers about one step.
type Entry struct {
	Step      string    `json:"step"`
	Checksum  string    `json:"checksum"`
	Path      string    `json:"path,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound is returned by Index.Get for a step that has never been built.
var ErrNotFound = errors.New("not found")

// Index records the input checksum each step was last built from, so that a
// run can skip steps whose inputs have not changed. Implementations must be
// safe for concurrent use.
type Index interface {
	Get(step string) (Entry, error)
	Put(e Entry) error
	List() ([]Entry, error)
	Close() error
}

// MapIndex is an in-memory Index.
type MapIndex struct {
	lock    sync.RWMutex
	entries map[string]Entry
}

// NewMapIndex creates a new MapIndex.
func NewMapIndex() *MapIndex {
	return &MapIndex{
		entries: make(map[string]Entry),
	}
}

// Get returns the entry for step or ErrNotFound.
func (m *MapIndex) Get(step string) (Entry, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	e, ok := m.entries[step]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "step %s", step)
	}
	return e, nil
}

// Put stores e, replacing any earlier entry for the same step.
func (m *MapIndex) Put(e Entry) error {
	if e.Step == "" {
		return errors.New("entry has no step")
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries[e.Step] = e
	return nil
}

// List returns all entries sorted by step.
func (m *MapIndex) List() ([]Entry, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	SortEntries(out)
	return out, nil
}

func (m *MapIndex) Close() error { return nil }

// SortEntries sorts entries by step.
func SortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Step < es[j].Step })
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}
