package etl

import (
	"path/filepath"
	"strings"
	"sync"
)

// DAGSet holds the live and the archive dependency graph of one process.
// Each variant is read from disk the first time it is asked for and the same
// map is handed out on every later call. There is no invalidation; a process
// that wants to see an edited DAG file has to restart.
//
// The maps handed out must not be modified.
type DAGSet struct {
	live    dagOnce
	archive dagOnce
}

type dagOnce struct {
	path string
	once sync.Once
	dag  DAG
	err  error
}

func (o *dagOnce) get() (DAG, error) {
	o.once.Do(func() {
		o.dag, o.err = LoadDAG(o.path)
	})
	return o.dag, o.err
}

// NewDAGSet returns a DAGSet reading the live graph from livePath and the
// archive graph from archivePath. Nothing is read until first use.
func NewDAGSet(livePath, archivePath string) *DAGSet {
	return &DAGSet{
		live:    dagOnce{path: livePath},
		archive: dagOnce{path: archivePath},
	}
}

// Live returns the live graph.
func (s *DAGSet) Live() (DAG, error) {
	return s.live.get()
}

// Archive returns the archive graph.
func (s *DAGSet) Archive() (DAG, error) {
	return s.archive.get()
}

// For returns the graph a step at path belongs to: the archive graph when
// any segment of path is "archive", the live graph otherwise.
func (s *DAGSet) For(path string) (DAG, error) {
	if isArchivePath(path) {
		return s.Archive()
	}
	return s.Live()
}

func isArchivePath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "archive" {
			return true
		}
	}
	return false
}
