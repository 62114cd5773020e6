package etl

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind enumerates the ways step resolution can fail. None of them are
// retried; the step that hits one is expected to stop.
type ErrorKind int

const (
	// CurrentFileMustBeAStep: the file a PathFinder was built from is not
	// laid out as a step under the step directory.
	CurrentFileMustBeAStep ErrorKind = iota + 1
	// WrongStepName: a canonical identifier or destination path could not
	// be parsed.
	WrongStepName
	// UnknownChannel: a channel outside the fixed enumeration.
	UnknownChannel
	// CurrentStepMustBeInDag: the resolved step is absent from the DAG in
	// both its public and private form.
	CurrentStepMustBeInDag
	// NoMatchingStepsAmongDependencies: a dependency pattern matched nothing.
	NoMatchingStepsAmongDependencies
	// MultipleMatchingStepsAmongDependencies: a dependency pattern is ambiguous.
	MultipleMatchingStepsAmongDependencies
	// MissingVariable: a metadata file describes a variable no table has.
	MissingVariable
)

var kindNames = map[ErrorKind]string{
	CurrentFileMustBeAStep:                 "CurrentFileMustBeAStep",
	WrongStepName:                          "WrongStepName",
	UnknownChannel:                         "UnknownChannel",
	CurrentStepMustBeInDag:                 "CurrentStepMustBeInDag",
	NoMatchingStepsAmongDependencies:       "NoMatchingStepsAmongDependencies",
	MultipleMatchingStepsAmongDependencies: "MultipleMatchingStepsAmongDependencies",
	MissingVariable:                        "MissingVariable",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the structured error returned by step resolution. Only the fields
// relevant to Kind are set.
type Error struct {
	Kind ErrorKind

	// Path is the offending file or directory.
	Path string
	// Step is the identifier of the step doing the resolving.
	Step string
	// Name is the offending identifier, channel, or variable.
	Name string
	// Pattern is the dependency search pattern, rendered as a regexp.
	Pattern string
	// Candidates are the dependencies that matched Pattern.
	Candidates []string
}

func (e *Error) Error() string {
	switch e.Kind {
	case CurrentFileMustBeAStep:
		return fmt.Sprintf("%s: file %q must live at <step_dir>/<step_type>/<channel>/<namespace>/<version>/<short_name>", e.Kind, e.Path)
	case WrongStepName:
		return fmt.Sprintf("%s: %q is not a valid step name", e.Kind, e.Name)
	case UnknownChannel:
		return fmt.Sprintf("%s: channel %q is not one of %v", e.Kind, e.Name, Channels)
	case CurrentStepMustBeInDag:
		return fmt.Sprintf("%s: step %q (from %s) is not in the dag", e.Kind, e.Step, e.Path)
	case NoMatchingStepsAmongDependencies:
		return fmt.Sprintf("%s: no dependency of %s matches %s", e.Kind, e.Step, e.Pattern)
	case MultipleMatchingStepsAmongDependencies:
		return fmt.Sprintf("%s: %d dependencies of %s match %s: %s; add namespace, version or channel to disambiguate",
			e.Kind, len(e.Candidates), e.Step, e.Pattern, strings.Join(e.Candidates, ", "))
	case MissingVariable:
		return fmt.Sprintf("%s: %s describes variable %q which no table has", e.Kind, e.Path, e.Name)
	}
	return e.Kind.String()
}

// IsKind reports whether err, or any error it wraps, is an *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
