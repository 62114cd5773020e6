package etl

import (
	"strings"
)

// Step types, i.e. the scheme family of a canonical identifier.
const (
	TypeSnapshot = "snapshot"
	TypeData     = "data"
	TypeExport   = "export"
)

const (
	schemeSep     = "://"
	privateSuffix = "-private"
)

// Step is the full coordinate of one processing step. The zero value is not
// a valid step.
type Step struct {
	// Type is TypeSnapshot, TypeData or TypeExport.
	Type      string
	Channel   Channel
	Namespace string
	// Version is a date (YYYY-MM-DD), a bare year, or "latest".
	Version   string
	ShortName string
	// Ext is the file extension of a snapshot, without the dot. Always empty
	// for data and export steps.
	Ext     string
	Private bool
}

// Scheme returns the scheme token of the step, private suffix included.
func (s Step) Scheme() string {
	t := s.Type
	switch {
	case s.Channel == ChannelSnapshot:
		t = TypeSnapshot
	case t == "":
		t = TypeData
	}
	if s.Private {
		return t + privateSuffix
	}
	return t
}

// String returns the canonical identifier of the step.
func (s Step) String() string {
	var sb strings.Builder
	sb.WriteString(s.Scheme())
	sb.WriteString(schemeSep)
	if s.Channel != ChannelSnapshot {
		sb.WriteString(string(s.Channel))
		sb.WriteByte('/')
	}
	sb.WriteString(s.Namespace)
	sb.WriteByte('/')
	sb.WriteString(s.Version)
	sb.WriteByte('/')
	sb.WriteString(s.ShortName)
	if s.Ext != "" {
		sb.WriteByte('.')
		sb.WriteString(s.Ext)
	}
	return sb.String()
}

// FileName is the short name plus extension, if any.
func (s Step) FileName() string {
	if s.Ext == "" {
		return s.ShortName
	}
	return s.ShortName + "." + s.Ext
}

// Validate checks that every field of a full coordinate is set and that
// Channel and Type agree.
func (s Step) Validate() error {
	if !s.Channel.Valid() {
		return &Error{Kind: UnknownChannel, Name: string(s.Channel)}
	}
	if s.Namespace == "" || s.Version == "" || s.ShortName == "" {
		return &Error{Kind: WrongStepName, Name: s.String()}
	}
	switch {
	case s.Channel == ChannelSnapshot && s.Type != TypeSnapshot && s.Type != "":
		return &Error{Kind: WrongStepName, Name: s.String()}
	case s.Channel != ChannelSnapshot && s.Type != "" && s.Type != TypeData && s.Type != TypeExport:
		return &Error{Kind: WrongStepName, Name: s.String()}
	case s.Channel != ChannelSnapshot && s.Ext != "":
		return &Error{Kind: WrongStepName, Name: s.String()}
	}
	return nil
}

// ParseStep parses a canonical identifier back into its coordinate. It is
// the inverse of Step.String.
func ParseStep(id string) (Step, error) {
	wrong := &Error{Kind: WrongStepName, Name: id}
	parts := strings.SplitN(id, schemeSep, 2)
	if len(parts) != 2 {
		return Step{}, wrong
	}
	scheme, path := parts[0], parts[1]

	s := Step{}
	if strings.HasSuffix(scheme, privateSuffix) {
		s.Private = true
		scheme = strings.TrimSuffix(scheme, privateSuffix)
	}

	segs := strings.Split(path, "/")
	switch {
	case strings.HasPrefix(scheme, TypeSnapshot):
		if scheme != TypeSnapshot || len(segs) != 3 {
			return Step{}, wrong
		}
		s.Type = TypeSnapshot
		s.Channel = ChannelSnapshot
		s.Namespace, s.Version = segs[0], segs[1]
		s.ShortName, s.Ext = splitExt(segs[2])
	case strings.HasPrefix(scheme, TypeData), strings.HasPrefix(scheme, TypeExport):
		if (scheme != TypeData && scheme != TypeExport) || len(segs) != 4 {
			return Step{}, wrong
		}
		s.Type = scheme
		c, err := ParseChannel(segs[0])
		if err != nil {
			return Step{}, err
		}
		if c == ChannelSnapshot {
			return Step{}, wrong
		}
		s.Channel = c
		s.Namespace, s.Version, s.ShortName = segs[1], segs[2], segs[3]
	default:
		return Step{}, wrong
	}
	if s.Namespace == "" || s.Version == "" || s.ShortName == "" {
		return Step{}, wrong
	}
	return s, nil
}

// splitExt splits a snapshot file name at its first dot.
func splitExt(name string) (short, ext string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}
