package etl

import (
	"regexp"
	"strings"
)

var (
	namespaceRe = regexp.MustCompile(`^\w+$`)
	versionRe   = regexp.MustCompile(`^(?:\d{4}-\d{2}-\d{2}|\d{4}|latest)$`)
)

const (
	namespaceExpr = `\w+`
	versionExpr   = `(?:\d{4}-\d{2}-\d{2}|\d{4}|latest)`
)

// Pattern is a partially specified step coordinate used to search a step's
// declared dependencies. Empty fields are wildcards.
type Pattern struct {
	// Type is the step type non-snapshot candidates must have. Empty means
	// TypeData.
	Type string
	// AnyType accepts data and export candidates alike.
	AnyType bool
	// Channels restricts the candidate channel. Empty means the upstream
	// channels: snapshot, meadow, garden and examples.
	Channels []Channel
	// Namespace, when empty, matches any \w+ namespace.
	Namespace string
	// Version, when empty, matches any date, year or "latest" version.
	Version   string
	ShortName string
	// Ext, when empty, matches snapshots with or without an extension.
	Ext string
	// Private, when nil, matches public and private steps alike.
	Private *bool
}

func (p Pattern) channels() []Channel {
	if len(p.Channels) == 0 {
		return upstreamChannels
	}
	return p.Channels
}

// asks reports whether c was named explicitly in Channels.
func (p Pattern) asks(c Channel) bool {
	for _, ch := range p.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

func (p Pattern) stepType() string {
	if p.Type == "" {
		return TypeData
	}
	return p.Type
}

// Validate returns an UnknownChannel error if the pattern names a channel
// outside the enumeration.
func (p Pattern) Validate() error {
	for _, c := range p.Channels {
		if !c.Valid() {
			return &Error{Kind: UnknownChannel, Name: string(c)}
		}
	}
	return nil
}

// Matches reports whether the candidate step satisfies every specified field
// of the pattern.
func (p Pattern) Matches(c Step) bool {
	found := false
	for _, ch := range p.channels() {
		if ch == c.Channel {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if c.Channel != ChannelSnapshot && !p.AnyType && c.Type != p.stepType() {
		return false
	}
	if p.Private != nil && *p.Private != c.Private {
		return false
	}
	if p.Namespace != "" {
		if c.Namespace != p.Namespace {
			return false
		}
	} else if !namespaceRe.MatchString(c.Namespace) {
		return false
	}
	if p.Version != "" {
		if c.Version != p.Version {
			return false
		}
	} else if !versionRe.MatchString(c.Version) {
		return false
	}
	if p.ShortName != "" && c.ShortName != p.ShortName {
		return false
	}
	if p.Ext != "" && c.Ext != p.Ext {
		return false
	}
	return true
}

// MatchesName parses id and matches it. Identifiers that do not parse, such
// as etag:// URLs, never match.
func (p Pattern) MatchesName(id string) bool {
	s, err := ParseStep(id)
	if err != nil {
		return false
	}
	return p.Matches(s)
}

// String renders the pattern as the equivalent anchored regular expression.
func (p Pattern) String() string {
	ns := namespaceExpr
	if p.Namespace != "" {
		ns = regexp.QuoteMeta(p.Namespace)
	}
	ver := versionExpr
	if p.Version != "" {
		ver = regexp.QuoteMeta(p.Version)
	}
	short := `\w+`
	if p.ShortName != "" {
		short = regexp.QuoteMeta(p.ShortName)
	}
	priv := `(?:` + privateSuffix + `)?`
	if p.Private != nil {
		priv = ""
		if *p.Private {
			priv = privateSuffix
		}
	}
	typ := regexp.QuoteMeta(p.stepType())
	if p.AnyType {
		typ = `(?:` + TypeData + `|` + TypeExport + `)`
	}

	alts := make([]string, 0, len(p.channels()))
	for _, ch := range p.channels() {
		if ch == ChannelSnapshot {
			ext := `(?:\.[\w.]+)?`
			if p.Ext != "" {
				ext = `\.` + regexp.QuoteMeta(p.Ext)
			}
			alts = append(alts, TypeSnapshot+priv+schemeSep+ns+"/"+ver+"/"+short+ext)
			continue
		}
		alts = append(alts, typ+priv+schemeSep+regexp.QuoteMeta(string(ch))+"/"+ns+"/"+ver+"/"+short)
	}
	return "^(?:" + strings.Join(alts, "|") + ")$"
}

// Regexp compiles String.
func (p Pattern) Regexp() *regexp.Regexp {
	return regexp.MustCompile(p.String())
}
