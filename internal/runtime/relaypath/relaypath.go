// Package relaypath implements the colon-delimited channel identifiers used to
// name relay endpoints and to address reply channels on the bus.
package relaypath

import (
	"strings"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
)

// Separator joins path segments in the canonical form.
const Separator = ":"

// Path is an ordered, non-empty list of segments. Every comparison is made
// on the canonical form, which upper-cases each segment.
type Path struct {
	segments []string
}

// Parse splits a colon-delimited string into a Path.
func Parse(path string) (Path, error) {
	if path == "" {
		return Path{}, errspkg.ErrEmptyPath
	}
	return New(strings.Split(path, Separator))
}

// ParseAny accepts loosely typed input, such as a decoded JSON field, and
// rejects anything that is not a string.
func ParseAny(v any) (Path, error) {
	s, ok := v.(string)
	if !ok {
		return Path{}, errspkg.ErrPathNotString
	}
	return Parse(s)
}

// New builds a Path from explicit segments.
func New(segments []string) (Path, error) {
	if len(segments) == 0 {
		return Path{}, errspkg.ErrEmptyPath
	}
	cloned := make([]string, len(segments))
	copy(cloned, segments)
	return Path{segments: cloned}, nil
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// IsZero reports whether p was never constructed.
func (p Path) IsZero() bool { return len(p.segments) == 0 }

// Segment returns the segment at index i, or "" when out of range.
func (p Path) Segment(i int) string {
	if i < 0 || i >= len(p.segments) {
		return ""
	}
	return p.segments[i]
}

// Segments returns a copy of the segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// SegmentEquals reports whether segment i equals value. Out-of-range indexes
// yield false.
func (p Path) SegmentEquals(i int, value string) bool {
	if i < 0 || i >= len(p.segments) {
		return false
	}
	return canonical(p.segments[i]) == canonical(value)
}

// String returns the canonical upper-cased form, which is also the bus
// channel name.
func (p Path) String() string {
	return canonical(strings.Join(p.segments, Separator))
}

func canonical(s string) string {
	return strings.ToUpper(s)
}

// Equal compares against another Path segment by segment.
func (p Path) Equal(other Path) bool {
	return p.EqualSegments(other.segments)
}

// EqualString compares the canonical forms of p and s.
func (p Path) EqualString(s string) bool {
	return p.String() == canonical(s)
}

// EqualSegments compares against a plain segment list positionally.
func (p Path) EqualSegments(segments []string) bool {
	if len(p.segments) != len(segments) {
		return false
	}
	for i, seg := range segments {
		if canonical(p.segments[i]) != canonical(seg) {
			return false
		}
	}
	return true
}

// Matches accepts a Path, a string, or a []string and dispatches to the
// matching comparison. Any other type never matches.
func (p Path) Matches(other any) bool {
	switch o := other.(type) {
	case Path:
		return p.Equal(o)
	case *Path:
		return o != nil && p.Equal(*o)
	case string:
		return p.EqualString(o)
	case []string:
		return p.EqualSegments(o)
	default:
		return false
	}
}
