package parser

import "strconv"

// Segment is one element of a JSON path: either an object key or an array
// index. The root of a document is the empty path (no segments).
type Segment interface {
	segment()
}

// Key is an object-key path segment.
type Key string

func (Key) segment() {}

// Index is an array-index path segment.
type Index int

func (Index) segment() {}

// Path is a stack of segments from the document root down to a value.
// Serializes to a dotted+bracket keypath string, e.g. ".user.emails[1]".
// The root path serializes to the empty string.
type Path struct {
	segments []Segment
}

// Push appends a segment, returning the extended path. The result gets a
// fresh backing slice, so the receiver is left unchanged and paths pushed
// from the same parent (e.g. sibling array elements) never alias.
func (p Path) Push(seg Segment) Path {
	next := make([]Segment, len(p.segments), len(p.segments)+1)
	copy(next, p.segments)
	return Path{segments: append(next, seg)}
}

// String renders the keypath in dotted+bracket notation.
func (p Path) String() string {
	if len(p.segments) == 0 {
		return ""
	}
	var b []byte
	for _, seg := range p.segments {
		switch s := seg.(type) {
		case Key:
			b = append(b, '.')
			b = append(b, string(s)...)
		case Index:
			b = append(b, '[')
			b = strconv.AppendInt(b, int64(s), 10)
			b = append(b, ']')
		}
	}
	return string(b)
}

// Len returns the depth of the path.
func (p Path) Len() int {
	return len(p.segments)
}
