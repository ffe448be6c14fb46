package types

import "fmt"

// Location is a span of source text. Subject is the innermost declaration
// containing the span; it is zero only when nothing better is known.
type Location struct {
	Subject Subject
	Offset  int
	Length  int
}

// NewLocation builds a location, clamping negative offsets and lengths to zero
func NewLocation(subject Subject, offset, length int) *Location {
	if offset < 0 {
		offset = 0
	}
	if length < 0 {
		length = 0
	}
	return &Location{Subject: subject, Offset: offset, Length: length}
}

// End returns the offset just past the span
func (l Location) End() int {
	return l.Offset + l.Length
}

func (l Location) String() string {
	return fmt.Sprintf("%s@%d+%d", l.Subject, l.Offset, l.Length)
}
