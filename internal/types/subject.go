package types

import (
	"fmt"
	"strconv"
	"strings"
)

// UnitID identifies a source unit: the file that contributed a fact or declared a subject.
// Units are slash-separated paths relative to the project root, or URIs for external sources.
type UnitID string

// SubjectKind classifies the declared entity a Subject stands for
type SubjectKind uint8

const (
	SubjectUnknown SubjectKind = iota
	SubjectUniverse
	SubjectName
	SubjectUnit
	SubjectType
	SubjectFunction
	SubjectMethod
	SubjectVariable
	SubjectConstant
	SubjectField
)

var subjectKindNames = [...]string{
	SubjectUnknown:  "unknown",
	SubjectUniverse: "universe",
	SubjectName:     "name",
	SubjectUnit:     "unit",
	SubjectType:     "type",
	SubjectFunction: "function",
	SubjectMethod:   "method",
	SubjectVariable: "variable",
	SubjectConstant: "constant",
	SubjectField:    "field",
}

func (k SubjectKind) String() string {
	if int(k) < len(subjectKindNames) {
		return subjectKindNames[k]
	}
	return fmt.Sprintf("SubjectKind(%d)", uint8(k))
}

// ParseSubjectKind is the inverse of SubjectKind.String, including the
// numeric form used for kinds without a name
func ParseSubjectKind(s string) (SubjectKind, bool) {
	for i, name := range subjectKindNames {
		if name == s {
			return SubjectKind(i), true
		}
	}
	if digits, ok := strings.CutPrefix(s, "SubjectKind("); ok {
		if digits, ok = strings.CutSuffix(digits, ")"); ok {
			n, err := strconv.ParseUint(digits, 10, 8)
			if err == nil && int(n) >= len(subjectKindNames) && strconv.FormatUint(n, 10) == digits {
				return SubjectKind(n), true
			}
		}
	}
	return SubjectUnknown, false
}

// Subject is the identity of a declared program entity. It is a value type:
// two subjects are the same map key iff all fields are equal. Unit is the
// declaring unit and is empty for the synthetic universe and name subjects.
type Subject struct {
	Kind SubjectKind
	Unit UnitID
	Name string
}

// Universe is the root scope. Top-level definitions are recorded against it.
var Universe = Subject{Kind: SubjectUniverse}

// NameSubject returns the wildcard subject for references that could only be
// resolved by name.
func NameSubject(name string) Subject {
	return Subject{Kind: SubjectName, Name: name}
}

// UnitSubject returns the subject standing for a whole unit. Contributors use
// it as the containing subject of locations outside any declaration.
func UnitSubject(unit UnitID) Subject {
	return Subject{Kind: SubjectUnit, Unit: unit, Name: string(unit)}
}

// IsZero reports whether the subject is unset
func (s Subject) IsZero() bool {
	return s == Subject{}
}

// ID renders the stable string identity used by the on-disk format:
// "<kind>:<unit>#<name>". A '#' or backslash inside the unit or name is escaped
// with a backslash, so distinct subjects never share an identity.
func (s Subject) ID() string {
	var b strings.Builder
	b.Grow(len(s.Unit) + len(s.Name) + 12)
	b.WriteString(s.Kind.String())
	b.WriteByte(':')
	writeEscaped(&b, string(s.Unit))
	b.WriteByte('#')
	writeEscaped(&b, s.Name)
	return b.String()
}

func writeEscaped(b *strings.Builder, part string) {
	for i := 0; i < len(part); i++ {
		if c := part[i]; c == '#' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(part[i])
	}
}

// readEscaped unescapes part up to the first unescaped stop byte (0 for
// none) and returns the rest after it
func readEscaped(part string, stop byte) (value, rest string, found, ok bool) {
	var b strings.Builder
	for i := 0; i < len(part); i++ {
		c := part[i]
		switch {
		case c == '\\':
			i++
			if i == len(part) || (part[i] != '#' && part[i] != '\\') {
				return "", "", false, false
			}
			b.WriteByte(part[i])
		case c == '#' && stop == '#':
			return b.String(), part[i+1:], true, true
		case c == '#':
			return "", "", false, false
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), "", false, true
}

func (s Subject) String() string {
	switch s.Kind {
	case SubjectUniverse:
		return "<universe>"
	case SubjectName:
		return "name:" + s.Name
	}
	if s.Unit == "" {
		return s.Kind.String() + " " + s.Name
	}
	return s.Kind.String() + " " + s.Name + " (" + string(s.Unit) + ")"
}

// ParseSubjectID resolves an identity produced by Subject.ID. It is the
// identity resolver for persisted indexes.
func ParseSubjectID(id string) (Subject, bool) {
	colon := strings.IndexByte(id, ':')
	if colon <= 0 {
		return Subject{}, false
	}
	kind, ok := ParseSubjectKind(id[:colon])
	if !ok {
		return Subject{}, false
	}
	unit, rest, found, ok := readEscaped(id[colon+1:], '#')
	if !ok || !found {
		return Subject{}, false
	}
	name, _, _, ok := readEscaped(rest, 0)
	if !ok {
		return Subject{}, false
	}
	s := Subject{Kind: kind, Unit: UnitID(unit), Name: name}
	if s.IsZero() || (kind == SubjectUniverse && (s.Unit != "" || s.Name != "")) {
		return Subject{}, false
	}
	return s, true
}
