package core

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/standardbeagle/relidx/internal/types"
)

// Contribution is one fact as produced by a contributor, before the
// contributing unit is attached
type Contribution struct {
	Subject  types.Subject
	Kind     types.Kind
	Location types.Location
}

// Entry is a recorded location together with the unit that contributed it
type Entry struct {
	Unit     types.UnitID
	Location types.Location
}

// RelationshipSet holds every entry for one (subject, kind) key in insertion order
type RelationshipSet struct {
	Subject types.Subject
	Kind    types.Kind
	Entries []Entry
}

// AttributeSet holds the attributes of one subject
type AttributeSet struct {
	Subject    types.Subject
	Attributes map[types.Attribute]string
}

// Snapshot is a consistent copy of the index contents, ordered by subject
// identity then kind
type Snapshot struct {
	Relationships []RelationshipSet
	Attributes    []AttributeSet
}

// Snapshot copies the index under a single read lock
func (idx *RelationshipIndex) Snapshot() *Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := &Snapshot{
		Relationships: make([]RelationshipSet, 0, len(idx.relationships)),
		Attributes:    make([]AttributeSet, 0, len(idx.attributes)),
	}

	for subject, kinds := range idx.relationships {
		for kind, list := range kinds {
			handles := slices.Clone(list.handles)
			slices.SortFunc(handles, func(a, b factHandle) int {
				return cmp.Compare(idx.facts[a].seq, idx.facts[b].seq)
			})
			entries := make([]Entry, len(handles))
			for i, h := range handles {
				f := &idx.facts[h]
				entries[i] = Entry{Unit: f.unit, Location: f.loc}
			}
			snap.Relationships = append(snap.Relationships, RelationshipSet{Subject: subject, Kind: kind, Entries: entries})
		}
	}
	slices.SortFunc(snap.Relationships, func(a, b RelationshipSet) int {
		if c := cmp.Compare(a.Subject.ID(), b.Subject.ID()); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})

	for subject, attrs := range idx.attributes {
		copied := make(map[types.Attribute]string, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
		snap.Attributes = append(snap.Attributes, AttributeSet{Subject: subject, Attributes: copied})
	}
	slices.SortFunc(snap.Attributes, func(a, b AttributeSet) int {
		return cmp.Compare(a.Subject.ID(), b.Subject.ID())
	})

	return snap
}

// Subjects returns every subject that currently has at least one fact, sorted by identity
func (idx *RelationshipIndex) Subjects() []types.Subject {
	idx.mu.RLock()
	subjects := make([]types.Subject, 0, len(idx.relationships))
	for s := range idx.relationships {
		subjects = append(subjects, s)
	}
	idx.mu.RUnlock()

	slices.SortFunc(subjects, func(a, b types.Subject) int { return cmp.Compare(a.ID(), b.ID()) })
	return subjects
}

// KindsOf returns the relationship kinds recorded for subject, sorted
func (idx *RelationshipIndex) KindsOf(subject types.Subject) []types.Kind {
	idx.mu.RLock()
	kinds := make([]types.Kind, 0, len(idx.relationships[subject]))
	for k := range idx.relationships[subject] {
		kinds = append(kinds, k)
	}
	idx.mu.RUnlock()

	slices.Sort(kinds)
	return kinds
}

// Attributes returns a copy of every attribute stored for subject
func (idx *RelationshipIndex) Attributes(subject types.Subject) map[types.Attribute]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[types.Attribute]string, len(idx.attributes[subject]))
	for k, v := range idx.attributes[subject] {
		out[k] = v
	}
	return out
}

// Units returns every unit with live contributions, sorted
func (idx *RelationshipIndex) Units() []types.UnitID {
	idx.mu.RLock()
	units := make([]types.UnitID, 0, len(idx.contributions))
	for u := range idx.contributions {
		units = append(units, u)
	}
	idx.mu.RUnlock()

	slices.Sort(units)
	return units
}

// ContributionCount returns the number of live facts contributed by unit
func (idx *RelationshipIndex) ContributionCount(unit types.UnitID) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.contributions[unit].len()
}

// Dump writes a human readable listing of the index
func (idx *RelationshipIndex) Dump(w io.Writer) error {
	snap := idx.Snapshot()

	p := &errWriter{w: w}
	p.printf("Attribute Map\n\n")
	if len(snap.Attributes) == 0 {
		p.printf("  -- empty --\n")
	}
	for _, set := range snap.Attributes {
		p.printf("  %s\n", set.Subject)
		attrs := make([]types.Attribute, 0, len(set.Attributes))
		for a := range set.Attributes {
			attrs = append(attrs, a)
		}
		slices.Sort(attrs)
		for _, a := range attrs {
			p.printf("    %s = %q\n", a, set.Attributes[a])
		}
	}

	p.printf("\nRelationship Map\n\n")
	if len(snap.Relationships) == 0 {
		p.printf("  -- empty --\n")
	}
	var last types.Subject
	for i, set := range snap.Relationships {
		if i == 0 || set.Subject != last {
			p.printf("  %s\n", set.Subject)
			last = set.Subject
		}
		p.printf("    %s\n", set.Kind)
		for _, e := range set.Entries {
			p.printf("      %s [%s]\n", e.Location, e.Unit)
		}
	}
	return p.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (p *errWriter) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
