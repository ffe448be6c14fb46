package core

import (
	"cmp"
	"slices"
	"sync"

	"github.com/standardbeagle/relidx/internal/debug"
	"github.com/standardbeagle/relidx/internal/types"
)

// fact is one recorded (subject, kind, location, unit) tuple. It is a member
// of exactly two owner lists: its (subject, kind) list and its unit list.
type fact struct {
	subject types.Subject
	kind    types.Kind
	loc     types.Location
	unit    types.UnitID
	seq     uint64
	keyPos  int32
	unitPos int32
}

// RelationshipIndex maps subjects to the locations at which each kind of
// relationship to them occurs. Facts remember the unit that contributed them
// so a unit can be re-analyzed or removed without rebuilding the index.
//
// All methods are safe for concurrent use. Writers are expected to be
// serialized by an indexing.Processor; readers may run from any goroutine.
type RelationshipIndex struct {
	mu sync.RWMutex

	facts []fact
	free  []factHandle
	seq   uint64
	live  int

	relationships map[types.Subject]map[types.Kind]*slotList
	contributions map[types.UnitID]*slotList
	declared      map[types.UnitID]map[types.Subject]struct{}
	attributes    map[types.Subject]map[types.Attribute]string
}

// NewRelationshipIndex creates an empty index
func NewRelationshipIndex() *RelationshipIndex {
	idx := &RelationshipIndex{}
	idx.reset()
	return idx
}

func (idx *RelationshipIndex) reset() {
	idx.facts = make([]fact, 0, 1024)
	idx.free = nil
	idx.live = 0
	idx.relationships = make(map[types.Subject]map[types.Kind]*slotList, 1024)
	idx.contributions = make(map[types.UnitID]*slotList, 256)
	idx.declared = make(map[types.UnitID]map[types.Subject]struct{}, 256)
	idx.attributes = make(map[types.Subject]map[types.Attribute]string, 1024)
}

// Record adds a fact: location has relationship kind to subject, as observed
// while analyzing unit. Calls with an empty unit, an unset subject or kind, or
// a nil location are ignored. Duplicate facts are kept.
func (idx *RelationshipIndex) Record(unit types.UnitID, subject types.Subject, kind types.Kind, loc *types.Location) {
	if unit == "" || subject.IsZero() || kind == "" || loc == nil {
		return
	}
	kind = types.KindFor(string(kind))

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.record(unit, subject, kind, loc)
}

func (idx *RelationshipIndex) record(unit types.UnitID, subject types.Subject, kind types.Kind, loc *types.Location) {
	idx.declare(subject)
	idx.declare(loc.Subject)

	h := idx.alloc()
	idx.seq++
	idx.facts[h] = fact{
		subject: subject,
		kind:    kind,
		loc:     *loc,
		unit:    unit,
		seq:     idx.seq,
		keyPos:  noPosition,
		unitPos: noPosition,
	}

	kinds, ok := idx.relationships[subject]
	if !ok {
		kinds = make(map[types.Kind]*slotList, 2)
		idx.relationships[subject] = kinds
	}
	keyList, ok := kinds[kind]
	if !ok {
		keyList = &slotList{}
		kinds[kind] = keyList
	}
	idx.push(keyList, ownerKey, h)

	unitList, ok := idx.contributions[unit]
	if !ok {
		unitList = &slotList{}
		idx.contributions[unit] = unitList
	}
	idx.push(unitList, ownerUnit, h)
	idx.live++
}

// RecordAttribute stores a piece of metadata for subject. The last value wins.
func (idx *RelationshipIndex) RecordAttribute(subject types.Subject, attr types.Attribute, value string) {
	if subject.IsZero() || attr == "" {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.setAttribute(subject, attr, value)
}

func (idx *RelationshipIndex) setAttribute(subject types.Subject, attr types.Attribute, value string) {
	idx.declare(subject)
	attrs, ok := idx.attributes[subject]
	if !ok {
		attrs = make(map[types.Attribute]string, 2)
		idx.attributes[subject] = attrs
	}
	attrs[attr] = value
}

// Relationships returns the locations of every fact matching subject and
// kind, in insertion order. The result is a snapshot and never nil.
func (idx *RelationshipIndex) Relationships(subject types.Subject, kind types.Kind) []types.Location {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	list := idx.relationships[subject][kind]
	if list.len() == 0 {
		return []types.Location{}
	}

	handles := slices.Clone(list.handles)
	slices.SortFunc(handles, func(a, b factHandle) int {
		return cmp.Compare(idx.facts[a].seq, idx.facts[b].seq)
	})

	locations := make([]types.Location, len(handles))
	for i, h := range handles {
		locations[i] = idx.facts[h].loc
	}
	return locations
}

// Attribute returns the value stored for subject and attr
func (idx *RelationshipIndex) Attribute(subject types.Subject, attr types.Attribute) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.attributes[subject][attr]
	return v, ok
}

// RetractContributionsOf removes every fact contributed by unit, in time
// proportional to the number of those facts. Unknown units are a no-op.
func (idx *RelationshipIndex) RetractContributionsOf(unit types.UnitID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.retractContributions(unit)
}

func (idx *RelationshipIndex) retractContributions(unit types.UnitID) {
	list, ok := idx.contributions[unit]
	if !ok {
		return
	}
	delete(idx.contributions, unit)

	for _, h := range list.handles {
		f := &idx.facts[h]
		kinds := idx.relationships[f.subject]
		keyList := kinds[f.kind]
		idx.swapRemove(keyList, ownerKey, h)
		if keyList.len() == 0 {
			delete(kinds, f.kind)
			if len(kinds) == 0 {
				delete(idx.relationships, f.subject)
			}
		}
		idx.release(h)
	}
	removed := len(list.handles)
	idx.pruneDeclared(unit)

	debug.LogIndex("retracted %d facts contributed by %s\n", removed, unit)
}

// RetractSubjectsDeclaredIn drops every fact and attribute about a subject
// declared in unit, whichever unit contributed it. Each dropped fact also
// leaves its contributing unit's list.
func (idx *RelationshipIndex) RetractSubjectsDeclaredIn(unit types.UnitID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.retractDeclared(unit)
}

func (idx *RelationshipIndex) retractDeclared(unit types.UnitID) {
	subjects, ok := idx.declared[unit]
	if !ok {
		return
	}
	delete(idx.declared, unit)

	removed := 0
	for subject := range subjects {
		delete(idx.attributes, subject)
		kinds, ok := idx.relationships[subject]
		if !ok {
			continue
		}
		delete(idx.relationships, subject)
		for _, keyList := range kinds {
			for _, h := range keyList.handles {
				f := &idx.facts[h]
				unitList := idx.contributions[f.unit]
				idx.swapRemove(unitList, ownerUnit, h)
				if unitList.len() == 0 {
					delete(idx.contributions, f.unit)
				}
				idx.release(h)
				removed++
			}
		}
	}

	debug.LogIndex("retracted %d facts about %d subjects declared in %s\n", removed, len(subjects), unit)
}

// RemoveUnit forgets a deleted unit: its own contributions and everything
// recorded about the subjects it declared.
func (idx *RelationshipIndex) RemoveUnit(unit types.UnitID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.retractContributions(unit)
	idx.retractDeclared(unit)
}

// ReplaceContributions retracts unit's facts and records batch in one
// critical section, so readers never observe a half re-analyzed unit.
func (idx *RelationshipIndex) ReplaceContributions(unit types.UnitID, batch []Contribution) {
	if unit == "" {
		return
	}
	for i := range batch {
		batch[i].Kind = types.KindFor(string(batch[i].Kind))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.retractContributions(unit)
	for i := range batch {
		c := &batch[i]
		if c.Subject.IsZero() || c.Kind == "" {
			continue
		}
		idx.record(unit, c.Subject, c.Kind, &c.Location)
	}
}

// Clear drops every fact, attribute and auxiliary index
func (idx *RelationshipIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.reset()
}

// declare notes that subject was declared by its unit. Synthetic subjects
// (universe, name) have no unit and are never declared.
func (idx *RelationshipIndex) declare(subject types.Subject) {
	if subject.Unit == "" {
		return
	}
	set, ok := idx.declared[subject.Unit]
	if !ok {
		set = make(map[types.Subject]struct{}, 8)
		idx.declared[subject.Unit] = set
	}
	set[subject] = struct{}{}
}

// pruneDeclared drops subjects of unit that no longer carry any fact or attribute
func (idx *RelationshipIndex) pruneDeclared(unit types.UnitID) {
	set, ok := idx.declared[unit]
	if !ok {
		return
	}
	for subject := range set {
		if _, ok := idx.relationships[subject]; ok {
			continue
		}
		if _, ok := idx.attributes[subject]; ok {
			continue
		}
		delete(set, subject)
	}
	if len(set) == 0 {
		delete(idx.declared, unit)
	}
}

func (idx *RelationshipIndex) alloc() factHandle {
	if n := len(idx.free); n > 0 {
		h := idx.free[n-1]
		idx.free = idx.free[:n-1]
		return h
	}
	idx.facts = append(idx.facts, fact{})
	return factHandle(len(idx.facts) - 1)
}

func (idx *RelationshipIndex) release(h factHandle) {
	idx.facts[h] = fact{keyPos: noPosition, unitPos: noPosition}
	idx.free = append(idx.free, h)
	idx.live--
}
