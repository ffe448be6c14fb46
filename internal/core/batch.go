package core

import "github.com/standardbeagle/relidx/internal/types"

// AttributeValue is one attribute assignment carried by a Batch
type AttributeValue struct {
	Subject   types.Subject
	Attribute types.Attribute
	Value     string
}

// Batch is everything a contributor observed in one unit
type Batch struct {
	Unit          types.UnitID
	Contributions []Contribution
	Attributes    []AttributeValue
}

// Len returns the number of facts in the batch
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Contributions)
}

// Add appends one fact to the batch. Incomplete facts are dropped.
func (b *Batch) Add(subject types.Subject, kind types.Kind, loc types.Location) {
	if subject.IsZero() || kind == "" {
		return
	}
	b.Contributions = append(b.Contributions, Contribution{Subject: subject, Kind: kind, Location: loc})
}

// SetAttribute appends an attribute assignment to the batch
func (b *Batch) SetAttribute(subject types.Subject, attr types.Attribute, value string) {
	if subject.IsZero() || attr == "" {
		return
	}
	b.Attributes = append(b.Attributes, AttributeValue{Subject: subject, Attribute: attr, Value: value})
}

// ApplyBatch replaces the unit's contributions with the batch and stores its
// attributes, all in one critical section. Applying the same batch twice
// leaves query results unchanged.
func (idx *RelationshipIndex) ApplyBatch(b *Batch) {
	if b == nil || b.Unit == "" {
		return
	}
	for i := range b.Contributions {
		b.Contributions[i].Kind = types.KindFor(string(b.Contributions[i].Kind))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.retractContributions(b.Unit)
	for i := range b.Contributions {
		c := &b.Contributions[i]
		if c.Subject.IsZero() || c.Kind == "" {
			continue
		}
		idx.record(b.Unit, c.Subject, c.Kind, &c.Location)
	}
	for _, a := range b.Attributes {
		idx.setAttribute(a.Subject, a.Attribute, a.Value)
	}
}
