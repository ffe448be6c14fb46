package core

import "fmt"

// IndexStats summarizes the size of a RelationshipIndex
type IndexStats struct {
	// Relationships is the number of live facts
	Relationships int
	// Keys is the number of subjects with at least one fact
	Keys int
	// Units is the number of units with live contributions
	Units int
	// Subjects is the number of subjects tracked as declared by some unit
	Subjects int
	// Attributes is the number of stored attribute values
	Attributes int
}

// Stats computes index statistics. Subjects and Attributes are proportional
// to the number of declared subjects; the rest are O(1).
func (idx *RelationshipIndex) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := IndexStats{
		Relationships: idx.live,
		Keys:          len(idx.relationships),
		Units:         len(idx.contributions),
	}
	for _, set := range idx.declared {
		stats.Subjects += len(set)
	}
	for _, attrs := range idx.attributes {
		stats.Attributes += len(attrs)
	}
	return stats
}

// Statistics renders a one-line summary
func (idx *RelationshipIndex) Statistics() string {
	return idx.Stats().String()
}

func (s IndexStats) String() string {
	return fmt.Sprintf("%d relationships in %d keys in %d units", s.Relationships, s.Keys, s.Units)
}
