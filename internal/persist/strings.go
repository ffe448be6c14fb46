package persist

import (
	"cmp"
	"slices"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/types"
)

// stringPool assigns each distinct string a 1-based reference in first-seen order
type stringPool struct {
	strings []string
	refs    map[string]uint64
}

func newStringPool() *stringPool {
	return &stringPool{refs: make(map[string]uint64, 256)}
}

func (p *stringPool) intern(s string) {
	if _, ok := p.refs[s]; ok {
		return
	}
	p.strings = append(p.strings, s)
	p.refs[s] = uint64(len(p.strings))
}

func (p *stringPool) ref(s string) uint64 {
	return p.refs[s]
}

func sortedAttributes(attrs map[types.Attribute]string) []types.Attribute {
	keys := make([]types.Attribute, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// groupBySubject splits snapshot sets, already ordered by subject, into
// one run per subject
func groupBySubject(sets []core.RelationshipSet) [][]core.RelationshipSet {
	var groups [][]core.RelationshipSet
	start := 0
	for i := 1; i <= len(sets); i++ {
		if i == len(sets) || cmp.Compare(sets[i].Subject.ID(), sets[start].Subject.ID()) != 0 {
			groups = append(groups, sets[start:i])
			start = i
		}
	}
	return groups
}
