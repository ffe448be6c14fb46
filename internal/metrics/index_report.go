package metrics

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/types"
)

// SubjectCount pairs a subject with the number of facts recorded about it
type SubjectCount struct {
	Subject types.Subject
	Facts   int
}

// IndexReport breaks an index down by relationship kind, subject kind and unit
type IndexReport struct {
	Stats          core.IndexStats
	FactsByKind    map[types.Kind]int
	SubjectsByKind map[string]int // subject kind name -> subjects with facts
	FactsByUnit    map[types.UnitID]int
	TopSubjects    []SubjectCount
	OrphanSubjects int // subjects with attributes but no facts
}

// NewIndexReport computes a report from one snapshot. top bounds TopSubjects.
func NewIndexReport(idx *core.RelationshipIndex, top int) *IndexReport {
	snap := idx.Snapshot()
	r := &IndexReport{
		Stats:          idx.Stats(),
		FactsByKind:    make(map[types.Kind]int),
		SubjectsByKind: make(map[string]int),
		FactsByUnit:    make(map[types.UnitID]int),
	}

	perSubject := make(map[types.Subject]int)
	for _, set := range snap.Relationships {
		if _, seen := perSubject[set.Subject]; !seen {
			r.SubjectsByKind[set.Subject.Kind.String()]++
		}
		perSubject[set.Subject] += len(set.Entries)
		r.FactsByKind[set.Kind] += len(set.Entries)
		for _, e := range set.Entries {
			r.FactsByUnit[e.Unit]++
		}
	}

	for _, set := range snap.Attributes {
		if _, ok := perSubject[set.Subject]; !ok {
			r.OrphanSubjects++
		}
	}

	for s, n := range perSubject {
		if s.Kind == types.SubjectUniverse {
			continue
		}
		r.TopSubjects = append(r.TopSubjects, SubjectCount{Subject: s, Facts: n})
	}
	slices.SortFunc(r.TopSubjects, func(a, b SubjectCount) int {
		if c := cmp.Compare(b.Facts, a.Facts); c != 0 {
			return c
		}
		return cmp.Compare(a.Subject.ID(), b.Subject.ID())
	})
	if top >= 0 && len(r.TopSubjects) > top {
		r.TopSubjects = r.TopSubjects[:top]
	}
	return r
}

// FormatAsJSON returns the report as a JSON-serializable map
func (r *IndexReport) FormatAsJSON() map[string]interface{} {
	kinds := make(map[string]int, len(r.FactsByKind))
	for k, n := range r.FactsByKind {
		kinds[string(k)] = n
	}
	top := make([]map[string]interface{}, 0, len(r.TopSubjects))
	for _, sc := range r.TopSubjects {
		top = append(top, map[string]interface{}{
			"subject": sc.Subject.ID(),
			"facts":   sc.Facts,
		})
	}

	return map[string]interface{}{
		"summary": map[string]interface{}{
			"relationships": r.Stats.Relationships,
			"keys":          r.Stats.Keys,
			"units":         r.Stats.Units,
			"subjects":      r.Stats.Subjects,
			"attributes":    r.Stats.Attributes,
			"orphans":       r.OrphanSubjects,
		},
		"facts_by_kind":    kinds,
		"subjects_by_kind": r.SubjectsByKind,
		"top_subjects":     top,
	}
}

// FormatAsText returns the report as human-readable text
func (r *IndexReport) FormatAsText() string {
	var sb strings.Builder

	sb.WriteString("SUMMARY\n")
	sb.WriteString("-----------------------------------------------------------------\n")
	sb.WriteString(fmt.Sprintf("  Relationships:      %d\n", r.Stats.Relationships))
	sb.WriteString(fmt.Sprintf("  Keys:               %d\n", r.Stats.Keys))
	sb.WriteString(fmt.Sprintf("  Units:              %d\n", r.Stats.Units))
	sb.WriteString(fmt.Sprintf("  Declared Subjects:  %d\n", r.Stats.Subjects))
	sb.WriteString(fmt.Sprintf("  Attributes:         %d\n", r.Stats.Attributes))
	sb.WriteString(fmt.Sprintf("  Orphan Subjects:    %d\n", r.OrphanSubjects))

	sb.WriteString("\nRELATIONSHIP KINDS\n")
	sb.WriteString("-----------------------------------------------------------------\n")
	kinds := make([]types.Kind, 0, len(r.FactsByKind))
	for k := range r.FactsByKind {
		kinds = append(kinds, k)
	}
	slices.SortFunc(kinds, func(a, b types.Kind) int {
		if c := cmp.Compare(r.FactsByKind[b], r.FactsByKind[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("  %-28s %8d\n", string(k)+":", r.FactsByKind[k]))
	}

	sb.WriteString("\nSUBJECT KINDS\n")
	sb.WriteString("-----------------------------------------------------------------\n")
	names := make([]string, 0, len(r.SubjectsByKind))
	for name := range r.SubjectsByKind {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("  %-28s %8d\n", name+":", r.SubjectsByKind[name]))
	}

	if len(r.TopSubjects) > 0 {
		sb.WriteString("\nMOST REFERENCED\n")
		sb.WriteString("-----------------------------------------------------------------\n")
		for _, sc := range r.TopSubjects {
			sb.WriteString(fmt.Sprintf("  %6d  %s\n", sc.Facts, sc.Subject))
		}
	}

	return sb.String()
}
