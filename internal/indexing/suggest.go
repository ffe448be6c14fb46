package indexing

import (
	"cmp"
	"slices"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/types"
)

// DefaultSuggestThreshold is the minimum Jaro-Winkler similarity for a suggestion
const DefaultSuggestThreshold = 0.75

// Suggestion is a subject whose name resembles a query that matched nothing
type Suggestion struct {
	Subject types.Subject
	Score   float64
}

// ResolveSubjects maps a query string to subjects. A full identity
// (kind:unit#Name) names one subject; anything else matches every subject
// with facts whose name is exactly ref.
func ResolveSubjects(idx *core.RelationshipIndex, ref string) []types.Subject {
	ref = strings.TrimSpace(ref)
	if s, ok := types.ParseSubjectID(ref); ok {
		return []types.Subject{s}
	}
	var out []types.Subject
	for _, s := range idx.Subjects() {
		if s.Name == ref {
			out = append(out, s)
		}
	}
	return out
}

// Suggest ranks subjects with facts by similarity of their name to name.
// Member names ("Type.Method") also match on the member part alone.
func Suggest(idx *core.RelationshipIndex, name string, limit int) []Suggestion {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" || limit == 0 {
		return nil
	}

	var out []Suggestion
	for _, s := range idx.Subjects() {
		if s.Kind == types.SubjectUniverse || s.Kind == types.SubjectUnit || s.Name == "" {
			continue
		}
		score := similarity(query, strings.ToLower(s.Name))
		if i := strings.LastIndexByte(s.Name, '.'); i >= 0 {
			score = max(score, similarity(query, strings.ToLower(s.Name[i+1:])))
		}
		if score >= DefaultSuggestThreshold {
			out = append(out, Suggestion{Subject: s, Score: score})
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Subject.ID(), b.Subject.ID())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}
