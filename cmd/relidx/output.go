package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/indexing"
	"github.com/standardbeagle/relidx/internal/types"
)

const maxSuggestions = 5

type locationResult struct {
	Unit      string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Container string `json:"container,omitempty" yaml:"container,omitempty"`
	Offset    int    `json:"offset" yaml:"offset"`
	Length    int    `json:"length" yaml:"length"`
}

type relationshipResult struct {
	Subject   string           `json:"subject" yaml:"subject"`
	Kind      string           `json:"kind" yaml:"kind"`
	Count     int              `json:"count" yaml:"count"`
	Locations []locationResult `json:"locations" yaml:"locations"`
}

type queryResult struct {
	Query       string               `json:"query" yaml:"query"`
	Results     []relationshipResult `json:"results" yaml:"results"`
	Total       int                  `json:"total" yaml:"total"`
	Truncated   bool                 `json:"truncated" yaml:"truncated"`
	Suggestions []string             `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

type statsResult struct {
	Relationships int    `json:"relationships" yaml:"relationships"`
	Keys          int    `json:"keys" yaml:"keys"`
	Units         int    `json:"units" yaml:"units"`
	Subjects      int    `json:"declared_subjects" yaml:"declared_subjects"`
	Attributes    int    `json:"attributes" yaml:"attributes"`
	Source        string `json:"source" yaml:"source"`
}

func newStatsResult(s core.IndexStats, source indexing.InitSource) statsResult {
	return statsResult{
		Relationships: s.Relationships,
		Keys:          s.Keys,
		Units:         s.Units,
		Subjects:      s.Subjects,
		Attributes:    s.Attributes,
		Source:        string(source),
	}
}

// runQuery collects the locations for every subject ref resolves to. limit
// bounds the locations listed per key; 0 lists all.
func runQuery(idx *core.RelationshipIndex, ref string, kind types.Kind, limit int) queryResult {
	result := queryResult{Query: ref, Results: []relationshipResult{}}
	for _, subject := range indexing.ResolveSubjects(idx, ref) {
		kinds := []types.Kind{kind}
		if kind == "" {
			kinds = idx.KindsOf(subject)
		}
		for _, k := range kinds {
			locs := idx.Relationships(subject, k)
			if len(locs) == 0 {
				continue
			}
			count := len(locs)
			result.Total += count
			if limit > 0 && count > limit {
				locs = locs[:limit]
				result.Truncated = true
			}
			r := relationshipResult{
				Subject:   subject.ID(),
				Kind:      string(k),
				Count:     count,
				Locations: make([]locationResult, len(locs)),
			}
			for i, l := range locs {
				r.Locations[i] = locationResult{Offset: l.Offset, Length: l.Length}
				if !l.Subject.IsZero() {
					r.Locations[i].Unit = string(l.Subject.Unit)
					r.Locations[i].Container = l.Subject.ID()
				}
			}
			result.Results = append(result.Results, r)
		}
	}

	if len(result.Results) == 0 {
		name := ref
		if s, ok := types.ParseSubjectID(ref); ok {
			name = s.Name
		}
		for _, sg := range indexing.Suggest(idx, name, maxSuggestions) {
			result.Suggestions = append(result.Suggestions, sg.Subject.ID())
		}
	}
	return result
}

func (r queryResult) text() string {
	var b strings.Builder
	if len(r.Results) == 0 {
		fmt.Fprintf(&b, "No relationships found for %q\n", r.Query)
		if len(r.Suggestions) > 0 {
			fmt.Fprintf(&b, "Did you mean:\n")
			for _, s := range r.Suggestions {
				fmt.Fprintf(&b, "  %s\n", s)
			}
		}
		return b.String()
	}
	for _, res := range r.Results {
		fmt.Fprintf(&b, "%s %s (%d)\n", res.Subject, res.Kind, res.Count)
		for _, l := range res.Locations {
			if l.Container == "" {
				fmt.Fprintf(&b, "  @%d+%d\n", l.Offset, l.Length)
				continue
			}
			fmt.Fprintf(&b, "  %s @%d+%d  %s\n", l.Unit, l.Offset, l.Length, l.Container)
		}
	}
	if r.Truncated {
		fmt.Fprintf(&b, "(%d locations in total, output truncated)\n", r.Total)
	}
	return b.String()
}

// writeOutput renders v in the requested format; text uses the supplied renderer
func writeOutput(w io.Writer, format string, v interface{}, text func() string) error {
	switch strings.ToLower(format) {
	case "", "text":
		_, err := io.WriteString(w, text())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}
