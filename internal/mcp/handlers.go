package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/indexing"
	"github.com/standardbeagle/relidx/internal/metrics"
	"github.com/standardbeagle/relidx/internal/types"
)

const (
	defaultMaxLocations   = 100
	defaultMaxSuggestions = 10
	defaultTopSubjects    = 10
)

type RelationshipsParams struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind,omitempty"`
	Max     int    `json:"max,omitempty"`
}

type StatisticsParams struct {
	Detail bool `json:"detail,omitempty"`
	Top    int  `json:"top,omitempty"`
}

type AttributeParams struct {
	Subject   string `json:"subject"`
	Attribute string `json:"attribute,omitempty"`
}

type SuggestParams struct {
	Name string `json:"name"`
	Max  int    `json:"max,omitempty"`
}

// LocationResult is one location in a relationships response
type LocationResult struct {
	Unit      string `json:"unit,omitempty"`
	Container string `json:"container,omitempty"`
	Offset    int    `json:"offset"`
	Length    int    `json:"length"`
}

// RelationshipResult groups the locations for one (subject, kind) key
type RelationshipResult struct {
	Subject   string           `json:"subject"`
	Kind      string           `json:"kind"`
	Count     int              `json:"count"`
	Locations []LocationResult `json:"locations"`
}

// SuggestionResult is one entry of a suggest response
type SuggestionResult struct {
	Subject string  `json:"subject"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
}

func newLocationResult(l types.Location) LocationResult {
	r := LocationResult{Offset: l.Offset, Length: l.Length}
	if !l.Subject.IsZero() {
		r.Unit = string(l.Subject.Unit)
		r.Container = l.Subject.ID()
	}
	return r
}

func suggestionsFor(idx *core.RelationshipIndex, name string, limit int) []SuggestionResult {
	// Identities suggest on their name part
	if s, ok := types.ParseSubjectID(name); ok {
		name = s.Name
	}
	suggestions := indexing.Suggest(idx, name, limit)
	out := make([]SuggestionResult, len(suggestions))
	for i, sg := range suggestions {
		out[i] = SuggestionResult{Subject: sg.Subject.ID(), Name: sg.Subject.Name, Score: sg.Score}
	}
	return out
}

func (s *Server) handleRelationships(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params RelationshipsParams
	unknown, err := decodeParams(req.Params.Arguments, &params, "subject", "kind", "max")
	if err != nil {
		return createErrorResponse("relationships", fmt.Errorf("invalid parameters: %w", err))
	}
	if strings.TrimSpace(params.Subject) == "" {
		return createErrorResponse("relationships", errors.New("subject is required"))
	}
	limit := params.Max
	if limit <= 0 {
		limit = defaultMaxLocations
	}

	var results []RelationshipResult
	var suggestions []SuggestionResult
	total, truncated := 0, false
	err = s.coordinator.Processor().Do(ctx, func(idx *core.RelationshipIndex) {
		for _, subject := range indexing.ResolveSubjects(idx, params.Subject) {
			kinds := []types.Kind{types.Kind(params.Kind)}
			if params.Kind == "" {
				kinds = idx.KindsOf(subject)
			}
			for _, kind := range kinds {
				locs := idx.Relationships(subject, kind)
				if len(locs) == 0 {
					continue
				}
				total += len(locs)
				r := RelationshipResult{
					Subject:   subject.ID(),
					Kind:      string(kind),
					Count:     len(locs),
					Locations: make([]LocationResult, 0, min(len(locs), limit)),
				}
				for _, l := range locs {
					if limit == 0 {
						truncated = true
						break
					}
					r.Locations = append(r.Locations, newLocationResult(l))
					limit--
				}
				results = append(results, r)
			}
		}
		if len(results) == 0 {
			suggestions = suggestionsFor(idx, params.Subject, defaultMaxSuggestions)
		}
	})
	if err != nil {
		return createErrorResponse("relationships", err)
	}

	response := map[string]interface{}{
		"query":     params.Subject,
		"results":   results,
		"total":     total,
		"truncated": truncated,
	}
	if len(results) == 0 {
		response["results"] = []RelationshipResult{}
		response["suggestions"] = suggestions
	}
	return createResponseWithWarnings(response, unknown)
}

func (s *Server) handleStatistics(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params StatisticsParams
	unknown, err := decodeParams(req.Params.Arguments, &params, "detail", "top")
	if err != nil {
		return createErrorResponse("statistics", fmt.Errorf("invalid parameters: %w", err))
	}
	top := params.Top
	if top <= 0 {
		top = defaultTopSubjects
	}

	idx := s.coordinator.Index()
	stats := idx.Stats()
	response := map[string]interface{}{
		"statistics":    idx.Statistics(),
		"relationships": stats.Relationships,
		"keys":          stats.Keys,
		"units":         stats.Units,
		"subjects":      stats.Subjects,
		"attributes":    stats.Attributes,
		"pending":       s.coordinator.Processor().Pending(),
		"source":        string(s.coordinator.Source()),
	}
	if params.Detail {
		response["detail"] = metrics.NewIndexReport(idx, top).FormatAsJSON()
	}
	return createResponseWithWarnings(response, unknown)
}

func (s *Server) handleAttribute(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params AttributeParams
	unknown, err := decodeParams(req.Params.Arguments, &params, "subject", "attribute")
	if err != nil {
		return createErrorResponse("attribute", fmt.Errorf("invalid parameters: %w", err))
	}
	if strings.TrimSpace(params.Subject) == "" {
		return createErrorResponse("attribute", errors.New("subject is required"))
	}

	idx := s.coordinator.Index()
	values := make(map[string]map[string]string)
	for _, subject := range indexing.ResolveSubjects(idx, params.Subject) {
		attrs := make(map[string]string)
		if params.Attribute != "" {
			if v, ok := idx.Attribute(subject, types.Attribute(params.Attribute)); ok {
				attrs[params.Attribute] = v
			}
		} else {
			for k, v := range idx.Attributes(subject) {
				attrs[string(k)] = v
			}
		}
		if len(attrs) > 0 {
			values[subject.ID()] = attrs
		}
	}

	if len(values) == 0 {
		return createSmartErrorResponse("attribute", fmt.Errorf("no attributes found for %q", params.Subject), map[string]interface{}{
			"suggestions": suggestionsFor(idx, params.Subject, defaultMaxSuggestions),
		})
	}
	return createResponseWithWarnings(map[string]interface{}{
		"query":      params.Subject,
		"attributes": values,
	}, unknown)
}

func (s *Server) handleSuggest(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params SuggestParams
	unknown, err := decodeParams(req.Params.Arguments, &params, "name", "max")
	if err != nil {
		return createErrorResponse("suggest", fmt.Errorf("invalid parameters: %w", err))
	}
	if strings.TrimSpace(params.Name) == "" {
		return createErrorResponse("suggest", errors.New("name is required"))
	}
	limit := params.Max
	if limit <= 0 {
		limit = defaultMaxSuggestions
	}
	return createResponseWithWarnings(map[string]interface{}{
		"query":       params.Name,
		"suggestions": suggestionsFor(s.coordinator.Index(), params.Name, limit),
	}, unknown)
}
