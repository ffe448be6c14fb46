package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/relidx/internal/config"
	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/indexing"
	"github.com/standardbeagle/relidx/internal/types"
)

type nopContributor struct{}

func (nopContributor) Accepts(string) bool { return false }

func (nopContributor) Contribute(unit types.UnitID, _ []byte) (*core.Batch, error) {
	return &core.Batch{Unit: unit}, nil
}

var (
	runFn   = types.Subject{Kind: types.SubjectFunction, Unit: "cmd/main.go", Name: "Run"}
	startFn = types.Subject{Kind: types.SubjectMethod, Unit: "srv/server.go", Name: "Server.Start"}
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	c := indexing.NewCoordinator(config.Default(t.TempDir()), nopContributor{})
	t.Cleanup(func() { _ = c.Processor().Close() })

	main := &core.Batch{Unit: "cmd/main.go"}
	main.Add(types.Universe, types.KindDefinesFunction, types.Location{Subject: runFn, Offset: 5, Length: 3})
	main.SetAttribute(runFn, types.AttributeSignature, "func Run() error")
	main.SetAttribute(runFn, types.AttributeExported, "true")

	srv := &core.Batch{Unit: "srv/server.go"}
	for _, off := range []int{40, 90, 120} {
		srv.Add(runFn, types.KindIsInvokedBy, types.Location{Subject: startFn, Offset: off, Length: 3})
	}
	srv.Add(types.NameSubject("Run"), types.KindIsInvokedByQualified, types.Location{Subject: startFn, Offset: 200, Length: 3})

	ctx := context.Background()
	require.NoError(t, c.Processor().IndexBatch(ctx, main))
	require.NoError(t, c.Processor().IndexBatch(ctx, srv))
	require.NoError(t, c.Processor().Sync(ctx))

	return NewServer(c, nil)
}

func call(t *testing.T, handler mcp.ToolHandler, args string) (*mcp.CallToolResult, map[string]interface{}) {
	t.Helper()
	result, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(args)},
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return result, body
}

func TestHandleRelationships_ByIdentity(t *testing.T) {
	s := newTestServer(t)
	result, body := call(t, s.handleRelationships, `{"subject": "function:cmd/main.go#Run", "kind": "is-invoked-by"}`)

	assert.False(t, result.IsError)
	assert.EqualValues(t, 3, body["total"])
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "is-invoked-by", first["kind"])
	locs := first["locations"].([]interface{})
	require.Len(t, locs, 3)
	loc := locs[0].(map[string]interface{})
	assert.EqualValues(t, 40, loc["offset"])
	assert.Equal(t, "srv/server.go", loc["unit"])
	assert.Equal(t, "method:srv/server.go#Server.Start", loc["container"])
}

func TestHandleRelationships_ByNameAllKinds(t *testing.T) {
	s := newTestServer(t)
	_, body := call(t, s.handleRelationships, `{"subject": "Run", "max": 2}`)

	// The declared function and the unresolved name subject both match
	assert.EqualValues(t, 4, body["total"])
	assert.Equal(t, true, body["truncated"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	subjects := []string{
		results[0].(map[string]interface{})["subject"].(string),
		results[1].(map[string]interface{})["subject"].(string),
	}
	assert.ElementsMatch(t, []string{"function:cmd/main.go#Run", "name:#Run"}, subjects)
}

func TestHandleRelationships_MissSuggests(t *testing.T) {
	s := newTestServer(t)
	result, body := call(t, s.handleRelationships, `{"subject": "Runn", "bogus": 1}`)

	assert.False(t, result.IsError)
	assert.Empty(t, body["results"])
	suggestions := body["suggestions"].([]interface{})
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "Run", suggestions[0].(map[string]interface{})["name"])
	assert.Equal(t, []interface{}{`unknown parameter "bogus" ignored`}, body["warnings"])
}

func TestHandleRelationships_InvalidParams(t *testing.T) {
	s := newTestServer(t)

	result, body := call(t, s.handleRelationships, `{}`)
	assert.True(t, result.IsError)
	assert.Equal(t, "subject is required", body["error"])
	assert.NotEmpty(t, body["help"])

	result, _ = call(t, s.handleRelationships, `{"subject": 7}`)
	assert.True(t, result.IsError)
}

func TestHandleStatistics(t *testing.T) {
	s := newTestServer(t)

	_, body := call(t, s.handleStatistics, `{}`)
	assert.Equal(t, "5 relationships in 3 keys in 2 units", body["statistics"])
	assert.EqualValues(t, 2, body["units"])
	assert.Nil(t, body["detail"])

	_, body = call(t, s.handleStatistics, `{"detail": true, "top": 1}`)
	detail := body["detail"].(map[string]interface{})
	top := detail["top_subjects"].([]interface{})
	require.Len(t, top, 1)
	assert.Equal(t, "function:cmd/main.go#Run", top[0].(map[string]interface{})["subject"])
}

func TestHandleAttribute(t *testing.T) {
	s := newTestServer(t)

	_, body := call(t, s.handleAttribute, `{"subject": "Run", "attribute": "signature"}`)
	attrs := body["attributes"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"signature": "func Run() error"}, attrs["function:cmd/main.go#Run"])

	_, body = call(t, s.handleAttribute, `{"subject": "function:cmd/main.go#Run"}`)
	attrs = body["attributes"].(map[string]interface{})
	assert.Len(t, attrs["function:cmd/main.go#Run"], 2)

	result, body := call(t, s.handleAttribute, `{"subject": "Server.Start"}`)
	assert.True(t, result.IsError)
	assert.Contains(t, body["error"], "no attributes found")
}

func TestHandleSuggest(t *testing.T) {
	s := newTestServer(t)

	_, body := call(t, s.handleSuggest, `{"name": "run", "max": 1}`)
	suggestions := body["suggestions"].([]interface{})
	require.Len(t, suggestions, 1)
	first := suggestions[0].(map[string]interface{})
	assert.Equal(t, "function:cmd/main.go#Run", first["subject"])
	assert.EqualValues(t, 1, first["score"])

	result, _ := call(t, s.handleSuggest, `{"name": ""}`)
	assert.True(t, result.IsError)
}

func TestWrapRecoversPanics(t *testing.T) {
	s := newTestServer(t)
	handler := s.wrap("relationships", func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("boom")
	})
	result, body := call(t, handler, `{}`)
	assert.True(t, result.IsError)
	assert.Equal(t, "internal error: boom", body["error"])
}

func TestServer_InMemorySession(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"relationships", "statistics", "attribute", "suggest"}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "relationships",
		Arguments: map[string]interface{}{"subject": "function:cmd/main.go#Run", "kind": "is-invoked-by"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].(*mcp.TextContent).Text, `"total":3`)
}

func TestDiagnosticLogger(t *testing.T) {
	dir := t.TempDir()
	dl := NewDiagnosticLogger(dir)
	require.NotEmpty(t, dl.GetLogPath())
	dl.Printf("hello %d", 1)
	require.NoError(t, dl.Close())
	dl.Printf("after close is discarded")
	assert.NoError(t, dl.Close())

	var nilLogger *DiagnosticLogger
	nilLogger.Printf("no panic")
	assert.Equal(t, "", nilLogger.GetLogPath())
}
