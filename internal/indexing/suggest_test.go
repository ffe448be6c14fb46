package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/types"
)

func suggestIndex() *core.RelationshipIndex {
	idx := core.NewRelationshipIndex()
	loc := types.NewLocation(types.UnitSubject("a.go"), 0, 1)
	for _, s := range []types.Subject{
		{Kind: types.SubjectFunction, Unit: "a.go", Name: "ParseConfig"},
		{Kind: types.SubjectMethod, Unit: "a.go", Name: "Loader.ParseConfig"},
		{Kind: types.SubjectFunction, Unit: "a.go", Name: "WriteIndex"},
		types.NameSubject("parseConfg"),
	} {
		idx.Record("a.go", s, types.KindIsInvokedBy, loc)
	}
	idx.Record("a.go", types.Universe, types.KindDefinesFunction, loc)
	return idx
}

func TestSuggest(t *testing.T) {
	got := Suggest(suggestIndex(), "ParseConfig", 10)
	require.Len(t, got, 3)

	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, 1.0, got[1].Score)
	assert.Equal(t, "function:a.go#ParseConfig", got[0].Subject.ID(), "ties break on identity")
	assert.Equal(t, "Loader.ParseConfig", got[1].Subject.Name, "members match on the member name")
	assert.Equal(t, types.NameSubject("parseConfg"), got[2].Subject)
	assert.Less(t, got[2].Score, 1.0)
}

func TestSuggest_Limits(t *testing.T) {
	idx := suggestIndex()
	assert.Len(t, Suggest(idx, "ParseConfig", 1), 1)
	assert.Nil(t, Suggest(idx, "  ", 5))
	assert.Nil(t, Suggest(idx, "ParseConfig", 0))
	assert.Empty(t, Suggest(idx, "zzzzzz", 5))
}

func TestResolveSubjects(t *testing.T) {
	idx := suggestIndex()

	got := ResolveSubjects(idx, " ParseConfig ")
	require.Len(t, got, 1)
	assert.Equal(t, types.SubjectFunction, got[0].Kind)

	got = ResolveSubjects(idx, "method:a.go#Loader.ParseConfig")
	assert.Equal(t, []types.Subject{{Kind: types.SubjectMethod, Unit: "a.go", Name: "Loader.ParseConfig"}}, got)

	got = ResolveSubjects(idx, "parseConfg")
	assert.Equal(t, []types.Subject{types.NameSubject("parseConfg")}, got)

	assert.Empty(t, ResolveSubjects(idx, "Missing"))
}
