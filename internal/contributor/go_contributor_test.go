package contributor

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/types"
)

const shapesUnit types.UnitID = "shapes/shapes.go"

func sub(kind types.SubjectKind, name string) types.Subject {
	return types.Subject{Kind: kind, Unit: shapesUnit, Name: name}
}

func loadShapes(t *testing.T) ([]byte, *core.RelationshipIndex) {
	t.Helper()
	src, err := os.ReadFile("testdata/shapes.go.txt")
	require.NoError(t, err)

	batch, err := NewGoContributor().Contribute(shapesUnit, src)
	require.NoError(t, err)
	require.Equal(t, shapesUnit, batch.Unit)

	idx := core.NewRelationshipIndex()
	idx.ApplyBatch(batch)
	return src, idx
}

func subjectsOf(locs []types.Location) []types.Subject {
	out := make([]types.Subject, len(locs))
	for i, l := range locs {
		out[i] = l.Subject
	}
	return out
}

func TestGoContributor_Accepts(t *testing.T) {
	gc := NewGoContributor()
	assert.True(t, gc.Accepts("pkg/file.go"))
	assert.False(t, gc.Accepts("pkg/file.py"))
	assert.False(t, gc.Accepts("README.md"))
}

func TestGoContributor_Definitions(t *testing.T) {
	src, idx := loadShapes(t)

	assert.ElementsMatch(t, []types.Subject{
		sub(types.SubjectType, "Shape"),
		sub(types.SubjectType, "NamedShape"),
		sub(types.SubjectType, "Base"),
		sub(types.SubjectType, "Square"),
	}, subjectsOf(idx.Relationships(types.Universe, types.KindDefinesType)))

	assert.ElementsMatch(t, []types.Subject{
		sub(types.SubjectMethod, "Shape.Area"),
		sub(types.SubjectMethod, "NamedShape.Label"),
		sub(types.SubjectMethod, "Square.Area"),
		sub(types.SubjectFunction, "NewSquare"),
		sub(types.SubjectFunction, "describe"),
		sub(types.SubjectFunction, "adjust"),
		sub(types.SubjectFunction, "shadowed"),
		sub(types.SubjectFunction, "literal"),
	}, subjectsOf(idx.Relationships(types.Universe, types.KindDefinesFunction)))

	assert.ElementsMatch(t, []types.Subject{
		sub(types.SubjectField, "Base.Name"),
		sub(types.SubjectField, "Square.Side"),
		sub(types.SubjectVariable, "count"),
	}, subjectsOf(idx.Relationships(types.Universe, types.KindDefinesVariable)))

	for _, l := range idx.Relationships(types.Universe, types.KindDefinesType) {
		if l.Subject.Name == "Square" {
			assert.Equal(t, strings.Index(string(src), "Square struct"), l.Offset)
			assert.Equal(t, len("Square"), l.Length)
		}
	}
}

func TestGoContributor_Attributes(t *testing.T) {
	_, idx := loadShapes(t)

	name, ok := idx.Attribute(sub(types.SubjectMethod, "Square.Area"), types.AttributeDisplayName)
	require.True(t, ok)
	assert.Equal(t, "Square.Area", name)

	sig, ok := idx.Attribute(sub(types.SubjectFunction, "NewSquare"), types.AttributeSignature)
	require.True(t, ok)
	assert.Equal(t, "func NewSquare(side float64) *Square", sig)

	exported, ok := idx.Attribute(sub(types.SubjectFunction, "describe"), types.AttributeExported)
	require.True(t, ok)
	assert.Equal(t, "false", exported)
}

func TestGoContributor_ResolvedReferences(t *testing.T) {
	src, idx := loadShapes(t)
	newSquare := sub(types.SubjectFunction, "NewSquare")
	area := sub(types.SubjectMethod, "Square.Area")

	invoked := idx.Relationships(newSquare, types.KindIsInvokedBy)
	require.Len(t, invoked, 1)
	assert.Equal(t, sub(types.SubjectFunction, "describe"), invoked[0].Subject)
	assert.Equal(t, strings.Index(string(src), "NewSquare(2)"), invoked[0].Offset)

	count := sub(types.SubjectVariable, "count")
	adjust := sub(types.SubjectFunction, "adjust")
	assert.ElementsMatch(t, []types.Subject{area, newSquare, adjust, adjust}, subjectsOf(idx.Relationships(count, types.KindIsWrittenBy)))
	assert.ElementsMatch(t, []types.Subject{newSquare, adjust}, subjectsOf(idx.Relationships(count, types.KindIsReadBy)))

	squareRefs := subjectsOf(idx.Relationships(sub(types.SubjectType, "Square"), types.KindIsReferencedBy))
	assert.Contains(t, squareRefs, area)
	assert.Contains(t, squareRefs, newSquare)

	assert.Equal(t, []types.Subject{sub(types.SubjectFunction, "describe")},
		subjectsOf(idx.Relationships(sub(types.SubjectType, "Shape"), types.KindIsReferencedBy)))
}

func TestGoContributor_IncrementsAndCompoundAssignmentsWrite(t *testing.T) {
	src := []byte("package p\n\nvar n int\n\nfunc f() {\n\tn++\n\tn--\n\tn = 2\n\tn += 3\n\t_ = n\n}\n")
	batch, err := NewGoContributor().Contribute("p.go", src)
	require.NoError(t, err)
	idx := core.NewRelationshipIndex()
	idx.ApplyBatch(batch)

	n := types.Subject{Kind: types.SubjectVariable, Unit: "p.go", Name: "n"}
	written := idx.Relationships(n, types.KindIsWrittenBy)
	require.Len(t, written, 4)
	for _, l := range written {
		assert.Equal(t, "n", string(src[l.Offset:l.End()]))
	}
	read := idx.Relationships(n, types.KindIsReadBy)
	require.Len(t, read, 1)
	assert.Equal(t, strings.Index(string(src), "_ = n")+4, read[0].Offset)
}

func TestGoContributor_LocalsShadowFileDeclarations(t *testing.T) {
	_, idx := loadShapes(t)
	count := sub(types.SubjectVariable, "count")

	for _, kind := range []types.Kind{types.KindIsReadBy, types.KindIsWrittenBy, types.KindIsReferencedBy} {
		for _, l := range idx.Relationships(count, kind) {
			assert.NotEqual(t, sub(types.SubjectFunction, "shadowed"), l.Subject, kind)
			assert.NotEqual(t, sub(types.SubjectFunction, "literal"), l.Subject, kind)
		}
	}
	// local function values are not recorded as unresolved calls
	assert.Empty(t, idx.Relationships(types.NameSubject("f"), types.KindIsInvokedByQualified))
}

func TestGoContributor_Embedding(t *testing.T) {
	_, idx := loadShapes(t)

	assert.Equal(t, []types.Subject{sub(types.SubjectType, "Square")},
		subjectsOf(idx.Relationships(sub(types.SubjectType, "Base"), types.KindIsMixedInBy)))
	assert.Empty(t, idx.Relationships(sub(types.SubjectType, "Base"), types.KindIsReferencedBy))

	assert.Equal(t, []types.Subject{sub(types.SubjectType, "NamedShape")},
		subjectsOf(idx.Relationships(sub(types.SubjectType, "Shape"), types.KindIsExtendedBy)))
}

func TestGoContributor_UnresolvedNames(t *testing.T) {
	_, idx := loadShapes(t)
	describe := sub(types.SubjectFunction, "describe")

	assert.Equal(t, []types.Subject{describe},
		subjectsOf(idx.Relationships(types.NameSubject("helper"), types.KindIsInvokedByQualified)))
	assert.Equal(t, []types.Subject{describe},
		subjectsOf(idx.Relationships(types.NameSubject("Println"), types.KindIsInvokedByQualified)))
	assert.Equal(t, []types.Subject{describe},
		subjectsOf(idx.Relationships(types.NameSubject("Area"), types.KindIsInvokedByQualified)))
	assert.Len(t, idx.Relationships(types.NameSubject("Side"), types.KindIsReferencedByQualified), 2)
}

func TestGoContributor_Deterministic(t *testing.T) {
	src, err := os.ReadFile("testdata/shapes.go.txt")
	require.NoError(t, err)
	gc := NewGoContributor()

	first, err := gc.Contribute(shapesUnit, src)
	require.NoError(t, err)
	second, err := gc.Contribute(shapesUnit, src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGoContributor_SyntaxErrors(t *testing.T) {
	batch, err := NewGoContributor().Contribute("broken.go", []byte("package broken\n\nfunc ok() {}\n\nfunc broken( {\n"))
	require.NoError(t, err)
	require.NotNil(t, batch)

	idx := core.NewRelationshipIndex()
	idx.ApplyBatch(batch)
	assert.Contains(t, subjectsOf(idx.Relationships(types.Universe, types.KindDefinesFunction)),
		types.Subject{Kind: types.SubjectFunction, Unit: "broken.go", Name: "ok"})
}

func TestFirstSyntaxError(t *testing.T) {
	gc := NewGoContributor()
	parse := func(src string) *sitter.Tree {
		parser := sitter.NewParser()
		t.Cleanup(parser.Close)
		require.NoError(t, parser.SetLanguage(gc.language))
		tree := parser.Parse([]byte(src), nil)
		require.NotNil(t, tree)
		t.Cleanup(tree.Close)
		return tree
	}

	assert.Nil(t, firstSyntaxError("ok.go", parse("package ok\n\nfunc ok() {}\n").RootNode()))

	perr := firstSyntaxError("broken.go", parse("package broken\n\nfunc ok() {}\n\nfunc broken( {\n").RootNode())
	require.NotNil(t, perr)
	assert.Equal(t, types.UnitID("broken.go"), perr.Unit)
	assert.GreaterOrEqual(t, perr.Line, 5, "the error is past the valid declaration")
	assert.Positive(t, perr.Column)
	assert.Contains(t, perr.Error(), fmt.Sprintf("broken.go:%d:%d", perr.Line, perr.Column))
}
