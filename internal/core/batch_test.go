package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/relidx/internal/types"
)

func fooBatch() *Batch {
	b := &Batch{Unit: unitA}
	b.Add(types.Universe, types.KindDefinesType, *types.NewLocation(classFoo(), 5, 3))
	b.Add(classFoo(), types.KindIsReferencedBy, *types.NewLocation(methodBar(), 40, 3))
	b.Add(types.Subject{}, types.KindIsReferencedBy, *loc(unitA, 1, 1))
	b.SetAttribute(classFoo(), types.AttributeDisplayName, "Foo")
	b.SetAttribute(classFoo(), "", "ignored")
	return b
}

func TestBatch_DropsIncompleteEntries(t *testing.T) {
	b := fooBatch()
	assert.Equal(t, 2, b.Len())
	assert.Len(t, b.Attributes, 1)
	assert.Zero(t, (*Batch)(nil).Len())
}

func TestApplyBatch_ReplacesUnitContributions(t *testing.T) {
	idx := NewRelationshipIndex()
	idx.Record(unitA, classFoo(), types.KindIsReadBy, loc(unitA, 99, 1))
	idx.Record(unitB, classFoo(), types.KindIsReferencedBy, loc(unitB, 7, 3))

	idx.ApplyBatch(fooBatch())
	checkOwnership(t, idx)

	assert.Empty(t, idx.Relationships(classFoo(), types.KindIsReadBy))
	assert.Len(t, idx.Relationships(classFoo(), types.KindIsReferencedBy), 2)
	v, ok := idx.Attribute(classFoo(), types.AttributeDisplayName)
	require.True(t, ok)
	assert.Equal(t, "Foo", v)
}

func TestApplyBatch_Idempotent(t *testing.T) {
	idx := NewRelationshipIndex()
	idx.ApplyBatch(fooBatch())
	first := idx.Snapshot()

	idx.ApplyBatch(fooBatch())
	checkOwnership(t, idx)
	assert.Equal(t, first, idx.Snapshot())
	assert.Equal(t, 2, idx.ContributionCount(unitA))
}

func TestApplyBatch_IgnoresMissingUnit(t *testing.T) {
	idx := NewRelationshipIndex()
	idx.ApplyBatch(nil)
	idx.ApplyBatch(&Batch{Contributions: fooBatch().Contributions})
	assert.Equal(t, IndexStats{}, idx.Stats())
}
