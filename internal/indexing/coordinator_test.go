package indexing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/relidx/internal/core"
	relerrors "github.com/standardbeagle/relidx/internal/errors"
	"github.com/standardbeagle/relidx/internal/persist"
	"github.com/standardbeagle/relidx/internal/types"
)

func newTestCoordinator(t *testing.T, root string, opts ...CoordinatorOption) (*Coordinator, *lineContributor) {
	t.Helper()
	lc := &lineContributor{}
	c := NewCoordinator(newTestConfig(t, root), lc, opts...)
	t.Cleanup(func() { _ = c.Processor().Close() })
	return c, lc
}

func seedTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "a.go", "func Alpha\ncall Helper\n")
	writeFile(t, root, "pkg/b.go", "func Beta\ncall Helper\ncall Alpha\n")
	writeFile(t, root, "vendor/v.go", "call Helper\n")
	writeFile(t, root, "notes.txt", "call Helper\n")
	return root
}

func TestCoordinator_IndexTree(t *testing.T) {
	root := seedTree(t)
	c, lc := newTestCoordinator(t, root)
	ctx := context.Background()

	summary, err := c.IndexTree(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Processor().Sync(ctx))

	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 5, summary.Facts)
	assert.EqualValues(t, 2, lc.calls.Load())

	got := invokers(c.Index(), "Helper")
	assert.Equal(t, []types.UnitID{"a.go", "pkg/b.go"}, unitsOf(got), "batches are applied in scan order")
	assert.Equal(t, 15, got[1].Offset)

	name, ok := c.Index().Attribute(types.Subject{Kind: types.SubjectFunction, Unit: "pkg/b.go", Name: "Beta"}, types.AttributeDisplayName)
	assert.True(t, ok)
	assert.Equal(t, "Beta", name)
}

func TestCoordinator_IndexTreeSkipsUnchanged(t *testing.T) {
	root := seedTree(t)
	c, _ := newTestCoordinator(t, root)
	ctx := context.Background()

	_, err := c.IndexTree(ctx)
	require.NoError(t, err)
	summary, err := c.IndexTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Indexed)
	assert.Equal(t, 2, summary.Skipped)

	writeFile(t, root, "a.go", "func Alpha\n")
	summary, err = c.IndexTree(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Processor().Sync(ctx))
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, []types.UnitID{"pkg/b.go"}, unitsOf(invokers(c.Index(), "Helper")))
}

func TestCoordinator_IndexTreeCountsFailures(t *testing.T) {
	root := seedTree(t)
	writeFile(t, root, "broken.go", "func Broken\nfail\n")
	c, _ := newTestCoordinator(t, root)

	summary, err := c.IndexTree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 1, summary.Failed)
}

func TestCoordinator_IndexFileAndRemove(t *testing.T) {
	root := seedTree(t)
	c, lc := newTestCoordinator(t, root)
	ctx := context.Background()

	path := filepath.Join(root, "pkg", "b.go")
	require.NoError(t, c.IndexFile(ctx, path))
	require.NoError(t, c.IndexFile(ctx, path))
	require.NoError(t, c.IndexFile(ctx, filepath.Join(root, "notes.txt")))
	require.NoError(t, c.Processor().Sync(ctx))
	assert.EqualValues(t, 2, lc.calls.Load(), "the ignored file is never analyzed")
	assert.Equal(t, 3, c.Index().ContributionCount("pkg/b.go"))

	require.NoError(t, c.RemoveFile(ctx, path))
	require.NoError(t, c.Processor().Sync(ctx))
	assert.Empty(t, invokers(c.Index(), "Helper"))
	assert.Empty(t, c.Index().Relationships(types.Universe, types.KindDefinesFunction))

	// Removal forgets the content hash so the same content is indexed again
	require.NoError(t, c.IndexFile(ctx, path))
	require.NoError(t, c.Processor().Sync(ctx))
	assert.Len(t, invokers(c.Index(), "Helper"), 1)
}

func TestCoordinator_OlderReadNeverReplacesNewer(t *testing.T) {
	root := seedTree(t)
	c, _ := newTestCoordinator(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "a.go")

	older, err := c.contribute(path)
	require.NoError(t, err)
	writeFile(t, root, "a.go", "func Alpha\ncall Gamma\n")
	newer, err := c.contribute(path)
	require.NoError(t, err)
	require.Less(t, older.seq, newer.seq)

	queued, err := c.submit(ctx, newer)
	require.NoError(t, err)
	assert.True(t, queued)
	queued, err = c.submit(ctx, older)
	require.NoError(t, err)
	assert.False(t, queued, "a stale read is dropped")
	require.NoError(t, c.Processor().Sync(ctx))

	assert.Empty(t, invokers(c.Index(), "Helper"))
	assert.Len(t, invokers(c.Index(), "Gamma"), 1)
}

func TestCoordinator_ConcurrentIndexFileSameUnit(t *testing.T) {
	root := seedTree(t)
	c, _ := newTestCoordinator(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "a.go")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				assert.NoError(t, c.IndexFile(ctx, path))
			}
		}()
	}
	for i := range 20 {
		writeFile(t, root, "a.go", fmt.Sprintf("func Alpha\ncall Helper%d\n", i))
	}
	wg.Wait()
	writeFile(t, root, "a.go", "func Alpha\ncall Final\n")
	require.NoError(t, c.IndexFile(ctx, path))
	require.NoError(t, c.Processor().Sync(ctx))

	assert.Len(t, invokers(c.Index(), "Final"), 1)
	assert.Equal(t, []types.UnitID{"a.go"}, c.Index().Units())
}

func TestCoordinator_IndexFileTooLarge(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "huge.go", "call Helper\ncall Helper\n")
	c, _ := newTestCoordinator(t, root)
	c.Config().Index.MaxFileSize = 8

	err := c.IndexFile(context.Background(), path)
	var ie *relerrors.IndexingError
	require.True(t, errors.As(err, &ie))
	assert.True(t, ie.IsRecoverable())
	assert.Equal(t, types.UnitID("huge.go"), ie.Unit)
}

func TestCoordinator_RemoveDir(t *testing.T) {
	root := seedTree(t)
	writeFile(t, root, "pkg/sub/c.go", "call Helper\n")
	writeFile(t, root, "pkgx/d.go", "call Helper\n")
	c, _ := newTestCoordinator(t, root)
	ctx := context.Background()

	_, err := c.IndexTree(ctx)
	require.NoError(t, err)
	require.NoError(t, c.RemoveDir(ctx, filepath.Join(root, "pkg")))

	assert.Equal(t, []types.UnitID{"a.go", "pkgx/d.go"}, c.Index().Units())
}

func TestCoordinator_InitializeRebuildsThenLoads(t *testing.T) {
	root := seedTree(t)
	ctx := context.Background()

	first, _ := newTestCoordinator(t, root)
	source, err := first.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitFromRebuild, source)
	assert.FileExists(t, first.Config().IndexPath())

	again, err := first.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitFromRebuild, again, "second call is a no-op")

	second, lc := newTestCoordinator(t, root)
	source, err = second.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitFromIndexFile, source)
	assert.Equal(t, InitFromIndexFile, second.Source())
	assert.Zero(t, lc.calls.Load(), "loading does not analyze files")
	assert.Equal(t, first.Index().Snapshot(), second.Index().Snapshot())
}

func TestCoordinator_InitializeFallsBackToInitialFile(t *testing.T) {
	root := seedTree(t)
	ctx := context.Background()

	seed := core.NewRelationshipIndex()
	seed.Record("seed.go", types.NameSubject("Seeded"), types.KindIsInvokedByQualified,
		types.NewLocation(types.UnitSubject("seed.go"), 3, 6))
	initial := filepath.Join(root, "seed.bin")
	require.NoError(t, persist.SaveFile(initial, seed))

	c, lc := newTestCoordinator(t, root)
	c.Config().Index.InitialFile = "seed.bin"
	writeFile(t, root, c.Config().Index.File, "not an index")

	source, err := c.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitFromInitialFile, source)
	assert.EqualValues(t, 2, lc.calls.Load(), "the project tree is indexed over the seed")
	assert.Len(t, invokers(c.Index(), "Seeded"), 1)
	assert.Equal(t, []types.UnitID{"a.go", "pkg/b.go"}, unitsOf(invokers(c.Index(), "Helper")))
}

func TestCoordinator_InitializeRecoversFromCorruptIndex(t *testing.T) {
	root := seedTree(t)
	ctx := context.Background()

	c, _ := newTestCoordinator(t, root)
	indexPath := c.Config().IndexPath()
	writeFile(t, root, c.Config().Index.File, "garbage that is long enough to look like a header")

	source, err := c.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitFromRebuild, source)
	assert.Len(t, invokers(c.Index(), "Helper"), 2)

	loaded, err := persist.LoadFile(indexPath, nil)
	require.NoError(t, err, "the rebuilt index replaces the corrupt file")
	assert.Equal(t, c.Index().Snapshot(), loaded.Snapshot())
}

func TestCoordinator_ShutdownSaves(t *testing.T) {
	root := seedTree(t)
	ctx := context.Background()
	c, _ := newTestCoordinator(t, root)

	_, err := c.IndexTree(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx), "second shutdown is a no-op")

	loaded, err := persist.LoadFile(c.Config().IndexPath(), nil)
	require.NoError(t, err)
	assert.Len(t, invokers(loaded, "Helper"), 2)

	path := writeFile(t, root, "a.go", "call Other\n")
	err = c.IndexFile(ctx, path)
	assert.ErrorIs(t, err, relerrors.ErrProcessorClosed)
}

func TestCoordinator_ShutdownReportsSaveFailure(t *testing.T) {
	root := seedTree(t)
	c, _ := newTestCoordinator(t, root)
	// A directory where the index file should go makes the rename fail
	writeFile(t, root, filepath.Join(c.Config().Index.File, "keep"), "x")

	err := c.Shutdown(context.Background())
	var pe *relerrors.PersistError
	assert.True(t, errors.As(err, &pe))
}
