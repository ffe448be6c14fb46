package indexing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/relidx/internal/config"
	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/debug"
	relerrors "github.com/standardbeagle/relidx/internal/errors"
	"github.com/standardbeagle/relidx/internal/persist"
	"github.com/standardbeagle/relidx/internal/types"
)

// Contributor turns the contents of one unit into a batch of facts
type Contributor interface {
	Accepts(path string) bool
	Contribute(unit types.UnitID, src []byte) (*core.Batch, error)
}

// InitSource records where Initialize got the index contents from
type InitSource string

const (
	InitFromIndexFile   InitSource = "index-file"
	InitFromInitialFile InitSource = "initial-file"
	InitFromRebuild     InitSource = "rebuild"
)

// TreeSummary reports the outcome of IndexTree
type TreeSummary struct {
	Files    int
	Indexed  int
	Skipped  int // unchanged since the last index, or superseded by a newer read
	Failed   int
	Facts    int
	Duration time.Duration
}

// Coordinator owns the lifecycle of one project index: loading it,
// keeping it current as files change, and saving it on shutdown
type Coordinator struct {
	cfg         *config.Config
	index       *core.RelationshipIndex
	processor   *Processor
	contributor Contributor
	scanner     *FileScanner
	resolve     persist.Resolver
	procOpts    []ProcessorOption

	// last batch submitted per unit; unitMu orders submissions of one unit
	hashMu sync.Mutex
	hashes map[types.UnitID]submission
	unitMu map[types.UnitID]*sync.Mutex
	reads  atomic.Uint64

	initMu      sync.Mutex
	initialized bool
	source      InitSource
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithResolver sets the resolver used when loading index files
func WithResolver(r persist.Resolver) CoordinatorOption {
	return func(c *Coordinator) { c.resolve = r }
}

// WithProcessorOptions forwards options to the processor the coordinator creates
func WithProcessorOptions(opts ...ProcessorOption) CoordinatorOption {
	return func(c *Coordinator) { c.procOpts = append(c.procOpts, opts...) }
}

// NewCoordinator creates a coordinator and starts its processor
func NewCoordinator(cfg *config.Config, contributor Contributor, opts ...CoordinatorOption) *Coordinator {
	index := core.NewRelationshipIndex()
	c := &Coordinator{
		cfg:         cfg,
		index:       index,
		contributor: contributor,
		scanner:     NewFileScanner(cfg, contributor.Accepts),
		resolve:     persist.IdentityResolver,
		hashes:      make(map[types.UnitID]submission),
		unitMu:      make(map[types.UnitID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.processor = NewProcessor(index, cfg.Queue.Size, c.procOpts...)
	return c
}

// Index returns the live index. Reads are safe at any time.
func (c *Coordinator) Index() *core.RelationshipIndex { return c.index }

// Processor returns the processor serializing writes to the index
func (c *Coordinator) Processor() *Processor { return c.processor }

// Scanner returns the file scanner for the project root
func (c *Coordinator) Scanner() *FileScanner { return c.scanner }

// Config returns the configuration the coordinator was built with
func (c *Coordinator) Config() *config.Config { return c.cfg }

// Source reports where Initialize loaded the index from
func (c *Coordinator) Source() InitSource {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.source
}

// contribution is one analyzed read of a file. seq orders reads of the
// same unit so an older read never replaces a newer one.
type contribution struct {
	batch *core.Batch
	hash  uint64
	seq   uint64
}

type submission struct {
	hash uint64
	seq  uint64
}

// contribute reads and analyzes one file outside the writer goroutine
func (c *Coordinator) contribute(path string) (contribution, error) {
	unit := c.scanner.UnitFor(path)
	seq := c.reads.Add(1)
	src, err := os.ReadFile(path)
	if err != nil {
		return contribution{}, relerrors.NewIndexingError("read", err).WithUnit(unit).WithRecoverable(true)
	}
	if limit := c.cfg.Index.MaxFileSize; limit > 0 && int64(len(src)) > limit {
		return contribution{}, relerrors.NewIndexingError("read", fmt.Errorf("file exceeds %d bytes", limit)).WithUnit(unit).WithRecoverable(true)
	}
	batch, err := c.contributor.Contribute(unit, src)
	if err != nil {
		return contribution{}, err
	}
	return contribution{batch: batch, hash: xxhash.Sum64(src), seq: seq}, nil
}

func (c *Coordinator) unitLock(unit types.UnitID) *sync.Mutex {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()
	mu, ok := c.unitMu[unit]
	if !ok {
		mu = &sync.Mutex{}
		c.unitMu[unit] = mu
	}
	return mu
}

// submit queues a contribution unless its content matches the last batch
// queued for the unit or a newer read of the unit was already queued.
// It reports whether the batch was queued.
func (c *Coordinator) submit(ctx context.Context, ct contribution) (bool, error) {
	unit := ct.batch.Unit
	mu := c.unitLock(unit)
	mu.Lock()
	defer mu.Unlock()

	c.hashMu.Lock()
	prev, ok := c.hashes[unit]
	if ok && ct.seq < prev.seq {
		c.hashMu.Unlock()
		debug.LogIndex("%s read superseded, skipping\n", unit)
		return false, nil
	}
	if ok && prev.hash == ct.hash {
		c.hashes[unit] = submission{hash: ct.hash, seq: ct.seq}
		c.hashMu.Unlock()
		debug.LogIndex("%s unchanged, skipping\n", unit)
		return false, nil
	}
	c.hashMu.Unlock()

	if err := c.processor.IndexBatch(ctx, ct.batch); err != nil {
		return false, err
	}
	c.hashMu.Lock()
	c.hashes[unit] = submission{hash: ct.hash, seq: ct.seq}
	c.hashMu.Unlock()
	return true, nil
}

func (c *Coordinator) forget(unit types.UnitID) {
	c.hashMu.Lock()
	delete(c.hashes, unit)
	c.hashMu.Unlock()
}

func (c *Coordinator) forgetAll() {
	c.hashMu.Lock()
	c.hashes = make(map[types.UnitID]submission)
	c.hashMu.Unlock()
}

// IndexFile re-analyzes one file and queues its batch. Files outside the
// configured patterns are ignored; unchanged content is not resubmitted.
// Concurrent calls for one unit queue their batches in read order.
func (c *Coordinator) IndexFile(ctx context.Context, path string) error {
	if !c.scanner.ShouldIndex(path) {
		debug.LogIndex("ignoring %s (doesn't match patterns)\n", path)
		return nil
	}
	ct, err := c.contribute(c.scanner.PathFor(c.scanner.UnitFor(path)))
	if err != nil {
		return err
	}
	_, err = c.submit(ctx, ct)
	return err
}

// RemoveFile queues removal of a deleted file's unit
func (c *Coordinator) RemoveFile(ctx context.Context, path string) error {
	unit := c.scanner.UnitFor(path)
	c.forget(unit)
	return c.processor.RemoveUnit(ctx, unit)
}

// RemoveDir removes every unit under a deleted directory, ordered after
// every earlier queued operation
func (c *Coordinator) RemoveDir(ctx context.Context, dir string) error {
	prefix := string(c.scanner.UnitFor(dir))
	return c.processor.Do(ctx, func(idx *core.RelationshipIndex) {
		for _, unit := range idx.Units() {
			if isWithin(string(unit), prefix) {
				c.forget(unit)
				idx.RemoveUnit(unit)
			}
		}
	})
}

// IndexTree scans the project root and indexes every matching file.
// Files are analyzed in parallel and their batches queued in scan order.
// Per-file failures are logged and counted, not returned.
func (c *Coordinator) IndexTree(ctx context.Context) (TreeSummary, error) {
	start := time.Now()
	files, err := c.scanner.Scan(ctx)
	if err != nil {
		return TreeSummary{}, err
	}

	type result struct {
		contribution
		err error
	}
	results := make([]result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.cfg.Queue.Workers))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ct, err := c.contribute(path)
			results[i] = result{contribution: ct, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TreeSummary{}, err
	}

	summary := TreeSummary{Files: len(files)}
	for _, r := range results {
		if r.err != nil {
			summary.Failed++
			log.Printf("Failed to index: %v", r.err)
			continue
		}
		queued, err := c.submit(ctx, r.contribution)
		if err != nil {
			return summary, err
		}
		if !queued {
			summary.Skipped++
			continue
		}
		summary.Indexed++
		summary.Facts += r.batch.Len()
	}
	summary.Duration = time.Since(start)
	debug.LogIndex("indexed %d of %d files (%d unchanged, %d failed) in %v\n",
		summary.Indexed, summary.Files, summary.Skipped, summary.Failed, summary.Duration)
	return summary, nil
}

// Initialize fills the index: from the index file if it loads, else from
// the initial index file with the project tree indexed over it, else by
// rebuilding from the tree and writing the index file. A failed load clears
// the index before falling back. Calling Initialize again is a no-op.
func (c *Coordinator) Initialize(ctx context.Context) (InitSource, error) {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return c.source, nil
	}

	if c.load(ctx, c.cfg.IndexPath()) {
		c.initialized, c.source = true, InitFromIndexFile
		return c.source, nil
	}
	if initial := c.cfg.InitialIndexPath(); initial != "" && c.load(ctx, initial) {
		// The seed is layered under the project tree; if indexing the tree
		// fails the index falls back to the seed alone.
		if err := c.indexProject(ctx); err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			log.Printf("Warning: failed to index project over %s: %v", initial, err)
			if err := c.processor.Do(ctx, func(idx *core.RelationshipIndex) { idx.Clear() }); err != nil {
				return "", err
			}
			c.forgetAll()
			if !c.load(ctx, initial) {
				return "", fmt.Errorf("failed to reload initial index file %s", initial)
			}
		}
		c.initialized, c.source = true, InitFromInitialFile
		return c.source, nil
	}

	if err := c.indexProject(ctx); err != nil {
		return "", err
	}
	if err := persist.SaveFile(c.cfg.IndexPath(), c.index); err != nil {
		log.Printf("Warning: failed to write index file: %v", err)
	}
	c.initialized, c.source = true, InitFromRebuild
	return c.source, nil
}

// indexProject indexes the tree and waits for every batch to be applied
func (c *Coordinator) indexProject(ctx context.Context) error {
	if _, err := c.IndexTree(ctx); err != nil {
		return err
	}
	return c.processor.Sync(ctx)
}

// load reads path into the index on the writer goroutine
func (c *Coordinator) load(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	var loadErr error
	err := c.processor.Do(ctx, func(idx *core.RelationshipIndex) {
		if loadErr = persist.LoadFileInto(path, idx, c.resolve); loadErr != nil {
			idx.Clear()
		}
	})
	if err == nil {
		err = loadErr
	}
	if err != nil {
		var fe *relerrors.FormatError
		if errors.As(err, &fe) {
			log.Printf("Index file %s unusable (%v), falling back", path, fe)
		} else {
			log.Printf("Failed to load index file %s: %v", path, err)
		}
		c.forgetAll()
		return false
	}
	debug.LogIndex("loaded %s: %s\n", path, c.index.Statistics())
	return true
}

// Save writes the index file after every queued operation has been applied
func (c *Coordinator) Save(ctx context.Context) error {
	var saveErr error
	err := c.processor.Do(ctx, func(idx *core.RelationshipIndex) {
		saveErr = persist.SaveFile(c.cfg.IndexPath(), idx)
	})
	if err != nil {
		return err
	}
	return saveErr
}

// Shutdown drains the queue, writes the index file and stops the processor
func (c *Coordinator) Shutdown(ctx context.Context) error {
	saveErr := c.Save(ctx)
	if errors.Is(saveErr, relerrors.ErrProcessorClosed) {
		return nil
	}
	closeErr := c.processor.Close()
	return relerrors.NewMultiError([]error{saveErr, closeErr})
}
