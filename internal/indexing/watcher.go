package indexing

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/relidx/internal/debug"
)

// FileEventHandler applies debounced file events. Coordinator implements it.
type FileEventHandler interface {
	IndexFile(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
	RemoveDir(ctx context.Context, dir string) error
}

// FileEventType represents the type of file system event
type FileEventType int

const (
	FileEventCreate FileEventType = iota
	FileEventWrite
	FileEventRemove
	FileEventRename
)

// FileWatcher monitors the project tree and feeds changes to a handler
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	scanner   *FileScanner
	handler   FileEventHandler
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
	statsMu         sync.RWMutex

	// Optional callback for test synchronization
	onBatchEnd func(count int, duration time.Duration)
}

// WatchStats contains statistics about file watching operations
type WatchStats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

// NewFileWatcher creates a watcher for the scanner's root
func NewFileWatcher(scanner *FileScanner, handler FileEventHandler, debounce time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		watcher: watcher,
		scanner: scanner,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
	fw.debouncer = newEventDebouncer(debounce, fw.flush)
	return fw, nil
}

// NewCoordinatorWatcher creates a watcher that keeps c current
func NewCoordinatorWatcher(c *Coordinator) (*FileWatcher, error) {
	debounce := time.Duration(c.Config().Watch.DebounceMs) * time.Millisecond
	return NewFileWatcher(c.Scanner(), c, debounce)
}

// SetOnBatchEnd registers a callback invoked after each debounced batch
func (fw *FileWatcher) SetOnBatchEnd(fn func(count int, duration time.Duration)) {
	fw.debouncer.mu.Lock()
	defer fw.debouncer.mu.Unlock()
	fw.onBatchEnd = fn
}

// Start begins watching the scanner's root
func (fw *FileWatcher) Start() error {
	root := fw.scanner.Root()
	debug.LogWatch("starting file watcher for %s\n", root)

	if err := fw.addWatches(root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}

	fw.wg.Add(2)
	go fw.processEvents()
	go fw.debouncer.run(fw.ctx, &fw.wg)
	return nil
}

// Stop stops the watcher. Events still pending in the debouncer are dropped.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.cancel()
		err = fw.watcher.Close()
		fw.wg.Wait()
		debug.LogWatch("file watcher stopped\n")
	})
	return err
}

// addWatches recursively adds watches to every directory that is not excluded
func (fw *FileWatcher) addWatches(root string) error {
	visitedDirs := make(map[string]bool)

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		realPath, err := filepath.EvalSymlinks(path)
		if err != nil || visitedDirs[realPath] {
			return filepath.SkipDir
		}
		visitedDirs[realPath] = true

		if path != root && fw.scanner.ShouldSkipDir(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.incrementStats(0, 1)
			log.Printf("File watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.LogWatch("received %v for %s\n", event.Op, path)

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		eventType := FileEventRemove
		if event.Op&fsnotify.Rename != 0 {
			eventType = FileEventRename
		}
		fw.debouncer.addEvent(path, eventType)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !fw.scanner.ShouldSkipDir(path) {
			// Files created before the watch lands are picked up by the walk
			if err := fw.addWatches(path); err != nil {
				log.Printf("Warning: failed to watch new directory %s: %v", path, err)
			}
			fw.queueExisting(path)
		}
		return
	}

	if !fw.scanner.ShouldIndex(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		fw.debouncer.addEvent(path, FileEventCreate)
	case event.Op&fsnotify.Write != 0:
		fw.debouncer.addEvent(path, FileEventWrite)
	}
}

func (fw *FileWatcher) queueExisting(dir string) {
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && fw.scanner.ShouldSkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if fw.scanner.ShouldIndex(path) {
			fw.debouncer.addEvent(path, FileEventCreate)
		}
		return nil
	})
}

// flush applies one debounced batch: removals first, then changes
func (fw *FileWatcher) flush(events map[string]FileEventType) {
	start := time.Now()

	var removes, changes []string
	for path, eventType := range events {
		switch eventType {
		case FileEventRemove, FileEventRename:
			removes = append(removes, path)
		default:
			changes = append(changes, path)
		}
	}

	for _, path := range removes {
		var err error
		if fw.scanner.ShouldIndex(path) {
			err = fw.handler.RemoveFile(fw.ctx, path)
		} else {
			err = fw.handler.RemoveDir(fw.ctx, path)
		}
		fw.record(path, err)
	}
	for _, path := range changes {
		fw.record(path, fw.handler.IndexFile(fw.ctx, path))
	}

	fw.debouncer.mu.Lock()
	callback := fw.onBatchEnd
	fw.debouncer.mu.Unlock()
	if callback != nil {
		callback(len(events), time.Since(start))
	}
}

func (fw *FileWatcher) record(path string, err error) {
	if err != nil {
		fw.incrementStats(1, 1)
		log.Printf("Failed to update %s: %v", path, err)
		return
	}
	fw.incrementStats(1, 0)
}

func (fw *FileWatcher) incrementStats(events int64, errors int64) {
	fw.statsMu.Lock()
	defer fw.statsMu.Unlock()

	fw.eventsProcessed += events
	fw.errorCount += errors
	fw.lastEventTime = time.Now()
}

// GetStats returns current watch mode statistics
func (fw *FileWatcher) GetStats() WatchStats {
	fw.statsMu.RLock()
	defer fw.statsMu.RUnlock()

	return WatchStats{
		EventsProcessed: fw.eventsProcessed,
		ErrorCount:      fw.errorCount,
		LastEventTime:   fw.lastEventTime,
		IsActive:        fw.ctx.Err() == nil,
	}
}

// eventDebouncer collects events until none arrive for the debounce period,
// then hands the latest event per path to flush on its own goroutine
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]FileEventType
	debounce time.Duration
	kick     chan struct{}
	flush    func(map[string]FileEventType)
}

func newEventDebouncer(debounce time.Duration, flush func(map[string]FileEventType)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]FileEventType),
		debounce: debounce,
		kick:     make(chan struct{}, 1),
		flush:    flush,
	}
}

func (d *eventDebouncer) addEvent(path string, eventType FileEventType) {
	d.mu.Lock()
	// A create followed by writes is still a create
	if prev, ok := d.events[path]; !ok || prev != FileEventCreate || eventType != FileEventWrite {
		d.events[path] = eventType
	}
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *eventDebouncer) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	timer := time.NewTimer(d.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.kick:
			timer.Reset(d.debounce)
		case <-timer.C:
			d.mu.Lock()
			events := d.events
			d.events = make(map[string]FileEventType)
			d.mu.Unlock()
			if len(events) > 0 {
				debug.LogWatch("processing %d debounced file events\n", len(events))
				d.flush(events)
			}
		}
	}
}

// isWithin reports whether path lies in dir
func isWithin(path, dir string) bool {
	dir = strings.TrimSuffix(dir, "/")
	return path == dir || strings.HasPrefix(path, dir+"/")
}
