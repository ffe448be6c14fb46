package indexing

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/relidx/internal/config"
	"github.com/standardbeagle/relidx/internal/debug"
	"github.com/standardbeagle/relidx/internal/types"
	"github.com/standardbeagle/relidx/pkg/pathutil"
)

// FileScanner decides which files under the project root are indexed and
// maps them to unit identities
type FileScanner struct {
	root    string
	include []string
	exclude []string
	maxSize int64
	accepts func(path string) bool
}

// NewFileScanner creates a scanner for cfg. accepts filters by file type
// when no include patterns are configured; nil accepts every file.
func NewFileScanner(cfg *config.Config, accepts func(path string) bool) *FileScanner {
	root := cfg.Project.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &FileScanner{
		root:    root,
		include: slices.Clone(cfg.Index.Include),
		exclude: slices.Clone(cfg.Index.Exclude),
		maxSize: cfg.Index.MaxFileSize,
		accepts: accepts,
	}
}

// Root returns the absolute project root
func (fs *FileScanner) Root() string {
	return fs.root
}

// UnitFor returns the unit identity of path: its slash-separated path
// relative to the root. Paths outside the root keep their absolute form.
func (fs *FileScanner) UnitFor(path string) types.UnitID {
	return types.UnitID(pathutil.ToRelative(path, fs.root))
}

// PathFor is the inverse of UnitFor
func (fs *FileScanner) PathFor(unit types.UnitID) string {
	return pathutil.ToAbsolute(string(unit), fs.root)
}

// ShouldIndex reports whether the file at path passes the include and
// exclude patterns. It does not touch the file system.
func (fs *FileScanner) ShouldIndex(path string) bool {
	rel := string(fs.UnitFor(path))
	if fs.matchesAny(fs.exclude, rel) {
		return false
	}
	if len(fs.include) > 0 {
		return fs.matchesAny(fs.include, rel)
	}
	return fs.accepts == nil || fs.accepts(rel)
}

// ShouldSkipDir reports whether a directory is excluded as a whole
func (fs *FileScanner) ShouldSkipDir(path string) bool {
	rel := string(fs.UnitFor(path))
	if rel == "." {
		return false
	}
	return fs.matchesAny(fs.exclude, rel) || fs.matchesAny(fs.exclude, rel+"/")
}

func (fs *FileScanner) matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// Scan walks the root and returns the files to index in lexical order
func (fs *FileScanner) Scan(ctx context.Context) ([]string, error) {
	var files []string
	visitedDirs := make(map[string]bool)

	err := filepath.WalkDir(fs.root, func(path string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			debug.LogIndex("scanner error for %s: %v\n", path, err)
			return nil
		}

		if d.IsDir() {
			// Symlink cycles
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil || visitedDirs[realPath] {
				return filepath.SkipDir
			}
			visitedDirs[realPath] = true

			if path != fs.root && fs.ShouldSkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !fs.ShouldIndex(path) {
			return nil
		}
		if info, err := d.Info(); err == nil && fs.maxSize > 0 && info.Size() > fs.maxSize {
			debug.LogIndex("skipping oversized file %s (%d bytes)\n", path, info.Size())
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
