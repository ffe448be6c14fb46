package persist

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/debug"
	relerrors "github.com/standardbeagle/relidx/internal/errors"
)

// SaveFile writes idx to path through a temporary file in the same
// directory, renamed into place once fully written
func SaveFile(path string, idx *core.RelationshipIndex) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return relerrors.NewPersistError("save", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return relerrors.NewPersistError("save", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := Write(tmp, idx); err != nil {
		cleanup()
		return relerrors.NewPersistError("save", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return relerrors.NewPersistError("save", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return relerrors.NewPersistError("save", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return relerrors.NewPersistError("save", path, err)
	}

	debug.LogPersist("saved index to %s (%s)\n", path, idx.Statistics())
	return nil
}

// LoadFile reads an index file written by SaveFile
func LoadFile(path string, resolve Resolver) (*core.RelationshipIndex, error) {
	idx := core.NewRelationshipIndex()
	if err := LoadFileInto(path, idx, resolve); err != nil {
		return nil, err
	}
	return idx, nil
}

// LoadFileInto reads an index file into idx. Format errors are wrapped in a
// PersistError and stay reachable with errors.As.
func LoadFileInto(path string, idx *core.RelationshipIndex, resolve Resolver) error {
	f, err := os.Open(path)
	if err != nil {
		return relerrors.NewPersistError("load", path, err)
	}
	defer f.Close()

	if err := ReadInto(bufio.NewReader(f), idx, resolve); err != nil {
		return relerrors.NewPersistError("load", path, err)
	}
	debug.LogPersist("loaded index from %s (%s)\n", path, idx.Statistics())
	return nil
}
