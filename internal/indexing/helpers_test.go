package indexing

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/relidx/internal/config"
	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/types"
)

// lineContributor understands a toy language with one statement per line:
// "func NAME" defines a function and "call NAME" invokes one by name.
// A line reading "fail" makes the whole unit fail.
type lineContributor struct {
	calls atomic.Int64
}

func (lc *lineContributor) Accepts(path string) bool {
	return strings.HasSuffix(path, ".go")
}

func (lc *lineContributor) Contribute(unit types.UnitID, src []byte) (*core.Batch, error) {
	lc.calls.Add(1)
	batch := &core.Batch{Unit: unit}
	container := types.UnitSubject(unit)

	offset := 0
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 1 && fields[0] == "fail" {
			return nil, errors.New("unit marked as failing")
		}
		if len(fields) == 2 {
			name := fields[1]
			at := offset + strings.Index(line, name)
			switch fields[0] {
			case "func":
				fn := types.Subject{Kind: types.SubjectFunction, Unit: unit, Name: name}
				batch.Add(types.Universe, types.KindDefinesFunction, types.Location{Subject: fn, Offset: at, Length: len(name)})
				batch.SetAttribute(fn, types.AttributeDisplayName, name)
			case "call":
				batch.Add(types.NameSubject(name), types.KindIsInvokedByQualified, types.Location{Subject: container, Offset: at, Length: len(name)})
			}
		}
		offset += len(line) + 1
	}
	return batch, nil
}

func newTestConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := config.Default(root)
	cfg.Queue.Size = 16
	cfg.Queue.Workers = 4
	cfg.Watch.DebounceMs = 20
	return cfg
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func invokers(idx *core.RelationshipIndex, name string) []types.Location {
	return idx.Relationships(types.NameSubject(name), types.KindIsInvokedByQualified)
}

func unitsOf(locs []types.Location) []types.UnitID {
	out := make([]types.UnitID, len(locs))
	for i, l := range locs {
		out[i] = l.Subject.Unit
	}
	return out
}
