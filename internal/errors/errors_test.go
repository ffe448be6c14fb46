package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexingError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewIndexingError("contribute", underlying).
		WithUnit("pkg/a.go").
		WithRecoverable(true)

	assert.Equal(t, ErrorTypeIndexing, err.Type)
	assert.Equal(t, "pkg/a.go", string(err.Unit))
	assert.True(t, errors.Is(err, underlying))
	assert.True(t, err.IsRecoverable())
	assert.Equal(t, "indexing contribute failed for pkg/a.go: underlying error", err.Error())

	bare := NewIndexingError("scan", underlying)
	assert.Equal(t, "indexing scan failed: underlying error", bare.Error())
}

func TestParseError(t *testing.T) {
	err := NewParseError("main.go", 10, 5, errors.New("syntax error"))
	assert.Equal(t, ErrorTypeParse, err.Type)
	assert.Equal(t, "parse error at main.go:10:5: syntax error", err.Error())

	err = NewParseError("main.go", 0, 0, errors.New("no tree"))
	assert.Equal(t, "parse error in main.go: no tree", err.Error())
}

func TestFormatError_VersionMismatch(t *testing.T) {
	err := NewVersionError(1, 7)
	assert.True(t, err.IsVersionMismatch())
	assert.Contains(t, err.Error(), "expected 1")
	assert.Contains(t, err.Error(), "found 7")

	var target *FormatError
	wrapped := NewPersistError("load", "/tmp/index.idx", err)
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, uint32(7), target.Found)
}

func TestFormatError_Corrupt(t *testing.T) {
	err := NewCorruptError("checksum mismatch")
	assert.False(t, err.IsVersionMismatch())
	assert.Equal(t, "corrupt index stream: checksum mismatch", err.Error())
}

func TestPersistError(t *testing.T) {
	err := NewPersistError("write", "/tmp/x.idx", io.ErrShortWrite)
	assert.True(t, errors.Is(err, io.ErrShortWrite))
	assert.Equal(t, "index file write failed for /tmp/x.idx: short write", err.Error())
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("queue.size", "-1", errors.New("must be positive"))
	assert.Equal(t, "config error for field queue.size (value -1): must be positive", err.Error())
}

func TestMultiError(t *testing.T) {
	assert.Nil(t, NewMultiError([]error{nil, nil}))

	a, b := errors.New("a"), errors.New("b")
	single := NewMultiError([]error{nil, a})
	assert.Equal(t, "a", single.Error())

	multi := NewMultiError([]error{a, b})
	assert.True(t, errors.Is(multi, b))
	assert.Contains(t, multi.Error(), "2 errors")
}
