package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/standardbeagle/relidx/internal/types"
)

// Error types for the relationship index
type ErrorType string

const (
	// Index errors
	ErrorTypeIndexing ErrorType = "indexing"
	ErrorTypeParse    ErrorType = "parse"

	// Persistence errors
	ErrorTypeFormat  ErrorType = "format"
	ErrorTypePersist ErrorType = "persist"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// ErrProcessorClosed is returned when an operation is submitted after the
// operation processor has been closed
var ErrProcessorClosed = errors.New("operation processor is closed")

// IndexingError represents a failure while indexing one unit
type IndexingError struct {
	Type        ErrorType
	Unit        types.UnitID
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewIndexingError creates a new indexing error with context
func NewIndexingError(op string, err error) *IndexingError {
	return &IndexingError{
		Type:       ErrorTypeIndexing,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithUnit adds unit information to the error
func (e *IndexingError) WithUnit(unit types.UnitID) *IndexingError {
	e.Unit = unit
	return e
}

// WithRecoverable marks the error as recoverable
func (e *IndexingError) WithRecoverable(recoverable bool) *IndexingError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *IndexingError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.Unit, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *IndexingError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the error can be retried
func (e *IndexingError) IsRecoverable() bool {
	return e.Recoverable
}

// ParseError represents a contributor failing to parse a unit. Line and
// Column are 1-based; zero means the failure has no source position.
type ParseError struct {
	Type       ErrorType
	Unit       types.UnitID
	Line       int
	Column     int
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(unit types.UnitID, line, column int, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		Unit:       unit,
		Line:       line,
		Column:     column,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("parse error in %s: %v", e.Unit, e.Underlying)
	}
	return fmt.Sprintf("parse error at %s:%d:%d: %v", e.Unit, e.Line, e.Column, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// FormatError reports a persisted index that cannot be decoded. Expected and
// Found are set for version mismatches; Reason describes any other corruption.
type FormatError struct {
	Type      ErrorType
	Expected  uint32
	Found     uint32
	Reason    string
	Timestamp time.Time
}

// NewVersionError creates a format error for an unsupported format version
func NewVersionError(expected, found uint32) *FormatError {
	return &FormatError{
		Type:      ErrorTypeFormat,
		Expected:  expected,
		Found:     found,
		Timestamp: time.Now(),
	}
}

// NewCorruptError creates a format error for a damaged stream
func NewCorruptError(reason string) *FormatError {
	return &FormatError{
		Type:      ErrorTypeFormat,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsVersionMismatch reports whether the stream was written by another format version
func (e *FormatError) IsVersionMismatch() bool {
	return e.Reason == "" && e.Expected != e.Found
}

// Error implements the error interface
func (e *FormatError) Error() string {
	if e.IsVersionMismatch() {
		return fmt.Sprintf("index format version mismatch: expected %d, found %d", e.Expected, e.Found)
	}
	return fmt.Sprintf("corrupt index stream: %s", e.Reason)
}

// PersistError represents a failure reading or writing an index file
type PersistError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewPersistError creates a new persistence error
func NewPersistError(op, path string, err error) *PersistError {
	return &PersistError{
		Type:       ErrorTypePersist,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *PersistError) Error() string {
	return fmt.Sprintf("index file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *PersistError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, or nil when no error is non-nil
func NewMultiError(errs []error) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
