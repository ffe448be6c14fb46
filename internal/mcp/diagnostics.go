package mcp

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiagnosticLogger writes server diagnostics to a file. Stdout carries the
// MCP protocol and must stay clean while the server runs.
type DiagnosticLogger struct {
	mu       sync.Mutex
	file     *os.File
	logger   *log.Logger
	filePath string
}

// NewDiagnosticLogger creates a timestamped log file under the system temp
// directory, or under dir when it is non-empty. Logging is disabled if the
// file cannot be created.
func NewDiagnosticLogger(dir string) *DiagnosticLogger {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "relidx-mcp-logs")
	}
	dl := &DiagnosticLogger{logger: log.New(io.Discard, "", 0)}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dl
	}

	logPath := filepath.Join(dir, fmt.Sprintf("mcp-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return dl
	}
	dl.file = file
	dl.filePath = logPath
	dl.logger = log.New(file, "[MCP] ", log.LstdFlags|log.Lshortfile)
	return dl
}

// Printf logs a diagnostic message
func (dl *DiagnosticLogger) Printf(format string, v ...interface{}) {
	if dl == nil || dl.logger == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.logger.Printf(format, v...)
}

// Errorf logs an error
func (dl *DiagnosticLogger) Errorf(format string, v ...interface{}) {
	dl.Printf("ERROR: "+format, v...)
}

// Close closes the log file if it's open
func (dl *DiagnosticLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return nil
	}
	err := dl.file.Close()
	dl.file = nil
	dl.logger = log.New(io.Discard, "", 0)
	return err
}

// GetLogPath returns the path of the log file, or "" when logging is disabled
func (dl *DiagnosticLogger) GetLogPath() string {
	if dl == nil {
		return ""
	}
	return dl.filePath
}

// NoOpLogger discards everything
var NoOpLogger = &DiagnosticLogger{
	logger: log.New(io.Discard, "", 0),
}
