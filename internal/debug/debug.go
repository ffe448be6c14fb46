package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug can be flipped at build time:
// go build -ldflags "-X github.com/standardbeagle/relidx/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode suppresses all debug output while stdio carries the MCP protocol
var MCPMode = false

// Component names used as log prefixes
const (
	ComponentIndex   = "INDEX"
	ComponentQueue   = "QUEUE"
	ComponentPersist = "PERSIST"
	ComponentWatch   = "WATCH"
	ComponentMCP     = "MCP"
)

var (
	debugMutex  sync.Mutex
	debugOutput io.Writer
	debugFile   *os.File
	timestamps  bool
)

// SetMCPMode enables MCP mode which suppresses all debug output to stdio
func SetMCPMode(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	MCPMode = enabled
}

// SetDebugOutput sets the writer for debug output. nil disables output.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// SetTimestamps prefixes every line with an RFC3339 timestamp when enabled
func SetTimestamps(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	timestamps = enabled
}

// InitDebugLogFile routes debug output to a timestamped file under the temp
// directory and returns its path. Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "relidx-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	timestamps = true
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile == nil {
		return nil
	}
	err := debugFile.Close()
	debugFile = nil
	debugOutput = nil
	return err
}

// IsDebugEnabled returns true if debug mode is on and we're not in MCP mode
func IsDebugEnabled() bool {
	if MCPMode {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	for _, name := range []string{"RELIDX_DEBUG", "DEBUG"} {
		if v := os.Getenv(name); v == "1" || v == "true" {
			return true
		}
	}
	return false
}

func write(prefix, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	debugMutex.Lock()
	defer debugMutex.Unlock()
	if debugOutput == nil {
		return
	}
	if timestamps {
		fmt.Fprintf(debugOutput, "%s ", time.Now().Format(time.RFC3339))
	}
	fmt.Fprintf(debugOutput, prefix+format, args...)
}

// Printf prints debug information only when debug mode is enabled and output is configured
func Printf(format string, args ...interface{}) {
	write("[DEBUG] ", format, args...)
}

// Log writes a debug line tagged with a component name
func Log(component, format string, args ...interface{}) {
	write("[DEBUG:"+component+"] ", format, args...)
}

func LogIndex(format string, args ...interface{})   { Log(ComponentIndex, format, args...) }
func LogQueue(format string, args ...interface{})   { Log(ComponentQueue, format, args...) }
func LogPersist(format string, args ...interface{}) { Log(ComponentPersist, format, args...) }
func LogWatch(format string, args ...interface{})   { Log(ComponentWatch, format, args...) }
func LogMCP(format string, args ...interface{})     { Log(ComponentMCP, format, args...) }
