package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	relerrors "github.com/standardbeagle/relidx/internal/errors"
)

// ValidateConfig checks a loaded configuration and fills zero values that
// have safe defaults
func ValidateConfig(cfg *Config) error {
	if cfg.Project.Root == "" {
		return relerrors.NewConfigError("project.root", "", errors.New("project root cannot be empty"))
	}
	if cfg.Index.File == "" {
		return relerrors.NewConfigError("index.file", "", errors.New("index file cannot be empty"))
	}
	if cfg.Index.MaxFileSize <= 0 {
		return relerrors.NewConfigError("index.max_file_size", strconv.FormatInt(cfg.Index.MaxFileSize, 10),
			errors.New("must be positive"))
	}
	for _, p := range append(append([]string{}, cfg.Index.Include...), cfg.Index.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return relerrors.NewConfigError("index.pattern", p, errors.New("invalid glob pattern"))
		}
	}
	if cfg.Queue.Size < 0 {
		return relerrors.NewConfigError("queue.size", strconv.Itoa(cfg.Queue.Size), fmt.Errorf("must not be negative"))
	}
	if cfg.Queue.Size == 0 {
		cfg.Queue.Size = DefaultQueueSize
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 1
	}
	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = DefaultDebounceMs
	}
	return nil
}
