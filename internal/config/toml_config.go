package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	relerrors "github.com/standardbeagle/relidx/internal/errors"
)

// tomlConfig mirrors the KDL schema for projects that prefer TOML
type tomlConfig struct {
	Project struct {
		Root string `toml:"root"`
		Name string `toml:"name"`
	} `toml:"project"`
	Index struct {
		File             string   `toml:"file"`
		InitialFile      string   `toml:"initial_file"`
		Include          []string `toml:"include"`
		Exclude          []string `toml:"exclude"`
		MaxFileSize      string   `toml:"max_file_size"`
		RespectGitignore *bool    `toml:"respect_gitignore"`
	} `toml:"index"`
	Queue struct {
		Size    int `toml:"size"`
		Workers int `toml:"workers"`
	} `toml:"queue"`
	Watch struct {
		Enabled    *bool `toml:"enabled"`
		DebounceMs int   `toml:"debounce_ms"`
	} `toml:"watch"`
}

// LoadTOML reads .relidx.toml from projectRoot. A missing file returns nil, nil.
func LoadTOML(projectRoot string) (*Config, error) {
	tomlPath := filepath.Join(projectRoot, TOMLFileName)
	content, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", TOMLFileName, err)
	}

	cfg, err := parseTOML(content)
	if err != nil {
		return nil, err
	}
	cfg.Project.Root = resolveRoot(projectRoot, cfg.Project.Root)
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	return cfg, nil
}

func parseTOML(content []byte) (*Config, error) {
	var raw tomlConfig
	if err := toml.Unmarshal(content, &raw); err != nil {
		return nil, relerrors.NewConfigError("toml", TOMLFileName, err)
	}

	cfg := Default("")
	cfg.Project.Root = raw.Project.Root
	cfg.Project.Name = raw.Project.Name
	if raw.Index.File != "" {
		cfg.Index.File = raw.Index.File
	}
	cfg.Index.InitialFile = raw.Index.InitialFile
	if raw.Index.Include != nil {
		cfg.Index.Include = raw.Index.Include
	}
	if raw.Index.Exclude != nil {
		cfg.Index.Exclude = raw.Index.Exclude
	}
	if raw.Index.MaxFileSize != "" {
		sz, err := parseSize(raw.Index.MaxFileSize)
		if err != nil {
			return nil, relerrors.NewConfigError("index.max_file_size", raw.Index.MaxFileSize, err)
		}
		cfg.Index.MaxFileSize = sz
	}
	if raw.Index.RespectGitignore != nil {
		cfg.Index.RespectGitignore = *raw.Index.RespectGitignore
	}
	if raw.Queue.Size != 0 {
		cfg.Queue.Size = raw.Queue.Size
	}
	if raw.Queue.Workers != 0 {
		cfg.Queue.Workers = raw.Queue.Workers
	}
	if raw.Watch.Enabled != nil {
		cfg.Watch.Enabled = *raw.Watch.Enabled
	}
	if raw.Watch.DebounceMs != 0 {
		cfg.Watch.DebounceMs = raw.Watch.DebounceMs
	}
	return cfg, nil
}
