package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"slices"
)

// Config file names looked up in the project root and the home directory
const (
	KDLFileName  = ".relidx.kdl"
	TOMLFileName = ".relidx.toml"
)

// Defaults applied before any config file is read
const (
	DefaultIndexFile   = ".relidx/index.bin"
	DefaultQueueSize   = 256
	DefaultDebounceMs  = 300
	DefaultMaxFileSize = 4 * 1024 * 1024
)

type Config struct {
	Version int
	Project Project
	Index   Index
	Queue   Queue
	Watch   Watch
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	File             string   // Index file written on shutdown, relative to the project root
	InitialFile      string   // Read-only seed index used when File is missing
	Include          []string // doublestar patterns; empty means every .go file
	Exclude          []string
	MaxFileSize      int64
	RespectGitignore bool
}

type Queue struct {
	Size    int // Pending operations before Submit blocks
	Workers int // Parallel contributor goroutines during a tree scan
}

type Watch struct {
	Enabled    bool
	DebounceMs int
}

// Default returns the configuration used when no config file exists
func Default(root string) *Config {
	name := ""
	if root != "" {
		name = filepath.Base(root)
	}
	return &Config{
		Version: 1,
		Project: Project{Root: root, Name: name},
		Index: Index{
			File:             DefaultIndexFile,
			Include:          []string{},
			Exclude:          getDefaultExclusions(),
			MaxFileSize:      DefaultMaxFileSize,
			RespectGitignore: true,
		},
		Queue: Queue{
			Size:    DefaultQueueSize,
			Workers: runtime.NumCPU(),
		},
		Watch: Watch{
			Enabled:    true,
			DebounceMs: DefaultDebounceMs,
		},
	}
}

func getDefaultExclusions() []string {
	return []string{
		"**/.git/**",
		"**/vendor/**",
		"**/node_modules/**",
		"**/testdata/**",
		"**/.relidx/**",
	}
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot resolves the configuration for rootDir. An explicit path
// wins; otherwise the project .relidx.kdl (or .relidx.toml) is merged over
// the global ~/.relidx.kdl.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}
	absDir, err := filepath.Abs(searchDir)
	if err == nil {
		searchDir = absDir
	}

	if path != "" {
		cfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if cfg.Project.Root == "" || !filepath.IsAbs(cfg.Project.Root) {
			cfg.Project.Root = resolveRoot(filepath.Dir(path), cfg.Project.Root)
		}
		return finish(cfg)
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != searchDir {
		globalCfg, err := LoadKDL(homeDir)
		if err != nil {
			log.Printf("Warning: ignoring global config %s: %v", filepath.Join(homeDir, KDLFileName), err)
		}
		baseConfig = globalCfg
	}

	projectConfig, err := LoadKDL(searchDir)
	if err != nil {
		return nil, err
	}
	if projectConfig == nil {
		if projectConfig, err = LoadTOML(searchDir); err != nil {
			return nil, err
		}
	}

	switch {
	case baseConfig != nil && projectConfig != nil:
		return finish(mergeConfigs(baseConfig, projectConfig))
	case projectConfig != nil:
		return finish(projectConfig)
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		baseConfig.Project.Name = filepath.Base(searchDir)
		return finish(baseConfig)
	}
	return finish(Default(searchDir))
}

func loadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".toml" {
		return parseTOML(content)
	}
	return parseKDL(string(content))
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Index.RespectGitignore {
		patterns, err := LoadGitignorePatterns(cfg.Project.Root)
		if err != nil {
			return nil, err
		}
		cfg.Index.Exclude = DeduplicatePatterns(append(cfg.Index.Exclude, patterns...))
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveRoot makes root absolute relative to the directory holding the config file
func resolveRoot(configDir, root string) string {
	if root == "" {
		if abs, err := filepath.Abs(configDir); err == nil {
			return abs
		}
		return configDir
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Clean(filepath.Join(configDir, root))
}

// IndexPath returns the index file as an absolute path
func (c *Config) IndexPath() string {
	return c.abs(c.Index.File)
}

// InitialIndexPath returns the seed index file, or "" when none is configured
func (c *Config) InitialIndexPath() string {
	if c.Index.InitialFile == "" {
		return ""
	}
	return c.abs(c.Index.InitialFile)
}

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence, but base exclusions are preserved.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Index.Exclude) > 0 {
		merged.Index.Exclude = DeduplicatePatterns(append(slices.Clone(base.Index.Exclude), project.Index.Exclude...))
	}

	// Inclusions: project overrides base completely if specified
	if len(project.Index.Include) == 0 && len(base.Index.Include) > 0 {
		merged.Index.Include = slices.Clone(base.Index.Include)
	}

	return &merged
}

// DeduplicatePatterns removes repeated patterns, keeping first occurrences
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
