package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/relidx/internal/config"
	"github.com/standardbeagle/relidx/internal/contributor"
	"github.com/standardbeagle/relidx/internal/debug"
	"github.com/standardbeagle/relidx/internal/indexing"
	"github.com/standardbeagle/relidx/internal/version"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root != "" {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = absRoot
	}

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if root != "" {
		cfg.Project.Root = root
	}
	if indexFile := c.String("index-file"); indexFile != "" {
		cfg.Index.File = indexFile
	}
	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Index.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Index.Exclude = config.DeduplicatePatterns(append(cfg.Index.Exclude, exclude...))
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openCoordinator loads configuration and initializes the project index
func openCoordinator(c *cli.Context, opts ...indexing.CoordinatorOption) (*indexing.Coordinator, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	coord := indexing.NewCoordinator(cfg, contributor.NewGoContributor(), opts...)
	source, err := coord.Initialize(c.Context)
	if err != nil {
		coord.Processor().Close()
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	debug.LogIndex("index ready from %s: %s\n", source, coord.Index().Statistics())
	return coord, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "relidx",
		Usage:                  "Relationship index for Go source trees",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: .relidx.kdl or .relidx.toml in the root)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "index-file",
				Usage: "Index file path, relative to the root (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only index files matching glob patterns (e.g., --include 'pkg/**/*.go')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip files matching glob patterns (e.g., --exclude '**/gen/**')",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug output to a log file",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				path, err := debug.InitDebugLogFile()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "Debug log: %s\n", path)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Build the index and write the index file",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Rebuild from source even when an index file exists",
					},
				},
			},
			{
				Name:      "query",
				Aliases:   []string{"q"},
				Usage:     "List locations related to a subject",
				ArgsUsage: "<subject> [kind]",
				Action:    queryCommand,
				Flags: []cli.Flag{
					formatFlag(),
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"m"},
						Usage:   "Maximum locations per relationship (0 for all)",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
				Flags: []cli.Flag{
					formatFlag(),
					&cli.BoolFlag{
						Name:  "detail",
						Usage: "Break the index down by kind and list the most referenced subjects",
					},
					&cli.IntFlag{
						Name:  "top",
						Usage: "Most referenced subjects shown with --detail",
						Value: 10,
					},
				},
			},
			{
				Name:   "dump",
				Usage:  "Print every attribute and relationship in the index",
				Action: dumpCommand,
			},
			{
				Name:   "watch",
				Usage:  "Keep the index current as files change",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (e.g., :9464)",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve relationship queries over MCP on stdio",
				Action: mcpCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Watch files while serving (default from config)",
					},
					&cli.StringFlag{
						Name:  "log-dir",
						Usage: "Directory for diagnostic logs (default: system temp)",
					},
				},
			},
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: text, json or yaml",
		Value: "text",
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
