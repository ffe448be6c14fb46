package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/relidx/internal/contributor"
	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/debug"
	"github.com/standardbeagle/relidx/internal/indexing"
	"github.com/standardbeagle/relidx/internal/mcp"
	"github.com/standardbeagle/relidx/internal/metrics"
	"github.com/standardbeagle/relidx/internal/types"
)

const shutdownTimeout = 5 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}

func indexCommand(c *cli.Context) error {
	if !c.Bool("force") {
		coord, err := openCoordinator(c)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Index loaded from %s: %s\n", coord.Source(), coord.Index().Statistics())
		ctx, cancel := shutdownContext()
		defer cancel()
		return coord.Shutdown(ctx)
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	coord := indexing.NewCoordinator(cfg, contributor.NewGoContributor())
	summary, err := coord.IndexTree(c.Context)
	if err != nil {
		coord.Processor().Close()
		return fmt.Errorf("failed to index %s: %w", cfg.Project.Root, err)
	}
	ctx, cancel := shutdownContext()
	defer cancel()
	if err := coord.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Indexed %d of %d files in %v (%d failed)\n",
		summary.Indexed, summary.Files, summary.Duration.Round(time.Millisecond), summary.Failed)
	fmt.Fprintf(c.App.Writer, "%s\n", coord.Index().Statistics())
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", cfg.IndexPath())
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("query requires a subject")
	}
	ref := c.Args().Get(0)
	kind := types.Kind(c.Args().Get(1))

	coord, err := openCoordinator(c)
	if err != nil {
		return err
	}
	defer coord.Processor().Close()

	var result queryResult
	err = coord.Processor().Do(c.Context, func(idx *core.RelationshipIndex) {
		result = runQuery(idx, ref, kind, c.Int("max"))
	})
	if err != nil {
		return err
	}
	return writeOutput(c.App.Writer, c.String("format"), result, result.text)
}

func statsCommand(c *cli.Context) error {
	coord, err := openCoordinator(c)
	if err != nil {
		return err
	}
	defer coord.Processor().Close()
	if err := coord.Processor().Sync(c.Context); err != nil {
		return err
	}

	idx := coord.Index()
	if c.Bool("detail") {
		report := metrics.NewIndexReport(idx, c.Int("top"))
		return writeOutput(c.App.Writer, c.String("format"), report.FormatAsJSON(), func() string {
			return report.FormatAsText()
		})
	}

	stats := newStatsResult(idx.Stats(), coord.Source())
	return writeOutput(c.App.Writer, c.String("format"), stats, func() string {
		return fmt.Sprintf("%s\n", idx.Statistics())
	})
}

func dumpCommand(c *cli.Context) error {
	coord, err := openCoordinator(c)
	if err != nil {
		return err
	}
	defer coord.Processor().Close()
	if err := coord.Processor().Sync(c.Context); err != nil {
		return err
	}
	return coord.Index().Dump(c.App.Writer)
}

func watchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops := metrics.NewOperationMetrics()
	coord, err := openCoordinator(c, indexing.WithProcessorOptions(indexing.WithObserver(ops)))
	if err != nil {
		return err
	}
	shutdown := func() error {
		sctx, cancel := shutdownContext()
		defer cancel()
		return coord.Shutdown(sctx)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg, coord.Index(), ops); err != nil {
			shutdown()
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				debug.LogWatch("metrics server stopped: %v\n", err)
			}
		}()
		defer func() {
			sctx, cancel := shutdownContext()
			defer cancel()
			srv.Shutdown(sctx)
		}()
		fmt.Fprintf(c.App.Writer, "Serving metrics on %s/metrics\n", addr)
	}

	watcher, err := indexing.NewCoordinatorWatcher(coord)
	if err != nil {
		shutdown()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		watcher.Stop()
		shutdown()
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	watcher.SetOnBatchEnd(func(count int, elapsed time.Duration) {
		fmt.Fprintf(c.App.Writer, "Reindexed %d paths in %v: %s\n",
			count, elapsed.Round(time.Millisecond), coord.Index().Statistics())
	})

	fmt.Fprintf(c.App.Writer, "Watching %s (%s)\n", coord.Scanner().Root(), coord.Index().Statistics())
	<-ctx.Done()

	watcher.Stop()
	stats := watcher.GetStats()
	fmt.Fprintf(c.App.Writer, "Stopped after %d events (%d errors)\n", stats.EventsProcessed, stats.ErrorCount)
	return shutdown()
}

func mcpCommand(c *cli.Context) error {
	// stdout carries the protocol
	debug.SetMCPMode(true)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, err := openCoordinator(c)
	if err != nil {
		return err
	}
	server := mcp.NewServer(coord, mcp.NewDiagnosticLogger(c.String("log-dir")))

	watch := coord.Config().Watch.Enabled
	if c.IsSet("watch") {
		watch = c.Bool("watch")
	}
	var watcher *indexing.FileWatcher
	if watch {
		watcher, err = indexing.NewCoordinatorWatcher(coord)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			debug.LogMCP("Warning: file watching disabled: %v\n", err)
			if watcher != nil {
				watcher.Stop()
			}
			watcher = nil
		}
	}

	debug.LogMCP("Starting MCP server with stdio transport...\n")
	serveErr := server.Start(ctx)
	if ctx.Err() != nil {
		debug.LogMCP("Received shutdown signal, shutting down gracefully...\n")
		serveErr = nil
	}

	if watcher != nil {
		watcher.Stop()
	}
	sctx, cancel := shutdownContext()
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		debug.LogMCP("Shutdown error: %v\n", err)
	}
	return serveErr
}
