package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rmax-ai/rigbind/pkg/config"
	"github.com/rmax-ai/rigbind/pkg/mcp"
)

const archiveInterval = time.Hour

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(flag.NewFlagSet("rigbind-mcp", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	// Stdout carries JSON-RPC; logs go to stderr.
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	if cfg.ScenePath == "" {
		return errors.New("no scene given: use -scene or RIGBIND_SCENE")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, err := config.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Shutdown(context.WithoutCancel(ctx))
	}

	if cfg.BackupDir != "" && cfg.ArchiveAfter > 0 {
		archiver, err := b.NewArchiver(cfg)
		if err != nil {
			return err
		}
		go archiver.Run(ctx, archiveInterval)
	}

	editor := b.NewEditor(cfg, "mcp")

	slog.Info("Starting MCP server", "scene", cfg.ScenePath, "lease_backend", cfg.LeaseBackend)
	return mcp.NewServer(editor, cfg.ScenePath, b.Journal).Serve()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
