package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rmax-ai/rigbind/pkg/config"
	"github.com/rmax-ai/rigbind/pkg/engine"
	"github.com/rmax-ai/rigbind/pkg/retarget"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fs := flag.NewFlagSet("rigbind-tui", flag.ContinueOnError)
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ScenePath == "" {
		fmt.Println("Usage: rigbind-tui -scene <file> [source-root] [target-root]")
		os.Exit(1)
	}

	// The terminal belongs to the UI, so logs go to a file.
	var logOut io.Writer = io.Discard
	if f, err := os.OpenFile(filepath.Join(os.TempDir(), "rigbind-tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(cfg.NewLogger(logOut))

	b, err := config.Open(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	newEditor := func(opts retarget.Options) *engine.Editor {
		c := cfg
		c.IncludeInactive = opts.IncludeInactive
		return b.NewEditor(c, "tui")
	}
	m := newModel(cfg.ScenePath, newEditor, b.Journal, retarget.Options{IncludeInactive: cfg.IncludeInactive})
	if s, err := newEditor(m.opts).Load(cfg.ScenePath); err == nil {
		m.setScene(s)
		m.pick(sideSource, fs.Arg(0))
		m.pick(sideTarget, fs.Arg(1))
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
