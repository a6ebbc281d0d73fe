package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/star/orbitview/internal/app"
	"github.com/star/orbitview/internal/config"
	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/tui"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.ConfigEnv), "path to a YAML, JSON or TOML config file")
	group := flag.String("group", elements.DefaultGroup, "Celestrak group to display")
	logPath := flag.String("log", "", "write logs to this file instead of discarding them")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "orbitview-tui needs an interactive terminal")
		os.Exit(2)
	}
	if !elements.IsKnownGroup(*group) {
		fmt.Fprintf(os.Stderr, "unknown group %q\n", *group)
		os.Exit(2)
	}

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := openLogger(cfg, *logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	for _, w := range warnings {
		logger.Warn("config value ignored", "detail", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg.Tracker.WarmPaths = false
	a := app.New(cfg, nil, logger)
	go a.Paths.Start(ctx)

	p := tea.NewProgram(tui.New(ctx, a.Controller, *group), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("viewer exited", "error", err)
		fmt.Fprintf(os.Stderr, "orbitview-tui: %v\n", err)
		os.Exit(1)
	}
}

func openLogger(cfg config.Config, path string) (*slog.Logger, func(), error) {
	if path == "" {
		return logging.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, f)
	return logger, func() { _ = f.Close() }, nil
}
