// Package app wires the exchange gateway together with its collaborators
// (rate limiter, symbol catalog, order journal, archive fetcher, notifiers)
// and runs a single command against it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/exchangegate/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App writing command results to out.
func New(cfg *config.Config, logger *slog.Logger, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    out,
	}
}

// Run wires the dependencies the command needs and executes it. Commands that
// need no exchange connection run without wiring.
func (a *App) Run(ctx context.Context, command string, args []string) error {
	a.logger.DebugContext(ctx, "running command",
		slog.String("command", command),
		slog.Any("args", args),
	)

	if command == "encrypt-secret" {
		return a.encryptSecret(args)
	}
	if _, ok := commands[command]; !ok {
		return fmt.Errorf("app: unknown command %q (valid: %s)", command, commandList())
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.dispatch(ctx, deps, command, args)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Debug("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
