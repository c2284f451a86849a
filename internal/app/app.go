package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"shelf/internal/capability"
	"shelf/internal/config"
	"shelf/internal/database"
	"shelf/internal/model"
	"shelf/internal/shadow"
	"shelf/internal/shelf"
)

// App is the application layer between the CLI and the shelf service. It
// constructs all dependencies from config, exposes operations that accept raw
// string arguments, and manages store lifecycles on Close.
type App struct {
	cfg     *config.Config
	caps    *capability.OSStore
	service *shelf.Service
	logger  shelf.Logger
	logFile *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "AddLibrary", "Reset") and tags every log
// line of this invocation. The caller must call Close when done.
//
// A corrupted primary database does not fail construction: it is recreated
// here so startup can continue, with the shadow store as the recovery source.
func New(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("op", operation)}

	caps := capability.NewOSStore(cfg.Library.Extensions, logger, shelf.RealClock{})

	shadowStore, err := shadow.NewStoreFromConfig(cfg.Shadow, logger, shelf.RealClock{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating shadow store: %w", err)
	}

	primary, err := database.NewStoreFromConfig(cfg.Database, logger)
	if err != nil {
		if primary == nil {
			shadowStore.Close()
			logFile.Close()
			return nil, fmt.Errorf("creating database: %w", err)
		}
		switch {
		case errors.Is(err, shelf.ErrStoreCorrupted):
			logger.Error("primary store corrupted on open, recreating", "error", err)
			if rerr := primary.Recreate(context.Background()); rerr != nil {
				// Stay up: reads will degrade to the shadow store.
				logger.Error("primary store recreation failed", "error", rerr)
			}
		case errors.Is(err, shelf.ErrStoreBusy):
			primary.Close()
			shadowStore.Close()
			logFile.Close()
			return nil, fmt.Errorf("database is in use by another process, try again: %w", err)
		default:
			logger.Error("primary store unavailable on open", "error", err)
		}
	}

	svc := shelf.NewService(primary, shadowStore, caps, logger, shelf.RealClock{}, shelf.UUIDGenerator{})

	return &App{
		cfg:     cfg,
		caps:    caps,
		service: svc,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// AddLibrary creates a new library from rawPath, prompting when rawPath is
// empty and the session is interactive.
func (a *App) AddLibrary(ctx context.Context, rawPath string) (*model.Library, error) {
	picker := capability.NewTerminalPicker(a.caps, rawPath)
	return a.service.AddLibrary(ctx, picker)
}

// LoadLibraries runs the startup sequence and returns the reconciled records
// with their per-library statuses. Never fails.
func (a *App) LoadLibraries(ctx context.Context) ([]*model.Library, map[string]shelf.Status) {
	return a.service.LoadLibraries(ctx)
}

// ReconnectLibrary re-points a disconnected library at rawPath (or a prompted
// directory when rawPath is empty).
func (a *App) ReconnectLibrary(ctx context.Context, id, rawPath string) (*model.Library, error) {
	picker := capability.NewTerminalPicker(a.caps, rawPath)
	return a.service.ReconnectLibrary(ctx, picker, id)
}

// DeleteLibrary removes a library from every storage substrate.
func (a *App) DeleteLibrary(ctx context.Context, id string) error {
	return a.service.DeleteLibrary(ctx, id)
}

// ResetStorage destroys and recreates all persisted state. The CLI confirms
// with the user before calling this.
func (a *App) ResetStorage(ctx context.Context) error {
	return a.service.ResetStorage(ctx)
}

// Close drains pending writes and releases all resources.
func (a *App) Close() error {
	err := a.service.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
