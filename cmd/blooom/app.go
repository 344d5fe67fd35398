package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/config"
	"github.com/realsaraf/blooom/internal/encoder"
	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/logging"
	"github.com/realsaraf/blooom/internal/overlay"
	"github.com/realsaraf/blooom/internal/session"
	"github.com/realsaraf/blooom/internal/storage"
	"github.com/realsaraf/blooom/internal/storage/providers"
)

var log = logging.L("main")

// app holds what every command needs: settings, logging and the capture
// registry.
type app struct {
	store    *config.Store
	health   *health.Monitor
	registry *capture.Registry
	logClose io.Closer
}

func loadApp() (*app, error) {
	store, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := store.Snapshot()

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	out, closer, err := logging.OpenOutput(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	logging.Init(cfg.LogFormat, level, out)
	if err != nil {
		log.Warn("log file unavailable, logging to stderr only", "path", cfg.LogFile, "error", err)
	}

	return &app{
		store:    store,
		health:   health.NewMonitor(),
		registry: capture.NewRegistry(capture.Options{FFmpegPath: cfg.FFmpegPath}),
		logClose: closer,
	}, nil
}

func (a *app) close() {
	a.logClose.Close()
}

// openArchiver returns storage.ErrArchiveDisabled when no mirror is
// configured.
func (a *app) openArchiver(ctx context.Context) (*storage.Archiver, error) {
	cfg := a.store.Snapshot().Archive
	if !cfg.Enabled() {
		return nil, storage.ErrArchiveDisabled
	}
	provider, err := providers.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewArchiver(storage.ArchiverConfig{
		Provider:  provider,
		Prefix:    cfg.Prefix,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Health:    a.health,
		Retry:     storage.DefaultRetryPolicy(),
	})
}

// newRecorder wires a recorder. chrome and window may be nil for headless
// use; archive may be nil when no mirror is configured.
func (a *app) newRecorder(chrome session.HostChrome, window overlay.Window, archive *storage.Archiver) (*session.Recorder, error) {
	cfg := a.store.Snapshot()
	sc := session.Config{
		Sources:    a.registry,
		Acquirer:   a.registry,
		Microphone: a.registry,
		Encoder:    encoder.NewFFmpeg(cfg.FFmpegPath),
		Persister:  storage.NewPersister(),
		Settings:   a.store,
		Overlays:   overlay.NewCoordinator(window, a.health),
		Chrome:     chrome,
		Health:     a.health,
		Timeslice:  time.Duration(cfg.ChunkIntervalMs) * time.Millisecond,
	}
	if archive != nil {
		sc.Archive = archive
	}
	return session.NewRecorder(sc)
}
