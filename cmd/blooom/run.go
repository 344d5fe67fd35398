package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/realsaraf/blooom/internal/control"
	"github.com/realsaraf/blooom/internal/hostchrome"
	"github.com/realsaraf/blooom/internal/session"
	"github.com/realsaraf/blooom/internal/storage"
	"github.com/realsaraf/blooom/internal/version"
)

const shutdownTimeout = 20 * time.Second

var (
	listenAddr string
	noNotify   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the control channel for a UI shell",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "control channel address (default from config)")
	runCmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not post desktop notifications")
}

func runDaemon() error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.store.Snapshot()
	addr := cfg.ControlListen
	if listenAddr != "" {
		addr = listenAddr
	}

	archiver, err := a.openArchiver(ctx)
	if err != nil && !errors.Is(err, storage.ErrArchiveDisabled) {
		log.Warn("archive mirror unavailable", "provider", cfg.Archive.Provider, "error", err)
	}

	var dispatcher *control.Dispatcher
	srv := control.NewServer(control.HandlerFunc(func(ctx context.Context, cmd control.Command) control.Result {
		return dispatcher.Handle(ctx, cmd)
	}), control.NewRateLimiter(30, time.Minute))

	remote := hostchrome.NewRemote(srv)
	desktop := hostchrome.NewDesktop(nil)

	rec, err := a.newRecorder(remote, remote, archiver)
	if err != nil {
		return err
	}

	dc := control.DispatcherConfig{
		Recorder: rec,
		Settings: a.store,
		Reveal:   desktop.Reveal,
		Health:   a.health,
	}
	if archiver != nil {
		dc.Archive = archiver
	}
	dispatcher, err = control.NewDispatcher(dc)
	if err != nil {
		return err
	}

	events, unsubscribe := rec.Subscribe()
	go srv.Forward(ctx, events)
	if !noNotify {
		notes, cancelNotes := rec.Subscribe()
		defer cancelNotes()
		go notifyOutcomes(ctx, desktop, notes)
	}

	log.Info("starting blooom", "version", version.Version, "addr", addr, "outputDirectory", cfg.OutputDirectory)
	serveErr := srv.ListenAndServe(ctx, addr)
	stop()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	unsubscribe()
	if err := rec.Close(shutdownCtx); err != nil {
		log.Warn("recorder did not finish cleanly", "error", err)
	}
	if archiver != nil {
		archiver.Close(shutdownCtx)
	}
	if serveErr != nil {
		return fmt.Errorf("control server: %w", serveErr)
	}
	return nil
}

// notifyOutcomes posts a desktop notification when a recording ends.
func notifyOutcomes(ctx context.Context, desktop *hostchrome.Desktop, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != session.EventState {
				continue
			}
			switch ev.Session.State {
			case session.Completed:
				desktop.Notify(ctx, "Recording saved", filepath.Base(ev.Session.OutputPath))
			case session.Failed:
				desktop.Notify(ctx, "Recording failed", ev.Session.FailureReason)
			}
		}
	}
}
