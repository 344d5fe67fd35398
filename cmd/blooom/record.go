package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/hostchrome"
	"github.com/realsaraf/blooom/internal/session"
)

var (
	recordSource     string
	recordIndex      int
	recordMuteMic    bool
	recordMuteSystem bool
	recordDuration   time.Duration
	recordNotify     bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a screen from the terminal",
	Long: `Record a screen until interrupted.

Ctrl-C stops the recording and saves it. On Unix, SIGUSR1 toggles pause.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return record(cmd)
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordSource, "source", "", "source ID from \"blooom sources\"")
	recordCmd.Flags().IntVar(&recordIndex, "index", -1, "source index from \"blooom sources\"")
	recordCmd.Flags().BoolVar(&recordMuteMic, "mute-mic", false, "do not record the microphone")
	recordCmd.Flags().BoolVar(&recordMuteSystem, "mute-system", false, "do not record system audio")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop automatically after this long")
	recordCmd.Flags().BoolVar(&recordNotify, "notify", false, "post a desktop notification when done")
}

func record(cmd *cobra.Command) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := a.newRecorder(nil, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rec.Close(closeCtx)
	}()

	targets, err := rec.ListTargets(ctx)
	if err != nil {
		return err
	}
	target, err := pickTarget(targets, recordSource, recordIndex)
	if err != nil {
		return err
	}

	policy := a.store.AudioPolicy()
	if cmd.Flags().Changed("mute-mic") {
		policy.MuteMicrophone = recordMuteMic
	}
	if cmd.Flags().Changed("mute-system") {
		policy.MuteSystemAudio = recordMuteSystem
	}

	events, unsubscribe := rec.Subscribe()
	defer unsubscribe()

	if _, err := rec.Start(ctx, &target, session.WithAudioPolicy(policy)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Recording %s. Press Ctrl-C to stop.\n", target.DisplayName)

	final, err := superviseRecording(ctx, rec, events, pauseSignals())
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr)

	if recordNotify {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		notifyOutcomes(notifyCtx, hostchrome.NewDesktop(nil), replay(final))
		cancel()
	}

	if final.State == session.Failed {
		return errors.New(final.FailureReason)
	}
	fmt.Println(final.OutputPath)
	return nil
}

// superviseRecording relays signals to rec and renders progress until the
// session reaches a terminal state.
func superviseRecording(ctx context.Context, rec *session.Recorder, events <-chan session.Event, pause <-chan os.Signal) (session.Snapshot, error) {
	interrupted := ctx.Done()
	var deadline <-chan time.Time
	if recordDuration > 0 {
		deadline = time.After(recordDuration)
	}

	stopNow := func() {
		interrupted, deadline = nil, nil
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := rec.Stop(stopCtx); err != nil {
			log.Warn("stop failed", "error", err)
		}
	}

	waitCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan session.Snapshot, 1)
	go func() {
		snap, _ := rec.Wait(waitCtx)
		done <- snap
	}()

	for {
		select {
		case <-interrupted:
			stopNow()
		case <-deadline:
			stopNow()
		case <-pause:
			togglePause(rec)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			renderEvent(ev)
		case snap := <-done:
			if !snap.State.Terminal() {
				return snap, fmt.Errorf("recording ended in state %s", snap.State)
			}
			return snap, nil
		}
	}
}

func togglePause(rec *session.Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := rec.Snapshot(ctx)
	if err != nil {
		return
	}
	if snap.State == session.Paused {
		_, err = rec.Resume(ctx)
	} else {
		_, err = rec.Pause(ctx)
	}
	if err != nil {
		log.Warn("pause toggle failed", "state", snap.State.String(), "error", err)
	}
}

func renderEvent(ev session.Event) {
	s := ev.Session
	switch ev.Type {
	case session.EventTick:
		fmt.Fprintf(os.Stderr, "\r%s  %s  %d chunks", s.State, formatElapsed(s.ElapsedSeconds), s.ChunkCount)
	case session.EventState:
		fmt.Fprintf(os.Stderr, "\r%-10s %s", s.State, formatElapsed(s.ElapsedSeconds))
	case session.EventWarning:
		if ev.Warning != nil {
			fmt.Fprintf(os.Stderr, "\nwarning: %s\n", ev.Warning.Message)
		}
	}
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

func replay(snap session.Snapshot) <-chan session.Event {
	ch := make(chan session.Event, 1)
	ch <- session.Event{Type: session.EventState, Session: snap}
	close(ch)
	return ch
}

// pickTarget selects by ID, then by index, then the primary screen.
func pickTarget(targets []capture.Target, id string, index int) (capture.Target, error) {
	if len(targets) == 0 {
		return capture.Target{}, capture.ErrCaptureUnavailable
	}
	switch {
	case id != "":
		for _, t := range targets {
			if t.ID == id {
				return t, nil
			}
		}
		return capture.Target{}, fmt.Errorf("%w: %s", capture.ErrTargetNotFound, id)
	case index >= 0:
		if index >= len(targets) {
			return capture.Target{}, fmt.Errorf("%w: index %d (have %d sources)", capture.ErrTargetNotFound, index, len(targets))
		}
		return targets[index], nil
	}
	for _, t := range targets {
		if t.Primary {
			return t, nil
		}
	}
	return targets[0], nil
}
