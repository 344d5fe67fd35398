// Package hostchrome drives the desktop around a recording: the UI shell's
// main window, the recording-indicator overlay, file manager reveals and
// desktop notifications.
package hostchrome

import (
	"context"
	"errors"
	"os/exec"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/control"
	"github.com/realsaraf/blooom/internal/logging"
)

var log = logging.L("hostchrome")

// ErrNotSupported is returned where the platform has no helper.
var ErrNotSupported = errors.New("hostchrome: not supported on this platform")

// Pusher delivers window actions to the connected UI shell. Push returns
// control.ErrNoClients when nothing is connected.
type Pusher interface {
	Push(action string, payload any) error
}

// OverlayRequest asks the shell to open the indicator window.
type OverlayRequest struct {
	ID           string       `json:"id"`
	Bounds       capture.Rect `json:"bounds"`
	Frameless    bool         `json:"frameless"`
	AlwaysOnTop  bool         `json:"alwaysOnTop"`
	Transparent  bool         `json:"transparent"`
	ClickThrough bool         `json:"clickThrough"`
}

// Remote forwards window operations to the UI shell. It implements the
// recorder's host chrome and the overlay window. Without a connected shell
// there is no main window, so minimize, restore and hide succeed as no-ops;
// showing the overlay still fails.
type Remote struct {
	pusher Pusher
}

// NewRemote returns a Remote pushing through p.
func NewRemote(p Pusher) *Remote {
	return &Remote{pusher: p}
}

func detached(err error) bool {
	return errors.Is(err, control.ErrNoClients)
}

// Minimize hides the shell window so it is not captured.
func (r *Remote) Minimize(ctx context.Context) error {
	return r.window(ctx, control.ActionWindowMinimize)
}

// Restore brings the shell window back.
func (r *Remote) Restore(ctx context.Context) error {
	return r.window(ctx, control.ActionWindowRestore)
}

func (r *Remote) window(ctx context.Context, action string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.pusher.Push(action, nil)
	if err != nil && detached(err) {
		log.Debug("no shell connected, window action skipped", "action", action)
		return nil
	}
	return err
}

// Show opens the frameless, always-on-top, click-through indicator over
// bounds.
func (r *Remote) Show(ctx context.Context, id string, bounds capture.Rect) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.pusher.Push(control.ActionOverlayOpen, OverlayRequest{
		ID:           id,
		Bounds:       bounds,
		Frameless:    true,
		AlwaysOnTop:  true,
		Transparent:  true,
		ClickThrough: true,
	})
}

// Hide closes the indicator window.
func (r *Remote) Hide(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.pusher.Push(control.ActionOverlayClose, map[string]string{"id": id})
	if err != nil && detached(err) {
		return nil
	}
	return err
}

// Runner runs an external helper to completion.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the helper with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

type command struct {
	name string
	args []string
	// anyExit treats a non-zero exit status as success.
	anyExit bool
}

// Desktop reveals files and posts notifications using platform helpers.
type Desktop struct {
	run Runner
}

// NewDesktop returns a Desktop using run; nil selects ExecRunner.
func NewDesktop(run Runner) *Desktop {
	if run == nil {
		run = ExecRunner
	}
	return &Desktop{run: run}
}

// Reveal shows path selected in the platform file manager. Helpers are
// tried in order until one succeeds.
func (d *Desktop) Reveal(ctx context.Context, path string) error {
	cmds := revealCommands(path)
	if len(cmds) == 0 {
		return ErrNotSupported
	}
	var errs []error
	for _, c := range cmds {
		err := d.run(ctx, c.name, c.args...)
		var exitErr *exec.ExitError
		if err == nil || (c.anyExit && errors.As(err, &exitErr)) {
			return nil
		}
		log.Debug("reveal helper failed", "helper", c.name, "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Notify posts a desktop notification. Delivery is best effort; failures
// are logged and returned.
func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	c, ok := notifyCommand(title, body)
	if !ok {
		return ErrNotSupported
	}
	if err := d.run(ctx, c.name, c.args...); err != nil {
		log.Warn("notification failed", "error", err)
		return err
	}
	return nil
}
