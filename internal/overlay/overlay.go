// Package overlay coordinates the marker window drawn around the region
// being recorded. The window itself belongs to the UI shell; this package
// only decides when it exists.
package overlay

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/health"
	"github.com/realsaraf/blooom/internal/logging"
)

var log = logging.L("overlay")

// Window shows and hides a frameless, always-on-top, click-through marker.
type Window interface {
	Show(ctx context.Context, id string, bounds capture.Rect) error
	Hide(ctx context.Context, id string) error
}

// Handle identifies one opened overlay. The zero Handle refers to nothing.
type Handle struct {
	ID     string       `json:"id"`
	Owner  string       `json:"owner"`
	Bounds capture.Rect `json:"bounds"`
}

// Valid reports whether h came from Open.
func (h Handle) Valid() bool { return h.ID != "" }

// Coordinator owns the single overlay. Safe for concurrent use.
type Coordinator struct {
	window Window
	health *health.Monitor

	mu      sync.Mutex
	current Handle
}

// NewCoordinator returns a Coordinator driving w. A nil w uses Noop.
func NewCoordinator(w Window, mon *health.Monitor) *Coordinator {
	if w == nil {
		w = Noop{}
	}
	return &Coordinator{window: w, health: mon}
}

// Open shows the overlay for owner at bounds. If owner already has an
// overlay the existing handle is returned and bounds are ignored; bounds
// never change for the life of a handle. An overlay left behind by another
// owner is closed first. Display failures are logged only.
func (c *Coordinator) Open(ctx context.Context, owner string, bounds capture.Rect) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Valid() {
		if c.current.Owner == owner {
			return c.current
		}
		log.Warn("closing stale overlay", "owner", c.current.Owner, "id", c.current.ID)
		c.hideLocked(ctx, c.current)
	}

	h := Handle{ID: uuid.NewString(), Owner: owner, Bounds: bounds}
	c.current = h
	if err := c.window.Show(ctx, h.ID, bounds); err != nil {
		log.Warn("overlay window could not be shown",
			logging.KeySessionID, owner,
			"bounds", bounds.String(),
			logging.KeyError, err)
		c.report(health.Degraded, err.Error())
		return h
	}
	log.Debug("overlay opened", logging.KeySessionID, owner, "bounds", bounds.String())
	c.report(health.Healthy, "")
	return h
}

// Close hides the overlay identified by h. Closing an already closed or
// zero handle does nothing.
func (c *Coordinator) Close(ctx context.Context, h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !h.Valid() || c.current.ID != h.ID {
		return
	}
	c.hideLocked(ctx, h)
}

// Current returns the open handle, if any.
func (c *Coordinator) Current() (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current.Valid()
}

func (c *Coordinator) hideLocked(ctx context.Context, h Handle) {
	c.current = Handle{}
	if err := c.window.Hide(ctx, h.ID); err != nil {
		log.Warn("overlay window could not be hidden",
			logging.KeySessionID, h.Owner,
			logging.KeyError, err)
		c.report(health.Degraded, err.Error())
		return
	}
	log.Debug("overlay closed", logging.KeySessionID, h.Owner)
}

func (c *Coordinator) report(status health.Status, msg string) {
	if c.health != nil {
		c.health.Update(health.ComponentOverlay, status, msg)
	}
}

// Noop is a Window for headless runs.
type Noop struct{}

func (Noop) Show(context.Context, string, capture.Rect) error { return nil }
func (Noop) Hide(context.Context, string) error               { return nil }
