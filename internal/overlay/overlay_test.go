package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/health"
)

type fakeWindow struct {
	mu      sync.Mutex
	shown   map[string]capture.Rect
	shows   int
	hides   int
	showErr error
	hideErr error
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{shown: make(map[string]capture.Rect)}
}

func (w *fakeWindow) Show(_ context.Context, id string, b capture.Rect) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shows++
	if w.showErr != nil {
		return w.showErr
	}
	w.shown[id] = b
	return nil
}

func (w *fakeWindow) Hide(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hides++
	delete(w.shown, id)
	return w.hideErr
}

var bounds = capture.Rect{X: 10, Y: 20, Width: 1920, Height: 1080}

func TestOpenIsIdempotentPerOwner(t *testing.T) {
	w := newFakeWindow()
	c := NewCoordinator(w, nil)
	ctx := context.Background()

	h1 := c.Open(ctx, "s1", bounds)
	require.True(t, h1.Valid())
	h2 := c.Open(ctx, "s1", capture.Rect{Width: 5, Height: 5})

	assert.Equal(t, h1, h2)
	assert.Equal(t, bounds, h2.Bounds, "bounds are fixed at creation")
	assert.Equal(t, 1, w.shows)
	assert.Equal(t, bounds, w.shown[h1.ID])
}

func TestCloseIsIdempotent(t *testing.T) {
	w := newFakeWindow()
	c := NewCoordinator(w, nil)
	ctx := context.Background()

	h := c.Open(ctx, "s1", bounds)
	c.Close(ctx, h)
	c.Close(ctx, h)
	c.Close(ctx, Handle{})

	assert.Equal(t, 1, w.hides)
	_, open := c.Current()
	assert.False(t, open)
}

func TestStaleHandleDoesNotCloseNewOverlay(t *testing.T) {
	w := newFakeWindow()
	c := NewCoordinator(w, nil)
	ctx := context.Background()

	old := c.Open(ctx, "s1", bounds)
	c.Close(ctx, old)
	fresh := c.Open(ctx, "s2", bounds)

	c.Close(ctx, old)
	cur, open := c.Current()
	require.True(t, open)
	assert.Equal(t, fresh.ID, cur.ID)
}

func TestOpenForNewOwnerReplacesLeftover(t *testing.T) {
	w := newFakeWindow()
	c := NewCoordinator(w, nil)
	ctx := context.Background()

	c.Open(ctx, "s1", bounds)
	h2 := c.Open(ctx, "s2", bounds)

	assert.Equal(t, 1, w.hides)
	assert.Len(t, w.shown, 1)
	assert.Contains(t, w.shown, h2.ID)
}

func TestWindowFailuresAreNotFatal(t *testing.T) {
	w := newFakeWindow()
	w.showErr = errors.New("compositor refused")
	w.hideErr = errors.New("already gone")
	mon := health.NewMonitor()
	c := NewCoordinator(w, mon)
	ctx := context.Background()

	h := c.Open(ctx, "s1", bounds)
	require.True(t, h.Valid(), "a handle is returned even when the window failed")

	check, ok := mon.Get(health.ComponentOverlay)
	require.True(t, ok)
	assert.Equal(t, health.Degraded, check.Status)

	c.Close(ctx, h)
	_, open := c.Current()
	assert.False(t, open)
}

func TestNilWindowUsesNoop(t *testing.T) {
	c := NewCoordinator(nil, nil)
	h := c.Open(context.Background(), "s1", bounds)
	assert.True(t, h.Valid())
	c.Close(context.Background(), h)
}
