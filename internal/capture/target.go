// Package capture enumerates recordable screens and acquires live streams
// from them.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrCaptureUnavailable means screen capture cannot be used at all:
	// permission was denied or nothing can be enumerated.
	ErrCaptureUnavailable = errors.New("capture: screen capture unavailable")

	// ErrPermissionDenied is returned when the OS refuses screen access.
	ErrPermissionDenied = errors.New("capture: screen capture permission denied")

	// ErrTargetNotFound means the requested target vanished between
	// enumeration and acquisition.
	ErrTargetNotFound = errors.New("capture: target not found")

	// ErrNotSupported is returned on platforms without a capture backend.
	ErrNotSupported = errors.New("capture: not supported on this platform")
)

// Kind distinguishes whole screens from single windows.
type Kind string

const (
	KindScreen Kind = "screen"
	KindWindow Kind = "window"
)

// Rect is a rectangle in desktop coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Target is something that can be recorded. ID is opaque and stable for
// the lifetime of the underlying screen or window.
type Target struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Kind        Kind   `json:"kind"`
	Bounds      Rect   `json:"bounds"`
	Primary     bool   `json:"primary,omitempty"`
	// Preview is a PNG thumbnail no larger than 300x200. Empty when the
	// thumbnail could not be produced.
	Preview []byte `json:"-"`
}

// PreviewDataURL renders Preview as a data URL for UI shells. Empty when
// there is no preview.
func (t Target) PreviewDataURL() string {
	if len(t.Preview) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(t.Preview)
}

func screenID(index int) string {
	return fmt.Sprintf("screen:%d:0", index)
}
