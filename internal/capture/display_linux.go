//go:build linux

package capture

import (
	"context"
	"fmt"
	"os"
)

// listDisplays enumerates X11 monitors. Wayland sessions without XWayland
// have no DISPLAY and cannot be captured through x11grab.
func listDisplays(ctx context.Context, run Runner, ffmpeg string) ([]Display, error) {
	xdisplay := os.Getenv("DISPLAY")
	if xdisplay == "" {
		return nil, fmt.Errorf("%w: DISPLAY is not set", ErrCaptureUnavailable)
	}

	out, err := run(ctx, "xrandr", "--listmonitors")
	if err != nil {
		if permissionHint(err.Error()) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		// Without xrandr fall back to the whole X screen.
		log.Warn("xrandr unavailable, capturing whole X screen", "error", err)
		return []Display{{
			Index:     0,
			Name:      "Entire screen",
			IsPrimary: true,
			Input:     []string{"-f", "x11grab", "-i", xdisplay},
		}}, nil
	}
	return parseXrandrMonitors(out, xdisplay), nil
}
