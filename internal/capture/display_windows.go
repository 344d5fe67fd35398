//go:build windows

package capture

import "context"

// listDisplays returns the virtual desktop. gdigrab captures all monitors
// as one surface.
func listDisplays(ctx context.Context, run Runner, ffmpeg string) ([]Display, error) {
	return []Display{{
		Index:     0,
		Name:      "Entire screen",
		IsPrimary: true,
		Input:     []string{"-f", "gdigrab", "-draw_mouse", "1", "-i", "desktop"},
	}}, nil
}
