//go:build !linux && !darwin && !windows

package capture

import "context"

func listDisplays(ctx context.Context, run Runner, ffmpeg string) ([]Display, error) {
	return nil, ErrNotSupported
}
