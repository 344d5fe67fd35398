//go:build darwin

package capture

import (
	"context"
	"errors"
)

func listDisplays(ctx context.Context, run Runner, ffmpeg string) ([]Display, error) {
	// avfoundation prints the listing on stderr and exits non-zero.
	_, err := run(ctx, ffmpeg, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
	if permissionHint(execErr.Stderr) {
		return nil, ErrPermissionDenied
	}
	return parseAVFoundationScreens([]byte(execErr.Stderr)), nil
}
