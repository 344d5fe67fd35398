//go:build !windows

package encoder

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// interrupt asks ffmpeg to finish the container, as Ctrl+C would.
func interrupt(proc *os.Process, _ io.Writer) error {
	return unix.Kill(proc.Pid, unix.SIGINT)
}
