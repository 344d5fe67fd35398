//go:build windows

package encoder

import (
	"io"
	"os"
)

// interrupt sends ffmpeg's interactive quit command; console signals cannot
// be delivered to a single child on Windows.
func interrupt(_ *os.Process, stdin io.Writer) error {
	_, err := io.WriteString(stdin, "q")
	return err
}
