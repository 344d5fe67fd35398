// Package audio provides PCM audio sources and the graph that combines
// system audio and microphone input into the single track a recording
// carries.
//
// All sources produce interleaved signed 16-bit little-endian samples.
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Format describes interleaved s16le PCM.
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

// DefaultFormat is the rate used when no input dictates one. Opus works
// natively at 48 kHz.
var DefaultFormat = Format{SampleRate: 48000, Channels: 2}

// BytesPerFrame is the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * 2
}

// Valid reports whether f describes a usable stream.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Source is a readable PCM audio stream. Read returns io.EOF once the
// underlying device stops. Close releases the device and unblocks readers.
type Source interface {
	io.ReadCloser
	Format() Format
}

// ErrClosed is returned by reads on a closed source.
var ErrClosed = errors.New("audio: source closed")

// Silent is implemented by sources that carry no audible signal. Encoders
// may omit the audio track entirely for them.
type Silent interface {
	Silent() bool
}

// IsSilent reports whether src is known to carry no signal. A nil source
// is silent.
func IsSilent(src Source) bool {
	if src == nil {
		return true
	}
	s, ok := src.(Silent)
	return ok && s.Silent()
}

// silence is an endless stream of zero samples.
type silence struct {
	format Format
	mu     sync.Mutex
	closed bool
}

// Silence returns a source of zero samples in the given format. It never
// ends on its own; Close makes subsequent reads return io.EOF.
func Silence(f Format) Source {
	if !f.Valid() {
		f = DefaultFormat
	}
	return &silence{format: f}
}

func (s *silence) Read(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	n := len(p) - len(p)%s.format.BytesPerFrame()
	clear(p[:n])
	return n, nil
}

func (s *silence) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *silence) Format() Format { return s.format }

func (s *silence) Silent() bool { return true }

// readerSource adapts any reader of s16le PCM to Source.
type readerSource struct {
	r      io.Reader
	format Format
	close  func() error
	once   sync.Once
	err    error
}

// FromReader wraps r as a Source. closeFn may be nil.
func FromReader(r io.Reader, f Format, closeFn func() error) Source {
	return &readerSource{r: r, format: f, close: closeFn}
}

func (s *readerSource) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *readerSource) Format() Format { return s.format }

func (s *readerSource) Close() error {
	s.once.Do(func() {
		if s.close != nil {
			s.err = s.close()
		}
	})
	return s.err
}
