package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoDevice means the platform offers no capture device of the requested
// kind.
var ErrNoDevice = errors.New("audio: no capture device available")

// startupTimeout bounds how long a device may take to deliver its first
// samples before it is considered broken.
const startupTimeout = 3 * time.Second

// Device names an ffmpeg audio input.
type Device struct {
	Name      string   `json:"name"`
	InputArgs []string `json:"inputArgs"`
}

// Devices are the platform's loopback and microphone inputs. A nil entry
// means the platform has no such input.
type Devices struct {
	System     *Device
	Microphone *Device
}

// PlatformDevices returns the default inputs for the running OS.
func PlatformDevices() Devices {
	return devicesFor(runtime.GOOS)
}

func devicesFor(goos string) Devices {
	switch goos {
	case "linux":
		return Devices{
			System:     &Device{Name: "pulse monitor", InputArgs: []string{"-f", "pulse", "-i", "@DEFAULT_MONITOR@"}},
			Microphone: &Device{Name: "pulse default", InputArgs: []string{"-f", "pulse", "-i", "default"}},
		}
	case "darwin":
		// No loopback without a virtual driver.
		return Devices{
			Microphone: &Device{Name: "avfoundation default", InputArgs: []string{"-f", "avfoundation", "-i", ":default"}},
		}
	case "windows":
		return Devices{
			System:     &Device{Name: "virtual-audio-capturer", InputArgs: []string{"-f", "dshow", "-i", "audio=virtual-audio-capturer"}},
			Microphone: &Device{Name: "dshow default", InputArgs: []string{"-f", "dshow", "-i", "audio=default"}},
		}
	default:
		return Devices{}
	}
}

// ffmpegSource is PCM read from an ffmpeg child process.
type ffmpegSource struct {
	cmd    *exec.Cmd
	out    *bufio.Reader
	pipe   io.ReadCloser
	format Format
	stderr *TailBuffer

	closeOnce sync.Once
}

// OpenDevice starts ffmpeg reading dev and converting it to f. It returns
// once the device delivered its first samples, or an error describing why
// it did not.
func OpenDevice(ctx context.Context, ffmpegPath string, dev *Device, f Format) (Source, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	if !f.Valid() {
		f = DefaultFormat
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, dev.InputArgs...)
	args = append(args,
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-f", "s16le", "pipe:1",
	)

	cmd := exec.Command(ffmpegPath, args...)
	stderr := &TailBuffer{Max: 4096}
	cmd.Stderr = stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: %s: stdout pipe: %w", dev.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: %s: start ffmpeg: %w", dev.Name, err)
	}

	s := &ffmpegSource{
		cmd:    cmd,
		pipe:   pipe,
		out:    bufio.NewReaderSize(pipe, 64*1024),
		format: f,
		stderr: stderr,
	}

	ready := make(chan error, 1)
	go func() {
		_, err := s.out.Peek(1)
		ready <- err
	}()

	timer := time.NewTimer(startupTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("audio: %s: %s", dev.Name, s.reason(err))
		}
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("audio: %s: no samples within %s", dev.Name, startupTimeout)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	log.Debug("audio device opened", "device", dev.Name, "format", f.String())
	return s, nil
}

func (s *ffmpegSource) reason(err error) string {
	if tail := strings.TrimSpace(s.stderr.String()); tail != "" {
		return tail
	}
	return err.Error()
}

func (s *ffmpegSource) Read(p []byte) (int, error) { return s.out.Read(p) }

func (s *ffmpegSource) Format() Format { return s.format }

// Close terminates ffmpeg and reaps it.
func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.pipe.Close()
		s.cmd.Wait()
	})
	return nil
}

// TailBuffer keeps the last Max bytes written to it. It collects the
// stderr of ffmpeg processes for error reports.
type TailBuffer struct {
	Max int

	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.Max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
