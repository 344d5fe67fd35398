package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/realsaraf/blooom/internal/audio"
	"github.com/realsaraf/blooom/internal/logging"
)

var log = logging.L("encoder")

const (
	stopTimeout   = 10 * time.Second
	acceptTimeout = 10 * time.Second
)

// FFmpeg encodes with an external ffmpeg binary. Audio is fed over a
// loopback TCP connection so stdin stays free for control.
type FFmpeg struct {
	Path string
}

// NewFFmpeg returns an encoder using the ffmpeg at path ("ffmpeg" = PATH).
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// buildArgs assembles the ffmpeg command line. audioURL is empty for a
// video-only recording.
func buildArgs(req Request, audioURL string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-thread_queue_size", "512"}
	args = append(args, req.Video.Args...)

	if audioURL != "" {
		f := req.Audio.Format()
		args = append(args,
			"-thread_queue_size", "512",
			"-f", "s16le",
			"-ar", strconv.Itoa(f.SampleRate),
			"-ac", strconv.Itoa(f.Channels),
			"-i", audioURL,
		)
	}

	args = append(args, "-map", "0:v")
	if audioURL != "" {
		args = append(args, "-map", "1:a")
	}

	// Timestamps follow frame and sample counts so suspended time never
	// appears in the output.
	args = append(args,
		"-vf", "setpts=N/FRAME_RATE/TB,scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libvpx-vp9",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-row-mt", "1",
		"-b:v", strconv.Itoa(req.Quality.videoBitrate()),
		"-pix_fmt", "yuv420p",
	)
	if audioURL != "" {
		args = append(args,
			"-af", "asetpts=N/SR/TB",
			"-c:a", "libopus",
			"-b:a", "128k",
		)
	}
	return append(args, "-f", "webm", "-cluster_time_limit", "1000", "pipe:1")
}

// Start launches ffmpeg for req.
func (e *FFmpeg) Start(ctx context.Context, req Request) (Process, error) {
	if req.Sink == nil {
		return nil, errors.New("encoder: request has no sink")
	}
	if len(req.Video.Args) == 0 {
		return nil, errors.New("encoder: request has no video input")
	}
	if req.Timeslice <= 0 {
		req.Timeslice = DefaultTimeslice
	}

	p := &ffmpegProcess{
		sink:   req.Sink,
		done:   make(chan struct{}),
		stderr: &audio.TailBuffer{Max: 4096},
	}

	var audioURL string
	if !audio.IsSilent(req.Audio) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("encoder: audio listener: %w", err)
		}
		p.audioLn = ln
		p.audio = req.Audio
		audioURL = "tcp://" + ln.Addr().String()
	}

	// Cancelling ctx stops the encoder the same way Stop does, so the
	// container is still finalized.
	cmd := exec.CommandContext(ctx, e.Path, buildArgs(req, audioURL)...)
	cmd.Cancel = func() error {
		err := p.Stop()
		switch {
		case errors.Is(err, ErrNotRunning):
			return os.ErrProcessDone
		case errors.Is(err, ErrAlreadyStopped):
			return nil
		}
		return err
	}
	cmd.Stderr = p.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.closeAudioListener()
		return nil, fmt.Errorf("encoder: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.closeAudioListener()
		return nil, fmt.Errorf("encoder: stdout: %w", err)
	}
	p.cmd = cmd
	p.stdin = stdin
	if err := cmd.Start(); err != nil {
		p.closeAudioListener()
		return nil, fmt.Errorf("encoder: start %s: %w", e.Path, err)
	}

	if proc, err := process.NewProcess(int32(cmd.Process.Pid)); err == nil {
		p.proc = proc
	} else {
		log.Warn("pause unavailable, cannot attach to encoder process", "error", err)
	}

	if p.audioLn != nil {
		go p.pumpAudio()
	}
	go p.run(stdout, req.Timeslice)

	log.Info("encoder started", "pid", cmd.Process.Pid, "audio", audioURL != "", "timeslice", req.Timeslice.String())
	return p, nil
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	proc   *process.Process
	stdin  io.WriteCloser
	sink   Sink
	stderr *audio.TailBuffer

	audio   audio.Source
	audioLn net.Listener

	mu       sync.Mutex
	paused   bool
	stopping bool
	finished bool

	audioPaused atomic.Bool
	done        chan struct{}
}

func (p *ffmpegProcess) run(stdout io.Reader, timeslice time.Duration) {
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	var c chunker
	readErr := c.run(stdout, ticker.C, p.sink.Chunk)
	waitErr := p.cmd.Wait()
	p.closeAudioListener()

	p.mu.Lock()
	stopping := p.stopping
	p.finished = true
	p.mu.Unlock()
	close(p.done)

	log.Info("encoder exited", "chunks", c.emitted, "bytes", c.bytes, "requested", stopping)

	switch {
	case stopping:
		p.sink.Finished(nil)
	default:
		err := waitErr
		if err == nil {
			err = readErr
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		p.sink.Finished(&InterruptedError{Reason: strings.TrimSpace(p.stderr.String()), Err: err})
	}
}

// pumpAudio serves the audio source to ffmpeg's TCP input. While paused
// the source keeps being drained so stale audio does not pile up.
func (p *ffmpegProcess) pumpAudio() {
	if tl, ok := p.audioLn.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(acceptTimeout))
	}
	conn, err := p.audioLn.Accept()
	if err != nil {
		log.Warn("encoder never connected to audio input", "error", err)
		return
	}
	defer conn.Close()

	buf := make([]byte, 3840)
	for {
		n, err := p.audio.Read(buf)
		if n > 0 && !p.audioPaused.Load() {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, audio.ErrClosed) {
				log.Warn("audio input ended", "error", err)
			}
			return
		}
	}
}

func (p *ffmpegProcess) closeAudioListener() {
	if p.audioLn != nil {
		p.audioLn.Close()
	}
}

func (p *ffmpegProcess) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || p.stopping {
		return ErrNotRunning
	}
	if p.paused {
		return nil
	}
	if p.proc == nil {
		return errors.New("encoder: pause unsupported")
	}
	p.audioPaused.Store(true)
	if err := p.proc.Suspend(); err != nil {
		p.audioPaused.Store(false)
		return fmt.Errorf("encoder: suspend: %w", err)
	}
	p.paused = true
	return nil
}

func (p *ffmpegProcess) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || p.stopping {
		return ErrNotRunning
	}
	if !p.paused {
		return nil
	}
	if err := p.proc.Resume(); err != nil {
		return fmt.Errorf("encoder: resume: %w", err)
	}
	p.paused = false
	p.audioPaused.Store(false)
	return nil
}

func (p *ffmpegProcess) Stop() error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return ErrAlreadyStopped
	}
	if p.finished {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.stopping = true
	if p.paused && p.proc != nil {
		p.proc.Resume()
		p.paused = false
	}
	p.mu.Unlock()

	// Ending the audio input lets ffmpeg flush both streams.
	if p.audio != nil {
		p.audio.Close()
	}
	if err := interrupt(p.cmd.Process, p.stdin); err != nil {
		log.Warn("graceful encoder stop failed, killing", "error", err)
		p.cmd.Process.Kill()
	}

	go func() {
		select {
		case <-p.done:
		case <-time.After(stopTimeout):
			log.Warn("encoder did not exit in time, killing")
			p.cmd.Process.Kill()
		}
	}()
	return nil
}
