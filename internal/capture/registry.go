package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/realsaraf/blooom/internal/audio"
	"github.com/realsaraf/blooom/internal/logging"
)

var log = logging.L("capture")

const (
	defaultFrameRate = 30
	thumbnailWorkers = 3
)

// Options configures a Registry. Zero values select the host defaults.
type Options struct {
	FFmpegPath string
	FrameRate  int
	Runner     Runner

	// ListDisplays overrides platform enumeration.
	ListDisplays func(ctx context.Context) ([]Display, error)

	// Devices are the audio inputs; defaults to audio.PlatformDevices.
	Devices *audio.Devices
	// AudioFormat is requested from audio devices.
	AudioFormat audio.Format
	// OpenAudio overrides how an audio device is opened.
	OpenAudio func(ctx context.Context, dev *audio.Device) (audio.Source, error)

	// SkipProbe disables the test frame grabbed before acquisition.
	SkipProbe bool
}

// Registry enumerates capture targets and acquires streams from them.
// It is safe for concurrent use.
type Registry struct {
	ffmpeg      string
	fps         int
	run         Runner
	list        func(ctx context.Context) ([]Display, error)
	devices     audio.Devices
	audioFormat audio.Format
	openAudio   func(ctx context.Context, dev *audio.Device) (audio.Source, error)
	skipProbe   bool
}

// NewRegistry builds a registry for the host.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		ffmpeg:      opts.FFmpegPath,
		fps:         opts.FrameRate,
		run:         opts.Runner,
		list:        opts.ListDisplays,
		audioFormat: opts.AudioFormat,
		openAudio:   opts.OpenAudio,
		skipProbe:   opts.SkipProbe,
	}
	if r.ffmpeg == "" {
		r.ffmpeg = "ffmpeg"
	}
	if r.fps <= 0 {
		r.fps = defaultFrameRate
	}
	if r.run == nil {
		r.run = ExecRunner
	}
	if r.list == nil {
		r.list = func(ctx context.Context) ([]Display, error) {
			return listDisplays(ctx, r.run, r.ffmpeg)
		}
	}
	if opts.Devices != nil {
		r.devices = *opts.Devices
	} else {
		r.devices = audio.PlatformDevices()
	}
	if !r.audioFormat.Valid() {
		r.audioFormat = audio.DefaultFormat
	}
	if r.openAudio == nil {
		r.openAudio = func(ctx context.Context, dev *audio.Device) (audio.Source, error) {
			return audio.OpenDevice(ctx, r.ffmpeg, dev, r.audioFormat)
		}
	}
	return r
}

// Displays returns the raw display enumeration.
func (r *Registry) Displays(ctx context.Context) ([]Display, error) {
	return r.list(ctx)
}

// ListTargets enumerates recordable screens with thumbnails. It fails with
// ErrCaptureUnavailable when access is denied or nothing is enumerable.
// A missing thumbnail never fails the listing.
func (r *Registry) ListTargets(ctx context.Context) ([]Target, error) {
	displays, err := r.list(ctx)
	if err != nil {
		if errors.Is(err, ErrCaptureUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if len(displays) == 0 {
		return nil, fmt.Errorf("%w: no screens found", ErrCaptureUnavailable)
	}

	targets := make([]Target, len(displays))
	for i, d := range displays {
		targets[i] = d.target()
	}

	var denied atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(thumbnailWorkers)
	for i, d := range displays {
		g.Go(func() error {
			frame, err := grabFrame(gctx, r.run, r.ffmpeg, d)
			if err != nil {
				if errors.Is(err, ErrPermissionDenied) {
					denied.Add(1)
				}
				log.Debug("thumbnail unavailable", logging.KeyTarget, targets[i].ID, "error", err)
				return nil
			}
			if targets[i].Bounds.Empty() {
				b := frame.Bounds()
				targets[i].Bounds = Rect{X: d.Bounds.X, Y: d.Bounds.Y, Width: b.Dx(), Height: b.Dy()}
			}
			preview, err := thumbnail(frame)
			if err != nil {
				log.Debug("thumbnail encode failed", logging.KeyTarget, targets[i].ID, "error", err)
				return nil
			}
			targets[i].Preview = preview
			return nil
		})
	}
	g.Wait()

	if int(denied.Load()) == len(displays) {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, ErrPermissionDenied)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

// VideoInput is how the encoder reads the target's pixels.
type VideoInput struct {
	Args      []string `json:"args"`
	FrameRate int      `json:"frameRate"`
	Bounds    Rect     `json:"bounds"`
}

// Stream is an acquired capture target. It is owned by one recording
// session; Close releases everything it holds.
type Stream struct {
	Target Target
	Video  VideoInput
	// SystemAudio is nil when muted or unavailable.
	SystemAudio audio.Source
	// Warnings describe degraded but usable acquisition.
	Warnings []string

	closeOnce sync.Once
	closeErr  error
}

// Close releases the system audio device.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.SystemAudio != nil {
			s.closeErr = s.SystemAudio.Close()
		}
	})
	return s.closeErr
}

// Acquire opens target for recording. The target is re-validated against
// a fresh enumeration so a screen unplugged since listing fails with
// ErrTargetNotFound. System audio failing to open is a warning, not an
// error.
func (r *Registry) Acquire(ctx context.Context, target Target, withSystemAudio bool) (*Stream, error) {
	displays, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var found *Display
	for i := range displays {
		if screenID(displays[i].Index) == target.ID {
			found = &displays[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target.ID)
	}

	bounds := found.Bounds
	if !r.skipProbe {
		frame, err := grabFrame(ctx, r.run, r.ffmpeg, *found)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", target.ID, err)
		}
		// Some platforms enumerate screens without geometry; the test
		// frame has the real size.
		if bounds.Empty() {
			b := frame.Bounds()
			bounds = Rect{X: found.Bounds.X, Y: found.Bounds.Y, Width: b.Dx(), Height: b.Dy()}
		}
	}
	if bounds.Empty() {
		bounds = target.Bounds
	}

	s := &Stream{
		Target: found.target(),
		Video: VideoInput{
			Args:      withFrameRate(found.Input, r.fps),
			FrameRate: r.fps,
			Bounds:    bounds,
		},
	}
	s.Target.Preview = target.Preview
	s.Target.Bounds = bounds

	if withSystemAudio {
		if r.devices.System == nil {
			s.Warnings = append(s.Warnings, "system audio capture is not available on this platform")
		} else if src, err := r.openAudio(ctx, r.devices.System); err != nil {
			log.Warn("system audio unavailable", "error", err)
			s.Warnings = append(s.Warnings, "system audio unavailable: "+err.Error())
		} else {
			s.SystemAudio = src
		}
	}

	log.Info("capture acquired", logging.KeyTarget, s.Target.ID, "bounds", s.Video.Bounds.String(), "systemAudio", s.SystemAudio != nil)
	return s, nil
}

// OpenMicrophone opens the default microphone.
func (r *Registry) OpenMicrophone(ctx context.Context) (audio.Source, error) {
	if r.devices.Microphone == nil {
		return nil, audio.ErrNoDevice
	}
	return r.openAudio(ctx, r.devices.Microphone)
}

// withFrameRate inserts -framerate before the final -i so it applies to
// the capture input.
func withFrameRate(input []string, fps int) []string {
	out := make([]string, 0, len(input)+2)
	at := len(input)
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] == "-i" {
			at = i
			break
		}
	}
	out = append(out, input[:at]...)
	out = append(out, "-framerate", strconv.Itoa(fps))
	return append(out, input[at:]...)
}
