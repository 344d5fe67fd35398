// Package encoder turns a capture stream and an audio source into WebM
// (VP9 video, Opus audio) delivered as an ordered series of chunks.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/realsaraf/blooom/internal/audio"
	"github.com/realsaraf/blooom/internal/capture"
)

type Codec string

const (
	CodecVP9  Codec = "vp9"
	CodecOpus Codec = "opus"
)

// Profile is the fixed output format.
type Profile struct {
	MimeType   string
	Extension  string
	VideoCodec Codec
	AudioCodec Codec
}

// WebM is the only profile recordings use.
var WebM = Profile{
	MimeType:   "video/webm;codecs=vp9,opus",
	Extension:  "webm",
	VideoCodec: CodecVP9,
	AudioCodec: CodecOpus,
}

type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

// videoBitrate maps a preset to a VP9 target bitrate.
func (q QualityPreset) videoBitrate() int {
	switch q {
	case QualityLow:
		return 1_000_000
	case QualityMedium:
		return 2_500_000
	default:
		return 5_000_000
	}
}

// DefaultTimeslice is the chunk cadence.
const DefaultTimeslice = time.Second

var (
	ErrNotRunning     = errors.New("encoder: not running")
	ErrAlreadyStopped = errors.New("encoder: already stopped")
)

// Sink receives encoder output. Calls are made from one goroutine, in
// order: any number of Chunk calls followed by exactly one Finished.
type Sink interface {
	// Chunk delivers the next piece of the container. Concatenating every
	// chunk in delivery order yields the complete file.
	Chunk(data []byte)
	// Finished reports the end of output. err is nil after a requested
	// stop and non-nil when the encoder ended on its own.
	Finished(err error)
}

// Request describes one recording.
type Request struct {
	Video     capture.VideoInput
	Audio     audio.Source // may be silent; never nil
	Quality   QualityPreset
	Timeslice time.Duration
	Sink      Sink
}

// Encoder starts recordings.
type Encoder interface {
	Start(ctx context.Context, req Request) (Process, error)
}

// Process is one running recording.
type Process interface {
	// Pause suspends encoding; no chunks are produced while paused and the
	// paused interval is excluded from the output timeline.
	Pause() error
	// Resume continues after Pause.
	Resume() error
	// Stop finishes the container. Remaining output is delivered before
	// Sink.Finished(nil). Calling Stop again returns ErrAlreadyStopped.
	Stop() error
}

// InterruptedError is reported through Sink.Finished when the encoder
// exited without being asked to.
type InterruptedError struct {
	Reason string
	Err    error
}

func (e *InterruptedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("encoder interrupted: %v", e.Err)
	}
	return fmt.Sprintf("encoder interrupted: %v: %s", e.Err, e.Reason)
}

func (e *InterruptedError) Unwrap() error { return e.Err }
