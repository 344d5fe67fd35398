package session

import (
	"context"
	"time"

	"github.com/realsaraf/blooom/internal/audio"
	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/config"
	"github.com/realsaraf/blooom/internal/overlay"
	"github.com/realsaraf/blooom/internal/storage"
)

// Sources lists capture targets.
type Sources interface {
	ListTargets(ctx context.Context) ([]capture.Target, error)
}

// Acquirer opens a target for recording.
type Acquirer interface {
	Acquire(ctx context.Context, target capture.Target, withSystemAudio bool) (*capture.Stream, error)
}

// MicrophoneOpener opens the default microphone.
type MicrophoneOpener interface {
	OpenMicrophone(ctx context.Context) (audio.Source, error)
}

// Persister writes finished recordings.
type Persister interface {
	Persist(ctx context.Context, payload []byte, name, directory string) (string, error)
}

// Settings is the part of the settings store read when a session starts.
type Settings interface {
	AudioPolicy() config.AudioPolicy
	OutputDirectory() string
	MicrophoneFailurePolicy() string
	DefaultQuality() string
}

// HostChrome is the UI shell's main window.
type HostChrome interface {
	Minimize(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Overlays opens and closes the capture marker.
type Overlays interface {
	Open(ctx context.Context, owner string, bounds capture.Rect) overlay.Handle
	Close(ctx context.Context, h overlay.Handle)
}

// Archive receives completed recordings for mirroring.
type Archive interface {
	Enqueue(localPath string) (storage.Job, bool)
}

// Clock abstracts time for the elapsed counter.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the recorder uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type noopChrome struct{}

func (noopChrome) Minimize(context.Context) error { return nil }
func (noopChrome) Restore(context.Context) error  { return nil }
