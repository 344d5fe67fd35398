package session

import (
	"errors"
	"fmt"
)

// Kind classifies recording failures and warnings.
type Kind string

const (
	// KindCaptureUnavailable: no usable capture targets; a session never starts.
	KindCaptureUnavailable Kind = "CaptureUnavailable"
	// KindNoTargetSelected: start was called without a target.
	KindNoTargetSelected Kind = "NoTargetSelected"
	// KindAcquisitionFailed: permission denied or the target vanished.
	KindAcquisitionFailed Kind = "AcquisitionFailed"
	// KindDeviceWarning: an audio device is unavailable; recording continues.
	KindDeviceWarning Kind = "DeviceWarning"
	// KindStreamInterrupted: the capture ended on its own; partial output is kept.
	KindStreamInterrupted Kind = "StreamInterrupted"
	// KindStorageError: the finished recording could not be written.
	KindStorageError Kind = "StorageError"
)

var (
	// ErrSessionActive is returned by Start while another session is running.
	ErrSessionActive = errors.New("session: a recording is already in progress")
	// ErrNoSession is returned by commands that need a session when none exists.
	ErrNoSession = errors.New("session: no recording in progress")
	// ErrInvalidState is returned for commands not allowed in the current state.
	ErrInvalidState = errors.New("session: command not allowed in current state")
	// ErrClosed is returned after the recorder has shut down.
	ErrClosed = errors.New("session: recorder closed")
)

var defaultMessages = map[Kind]string{
	KindCaptureUnavailable: "Screen capture is unavailable. Check screen recording permissions.",
	KindNoTargetSelected:   "Please select a source to record.",
	KindAcquisitionFailed:  "Could not start capturing the selected source.",
	KindDeviceWarning:      "An audio device is unavailable; recording continues without it.",
	KindStreamInterrupted:  "The recording was interrupted; the captured part was kept.",
	KindStorageError:       "The recording could not be saved.",
}

// Error is a classified failure with one user-facing message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// NewError builds an Error of kind k. An empty msg uses the kind's default
// message.
func NewError(k Kind, msg string, err error) *Error {
	if msg == "" {
		msg = defaultMessages[k]
	}
	return &Error{Kind: k, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the kind ends a session.
func (k Kind) Fatal() bool {
	switch k {
	case KindDeviceWarning, KindStreamInterrupted:
		return false
	}
	return true
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
