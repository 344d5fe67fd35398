// Package control exposes the recorder to a UI shell over a local
// websocket. Shells send commands and receive results, session events and
// window pushes on the same connection.
package control

import (
	"encoding/json"

	"github.com/realsaraf/blooom/internal/capture"
)

// Command types sent by UI shells.
const (
	TypeGetSources         = "get-sources"
	TypeGetConfig          = "get-config"
	TypeUpdateConfig       = "update-config"
	TypeSetOutputDirectory = "set-output-directory"
	TypeStartRecording     = "start-recording"
	TypePauseRecording     = "pause-recording"
	TypeResumeRecording    = "resume-recording"
	TypeStopRecording      = "stop-recording"
	TypeGetSession         = "get-session"
	TypeOpenFileLocation   = "open-file-location"
	TypeGetAppVersion      = "get-app-version"
	TypeGetHealth          = "get-health"
	TypeListArchive        = "list-archive"
)

// Message types sent to UI shells.
const (
	TypeResult = "result"
	TypeEvent  = "event"
	TypePush   = "push"
)

// Push actions the shell is expected to perform.
const (
	ActionWindowMinimize = "window.minimize"
	ActionWindowRestore  = "window.restore"
	ActionOverlayOpen    = "overlay.open"
	ActionOverlayClose   = "overlay.close"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Command is a request from a shell. ID is echoed in the result.
type Command struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Result answers one Command.
type Result struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// EventMessage carries a recorder event.
type EventMessage struct {
	Type  string `json:"type"`
	Event any    `json:"event"`
}

// Push asks the shell to do something with its windows.
type Push struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// Source is a capture target as shown in a shell's source picker.
type Source struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      capture.Kind `json:"kind"`
	Bounds    capture.Rect `json:"bounds"`
	Primary   bool         `json:"primary,omitempty"`
	Thumbnail string       `json:"thumbnail,omitempty"`
}

// StartRecordingRequest is the start-recording payload. Nil mute flags
// fall back to the stored settings.
type StartRecordingRequest struct {
	SourceID        string `json:"sourceId" validate:"required,max=256"`
	MuteMicrophone  *bool  `json:"muteMicrophone,omitempty"`
	MuteSystemAudio *bool  `json:"muteSystemAudio,omitempty"`
}

// PathRequest is the payload of set-output-directory and open-file-location.
type PathRequest struct {
	Path string `json:"path" validate:"required,max=4096"`
}
