package session

import (
	"fmt"
	"time"

	"github.com/realsaraf/blooom/internal/capture"
)

// State is a recording session's lifecycle position.
type State int

const (
	Idle State = iota
	Requesting
	Recording
	Paused
	Finalizing
	Completed
	Failed
)

var stateNames = [...]string{
	Idle:       "idle",
	Requesting: "requesting",
	Recording:  "recording",
	Paused:     "paused",
	Finalizing: "finalizing",
	Completed:  "completed",
	Failed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

// Active reports whether a session in s blocks a new one.
func (s State) Active() bool {
	switch s {
	case Requesting, Recording, Paused, Finalizing:
		return true
	}
	return false
}

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// transitions lists every legal edge.
var transitions = map[State][]State{
	Idle:       {Requesting},
	Requesting: {Recording, Failed},
	Recording:  {Paused, Finalizing},
	Paused:     {Recording, Finalizing},
	Finalizing: {Completed, Failed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID             string         `json:"id"`
	State          State          `json:"state"`
	Target         capture.Target `json:"target"`
	ElapsedSeconds int            `json:"elapsedSeconds"`
	ChunkCount     int            `json:"chunkCount"`
	Bytes          int64          `json:"bytes"`
	OutputPath     string         `json:"outputPath,omitempty"`
	FailureReason  string         `json:"failureReason,omitempty"`
	FailureKind    Kind           `json:"failureKind,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	Interrupted    bool           `json:"interrupted,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	EndedAt        time.Time      `json:"endedAt,omitempty"`
}

// EventType names a recorder notification.
type EventType string

const (
	EventState   EventType = "state"
	EventTick    EventType = "tick"
	EventWarning EventType = "warning"
)

// Event is published to subscribers on every transition, elapsed-time
// change and warning.
type Event struct {
	Type    EventType `json:"type"`
	Session Snapshot  `json:"session"`
	Warning *Error    `json:"warning,omitempty"`
}
