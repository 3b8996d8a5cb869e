package ota

import (
	"strconv"
	"time"

	"github.com/autopeer-io/otad/internal/otad/slot"
)

// SessionHandle identifies one session to the transport that began it.
// The zero value names no session.
type SessionHandle struct {
	seq uint64
	id  string
}

// ID returns the session identifier used in logs and status reports.
func (h SessionHandle) ID() string { return h.id }

func (h SessionHandle) String() string {
	if h.seq == 0 {
		return "<none>"
	}
	return h.id + "#" + strconv.FormatUint(h.seq, 10)
}

// Result is the terminal outcome of a session.
type Result string

const (
	ResultCommitted Result = "committed"
	ResultAborted   Result = "aborted"
)

// Outcome is returned by EndUpload and kept as the engine's last result.
type Outcome struct {
	Result  Result  `json:"result"`
	Session string  `json:"session"`
	Source  string  `json:"source,omitempty"`
	Slot    slot.ID `json:"slot"`
	Written int64   `json:"written"`

	// Reason explains an aborted outcome.
	Reason string `json:"reason,omitempty"`

	// RestartAt is when the device restarts into a committed image.
	RestartAt  time.Time `json:"restartAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt"`
}

// SessionStatus is a snapshot of the active session.
type SessionStatus struct {
	ID           string    `json:"id"`
	Source       string    `json:"source,omitempty"`
	State        State     `json:"state"`
	Slot         slot.ID   `json:"slot"`
	Written      int64     `json:"written"`
	ExpectedSize int64     `json:"expectedSize,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
}

// Status is a snapshot of the engine.
type Status struct {
	Active         *SessionStatus `json:"active,omitempty"`
	RestartPending bool           `json:"restartPending"`
	RestartAt      time.Time      `json:"restartAt,omitzero"`
	Last           *Outcome       `json:"last,omitempty"`
}

// SessionEvent reports a session entering a new state.
type SessionEvent struct {
	Session  string    `json:"session"`
	Source   string    `json:"source,omitempty"`
	State    State     `json:"state"`
	Slot     slot.ID   `json:"slot"`
	Written  int64     `json:"written"`
	Expected int64     `json:"expected,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives session events. It is called synchronously while the
// engine holds its locks, so it must return quickly and must not call back
// into the Engine.
type Observer interface {
	OnSessionEvent(ev SessionEvent)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ev SessionEvent)

func (f ObserverFunc) OnSessionEvent(ev SessionEvent) { f(ev) }
