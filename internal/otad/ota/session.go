package ota

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/otad/internal/otad/slot"
	fsmutil "github.com/autopeer-io/otad/internal/pkg/util/fsm"
)

// State is the lifecycle state of an update session.
type State string

const (
	StateIdle       State = "Idle"
	StateWriting    State = "Writing"
	StateFinalizing State = "Finalizing"
	StateCommitted  State = "Committed"
	StateAborted    State = "Aborted"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

const (
	eventBegin  = "begin"
	eventEnd    = "end"
	eventCommit = "commit"
	eventAbort  = "abort"
)

// session is one in-flight upload. Its state only changes through fsm
// events; the engine performs the slot I/O around those events.
type session struct {
	seq       uint64
	id        string
	source    string
	target    slot.Slot
	expected  int64
	startedAt time.Time

	// mu serializes the operations that drive the state machine.
	mu     sync.Mutex
	fsm    *fsm.FSM
	handle *slot.WriteHandle
	reason string

	written atomic.Int64
}

func newSession(seq uint64, id string, target slot.Slot, h *slot.WriteHandle, o *uploadOptions, now time.Time, notify func(SessionEvent)) *session {
	s := &session{
		seq:       seq,
		id:        id,
		source:    o.source,
		target:    target,
		expected:  o.expectedSize,
		startedAt: now,
		handle:    h,
	}

	s.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventBegin, Src: []string{string(StateIdle)}, Dst: string(StateWriting)},
			{Name: eventEnd, Src: []string{string(StateWriting)}, Dst: string(StateFinalizing)},
			{Name: eventCommit, Src: []string{string(StateFinalizing)}, Dst: string(StateCommitted)},
			{Name: eventAbort, Src: []string{string(StateWriting), string(StateFinalizing)}, Dst: string(StateAborted)},
		},
		fsm.Callbacks{
			"before_" + eventEnd: fsmutil.WrapGuard(func(_ context.Context, _ *fsm.Event) error {
				if s.written.Load() == 0 {
					return ErrEmptyUpload
				}
				return nil
			}),
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if notify != nil {
					notify(s.event(State(e.Dst)))
				}
			},
		},
	)
	return s
}

// State returns the current state. It is safe to call while another
// goroutine drives the session.
func (s *session) State() State {
	return State(s.fsm.Current())
}

func (s *session) event(state State) SessionEvent {
	return SessionEvent{
		Session:  s.id,
		Source:   s.source,
		State:    state,
		Slot:     s.target.ID,
		Written:  s.written.Load(),
		Expected: s.expected,
		Reason:   s.reason,
	}
}

func (s *session) status() *SessionStatus {
	return &SessionStatus{
		ID:           s.id,
		Source:       s.source,
		State:        s.State(),
		Slot:         s.target.ID,
		Written:      s.written.Load(),
		ExpectedSize: s.expected,
		StartedAt:    s.startedAt,
	}
}
