package ota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/otad/internal/otad/slot"
	"github.com/autopeer-io/otad/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/otad/internal/pkg/util/fsm"
	"github.com/autopeer-io/otad/pkg/log"
)

// SlotManager is the storage the engine writes images into.
// *slot.Manager implements it.
type SlotManager interface {
	NextTargetSlot() (slot.Slot, error)
	OpenForWrite(ctx context.Context, s slot.Slot) (*slot.WriteHandle, error)
	Append(h *slot.WriteHandle, p []byte) error
	FinalizeAndSwitchBoot(ctx context.Context, h *slot.WriteHandle) error
	Abort(h *slot.WriteHandle)
}

// Restarter restarts the device into the committed image.
type Restarter interface {
	Reboot(ctx context.Context) error
}

// rebootTimeout bounds the Reboot call made by the restart timer.
const rebootTimeout = 30 * time.Second

// Engine owns the single active update session.
type Engine struct {
	slots        SlotManager
	restarter    Restarter
	clock        clock.WithDelayedExecution
	restartDelay time.Duration

	obsMu     sync.RWMutex
	observers []Observer

	// mu guards the fields below. Lock order is session.mu before mu.
	mu        sync.Mutex
	seq       uint64
	active    *session
	restartAt time.Time
	last      *Outcome
}

// NewEngine returns an idle engine writing through slots.
func NewEngine(slots SlotManager, restarter Restarter, opts ...Option) *Engine {
	e := &Engine{
		slots:        slots,
		restarter:    restarter,
		clock:        clock.RealClock{},
		restartDelay: DefaultRestartDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddObserver registers o for every later session event.
func (e *Engine) AddObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) notify(ev SessionEvent) {
	ev.At = e.clock.Now()

	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, o := range e.observers {
		o.OnSessionEvent(ev)
	}
}

// BeginUpload starts a session writing to the slot that is not the boot
// target. It fails fast with ErrSessionBusy when a session is active.
func (e *Engine) BeginUpload(ctx context.Context, opts ...UploadOption) (SessionHandle, error) {
	o := &uploadOptions{source: "unknown"}
	for _, opt := range opts {
		opt(o)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		metrics.SessionRejectedTotal.Inc()
		return SessionHandle{}, ErrSessionBusy
	}
	if !e.restartAt.IsZero() {
		metrics.SessionRejectedTotal.Inc()
		return SessionHandle{}, fmt.Errorf("%w: restart pending", ErrSessionBusy)
	}

	target, err := e.slots.NextTargetSlot()
	if err != nil {
		return SessionHandle{}, err
	}
	if o.expectedSize > target.Capacity {
		return SessionHandle{}, &slot.WriteError{
			Slot: target.ID,
			Err:  fmt.Errorf("%w: announced %d > %d", slot.ErrCapacityExceeded, o.expectedSize, target.Capacity),
		}
	}

	wh, err := e.slots.OpenForWrite(ctx, target)
	if err != nil {
		return SessionHandle{}, err
	}

	e.seq++
	s := newSession(e.seq, string(uuid.NewUUID()), target, wh, o, e.clock.Now(), e.notify)
	if err := s.fsm.Event(ctx, eventBegin); err != nil {
		e.slots.Abort(wh)
		return SessionHandle{}, fmt.Errorf("start session: %w", fsmutil.Cause(err))
	}
	e.active = s
	metrics.SessionActive.Set(1)

	log.Info("Update session started",
		"session", s.id,
		"source", s.source,
		"slot", target.ID,
		"expected", o.expectedSize)

	return SessionHandle{seq: s.seq, id: s.id}, nil
}

// Active returns the handle of the active session, if any.
func (e *Engine) Active() (SessionHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return SessionHandle{}, false
	}
	return SessionHandle{seq: e.active.seq, id: e.active.id}, true
}

func (e *Engine) lookup(h SessionHandle) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil && e.active.seq == h.seq {
		return e.active, nil
	}
	if h.seq != 0 && h.seq <= e.seq {
		return nil, ErrSessionClosed
	}
	return nil, ErrNoActiveSession
}

// FeedChunk appends p to the session's slot. Any failure aborts the session
// and is returned unchanged; nothing is retried.
func (e *Engine) FeedChunk(ctx context.Context, h SessionHandle, p []byte) error {
	s, err := e.lookup(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateWriting {
		return ErrSessionClosed
	}
	if err := e.slots.Append(s.handle, p); err != nil {
		e.abortLocked(ctx, s, err)
		return err
	}
	s.written.Add(int64(len(p)))
	return nil
}

// EndUpload finalizes the session. A committed outcome means the boot
// selector now names the session's slot and a restart is scheduled. An
// aborted outcome is returned together with its cause.
func (e *Engine) EndUpload(ctx context.Context, h SessionHandle) (Outcome, error) {
	s, err := e.lookup(h)
	if err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateWriting {
		return Outcome{}, ErrSessionClosed
	}

	// A canceled caller must not strand the session between states.
	fsmCtx := context.WithoutCancel(ctx)

	if err := s.fsm.Event(fsmCtx, eventEnd); err != nil {
		cause := fsmutil.Cause(err)
		return e.abortLocked(ctx, s, cause), cause
	}

	if err := e.slots.FinalizeAndSwitchBoot(ctx, s.handle); err != nil {
		return e.abortLocked(ctx, s, err), err
	}

	if err := s.fsm.Event(fsmCtx, eventCommit); err != nil {
		// The boot selector already names the new slot.
		log.Error(err, "Session state did not follow the commit", "session", s.id)
	}

	out := e.outcome(s, ResultCommitted)
	e.finish(s, &out, true)

	log.Info("Update committed, restart scheduled",
		"session", s.id,
		"slot", s.target.ID,
		"written", out.Written,
		"restartAt", out.RestartAt)

	return out, nil
}

// Abort ends the session without touching the boot selector. Aborting a
// session that already finished returns ErrSessionClosed.
func (e *Engine) Abort(ctx context.Context, h SessionHandle, reason string) error {
	s, err := e.lookup(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State().Terminal() {
		return ErrSessionClosed
	}
	if reason == "" {
		reason = "aborted by caller"
	}
	e.abortLocked(ctx, s, errors.New(reason))
	return nil
}

// abortLocked moves s to Aborted and releases its slot. s.mu must be held.
// Transport drops arrive with ctx already canceled, so the transition
// ignores cancellation.
func (e *Engine) abortLocked(ctx context.Context, s *session, cause error) Outcome {
	s.reason = cause.Error()
	e.slots.Abort(s.handle)

	if err := s.fsm.Event(context.WithoutCancel(ctx), eventAbort); err != nil {
		log.Warn("Session state did not follow the abort", "session", s.id, "error", err)
	}

	out := e.outcome(s, ResultAborted)
	e.finish(s, &out, false)

	log.Warn("Update session aborted",
		"session", s.id,
		"slot", s.target.ID,
		"written", out.Written,
		"reason", out.Reason)
	return out
}

func (e *Engine) outcome(s *session, result Result) Outcome {
	return Outcome{
		Result:     result,
		Session:    s.id,
		Source:     s.source,
		Slot:       s.target.ID,
		Written:    s.written.Load(),
		Reason:     s.reason,
		FinishedAt: e.clock.Now(),
	}
}

// finish releases the single-flight guard. A committed session keeps new
// sessions out until the device restarts.
func (e *Engine) finish(s *session, out *Outcome, restart bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if restart {
		e.restartAt = out.FinishedAt.Add(e.restartDelay)
		out.RestartAt = e.restartAt
		e.clock.AfterFunc(e.restartDelay, e.restart)
	}
	if e.active == s {
		e.active = nil
	}
	last := *out
	e.last = &last

	metrics.SessionActive.Set(0)
	metrics.SessionsTotal.WithLabelValues(string(out.Result), s.source).Inc()
	metrics.SessionDuration.WithLabelValues(string(out.Result)).Observe(out.FinishedAt.Sub(s.startedAt).Seconds())
}

func (e *Engine) restart() {
	ctx, cancel := context.WithTimeout(context.Background(), rebootTimeout)
	defer cancel()

	log.Info("Restarting into the committed image")
	if err := e.restarter.Reboot(ctx); err != nil {
		// New sessions stay refused: the slot that is not the boot target
		// is the one running right now.
		log.Error(err, "Device restart failed, a manual reset is required")
	}
}

// Status returns a snapshot of the engine. It does not wait for chunk writes.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		RestartPending: !e.restartAt.IsZero(),
		RestartAt:      e.restartAt,
	}
	if e.last != nil {
		last := *e.last
		st.Last = &last
	}
	active := e.active
	e.mu.Unlock()

	if active != nil {
		st.Active = active.status()
	}
	return st
}
