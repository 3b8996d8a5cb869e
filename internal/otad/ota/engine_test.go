package ota

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/otad/internal/otad/slot"
)

type fakeRestarter struct {
	calls atomic.Int32
	err   error
}

func (r *fakeRestarter) Reboot(context.Context) error {
	r.calls.Add(1)
	return r.err
}

type recorder struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (r *recorder) OnSessionEvent(ev SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.State)
	}
	return out
}

type fixture struct {
	engine    *Engine
	slots     *slot.Manager
	medium    *slot.MemMedium
	store     *slot.MemBootStore
	clock     *clocktesting.FakeClock
	restarter *fakeRestarter
	events    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		medium:    slot.NewMemMedium(),
		store:     slot.NewMemBootStore(),
		clock:     clocktesting.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		restarter: &fakeRestarter{},
		events:    &recorder{},
	}

	var err error
	f.slots, err = slot.NewManager(f.medium, f.store,
		[]slot.Spec{{ID: "a", Capacity: 1024}, {ID: "b", Capacity: 1024}},
		slot.WithClock(f.clock))
	require.NoError(t, err)

	f.engine = NewEngine(f.slots, f.restarter, WithClock(f.clock), WithObserver(f.events))
	return f
}

func (f *fixture) boot(t *testing.T) slot.ID {
	t.Helper()
	s, err := f.slots.BootTarget()
	require.NoError(t, err)
	return s.ID
}

func TestCommitSwitchesBootAndSchedulesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, slot.ID("a"), f.boot(t))

	h, err := f.engine.BeginUpload(ctx, WithSource("test"))
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, bytes.Repeat([]byte{1}, 1024)))

	out, err := f.engine.EndUpload(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, out.Result)
	assert.Equal(t, slot.ID("b"), out.Slot)
	assert.Equal(t, int64(1024), out.Written)
	assert.Equal(t, f.clock.Now().Add(DefaultRestartDelay), out.RestartAt)

	assert.Equal(t, slot.ID("b"), f.boot(t))
	assert.Equal(t, []State{StateWriting, StateFinalizing, StateCommitted}, f.events.states())

	st := f.engine.Status()
	assert.Nil(t, st.Active)
	assert.True(t, st.RestartPending)
	require.NotNil(t, st.Last)
	assert.Equal(t, ResultCommitted, st.Last.Result)

	assert.Zero(t, f.restarter.calls.Load())
	f.clock.Step(DefaultRestartDelay)
	require.Eventually(t, func() bool { return f.restarter.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestOverflowAbortsAndKeepsBoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, make([]byte, 600)))

	err = f.engine.FeedChunk(ctx, h, make([]byte, 600))
	var writeErr *slot.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, slot.ErrCapacityExceeded)

	assert.Equal(t, slot.ID("a"), f.boot(t))
	assert.Equal(t, []State{StateWriting, StateAborted}, f.events.states())

	st := f.engine.Status()
	assert.Nil(t, st.Active)
	assert.False(t, st.RestartPending)
	require.NotNil(t, st.Last)
	assert.Equal(t, ResultAborted, st.Last.Result)
	assert.Equal(t, int64(600), st.Last.Written)

	assert.ErrorIs(t, f.engine.FeedChunk(ctx, h, []byte{1}), ErrSessionClosed)
	_, err = f.engine.EndUpload(ctx, h)
	assert.ErrorIs(t, err, ErrSessionClosed)

	// a fresh upload may start after the abort
	h2, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h.ID(), h2.ID())
}

func TestFeedChunkWithoutSession(t *testing.T) {
	f := newFixture(t)

	err := f.engine.FeedChunk(context.Background(), SessionHandle{}, []byte("data"))
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Empty(t, f.events.states())
	assert.Zero(t, f.store.Stores)
	assert.Nil(t, f.engine.Status().Active)
}

func TestBeginWhileActiveIsBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)

	for _, n := range []int{0, 1, 512} {
		if n > 0 {
			require.NoError(t, f.engine.FeedChunk(ctx, h, make([]byte, n)))
		}
		_, err := f.engine.BeginUpload(ctx)
		assert.ErrorIs(t, err, ErrSessionBusy)
	}

	active, ok := f.engine.Active()
	require.True(t, ok)
	assert.Equal(t, h, active)
}

func TestConcurrentBeginSingleFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		started atomic.Int32
		busy    atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.BeginUpload(ctx)
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrSessionBusy):
				busy.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(15), busy.Load())
}

func TestEndEmptyUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, nil))

	out, err := f.engine.EndUpload(ctx, h)
	assert.ErrorIs(t, err, ErrEmptyUpload)
	assert.Equal(t, ResultAborted, out.Result)
	assert.Equal(t, slot.ID("a"), f.boot(t))
	assert.Zero(t, f.store.Stores)
	assert.Equal(t, []State{StateWriting, StateAborted}, f.events.states())
}

func TestAbortIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("partial")))

	require.NoError(t, f.engine.Abort(ctx, h, "connection reset"))
	assert.ErrorIs(t, f.engine.Abort(ctx, h, "again"), ErrSessionClosed)
	assert.Equal(t, slot.ID("a"), f.boot(t))

	last := f.engine.Status().Last
	require.NotNil(t, last)
	assert.Equal(t, "connection reset", last.Reason)
}

func TestAbortWithCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("partial")))

	cancel()
	require.NoError(t, f.engine.Abort(ctx, h, "connection reset"))

	assert.Equal(t, []State{StateWriting, StateAborted}, f.events.states())
	assert.Equal(t, slot.ID("a"), f.boot(t))
	_, active := f.engine.Active()
	assert.False(t, active)
	assert.ErrorIs(t, f.engine.Abort(context.Background(), h, "again"), ErrSessionClosed)
}

func TestEndUploadWithCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("image")))

	cancel()
	out, err := f.engine.EndUpload(ctx, h)
	require.Error(t, err)
	assert.Equal(t, ResultAborted, out.Result)

	assert.Equal(t, []State{StateWriting, StateFinalizing, StateAborted}, f.events.states())
	assert.Equal(t, slot.ID("a"), f.boot(t))
	assert.False(t, f.engine.Status().RestartPending)
}

func TestAbortAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("image")))
	_, err = f.engine.EndUpload(ctx, h)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Abort(ctx, h, "late"), ErrSessionClosed)
	assert.Equal(t, slot.ID("b"), f.boot(t))
	assert.Equal(t, 1, f.store.Stores)
}

func TestAbortWithoutSession(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.engine.Abort(context.Background(), SessionHandle{}, ""), ErrNoActiveSession)
}

func TestFinalizeFailureKeepsBoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.StoreErr = errors.New("flash write failed")

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("image")))

	out, err := f.engine.EndUpload(ctx, h)
	var finErr *slot.FinalizeError
	require.ErrorAs(t, err, &finErr)
	assert.Equal(t, ResultAborted, out.Result)
	assert.Equal(t, slot.ID("a"), f.boot(t))
	assert.False(t, f.engine.Status().RestartPending)
	assert.Equal(t, []State{StateWriting, StateFinalizing, StateAborted}, f.events.states())

	f.clock.Step(time.Minute)
	assert.Zero(t, f.restarter.calls.Load())
}

func TestEraseFailureLeavesEngineIdle(t *testing.T) {
	f := newFixture(t)
	f.medium.EraseErr = errors.New("locked")

	_, err := f.engine.BeginUpload(context.Background())
	var eraseErr *slot.EraseError
	require.ErrorAs(t, err, &eraseErr)

	_, ok := f.engine.Active()
	assert.False(t, ok)

	f.medium.EraseErr = nil
	_, err = f.engine.BeginUpload(context.Background())
	assert.NoError(t, err)
}

func TestExpectedSizeTooLarge(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.BeginUpload(context.Background(), WithExpectedSize(4096))
	assert.ErrorIs(t, err, slot.ErrCapacityExceeded)
	assert.False(t, f.medium.IsOpen("b"), "the slot must not be erased")

	_, ok := f.engine.Active()
	assert.False(t, ok)
}

func TestRestartPendingRefusesNewSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.restarter.err = errors.New("reboot not permitted")

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("image")))
	_, err = f.engine.EndUpload(ctx, h)
	require.NoError(t, err)

	f.clock.Step(DefaultRestartDelay)
	require.Eventually(t, func() bool { return f.restarter.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = f.engine.BeginUpload(ctx)
	assert.ErrorIs(t, err, ErrSessionBusy)
}

func TestCustomRestartDelay(t *testing.T) {
	f := newFixture(t)
	f.engine = NewEngine(f.slots, f.restarter, WithClock(f.clock), WithRestartDelay(5*time.Second))
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, []byte("image")))
	_, err = f.engine.EndUpload(ctx, h)
	require.NoError(t, err)

	f.clock.Step(4 * time.Second)
	assert.Never(t, func() bool { return f.restarter.calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	f.clock.Step(time.Second)
	require.Eventually(t, func() bool { return f.restarter.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStatusDuringSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.engine.BeginUpload(ctx, WithSource("http"), WithExpectedSize(100))
	require.NoError(t, err)
	require.NoError(t, f.engine.FeedChunk(ctx, h, make([]byte, 40)))

	st := f.engine.Status()
	require.NotNil(t, st.Active)
	assert.Equal(t, h.ID(), st.Active.ID)
	assert.Equal(t, StateWriting, st.Active.State)
	assert.Equal(t, slot.ID("b"), st.Active.Slot)
	assert.Equal(t, int64(40), st.Active.Written)
	assert.Equal(t, int64(100), st.Active.ExpectedSize)
	assert.Equal(t, "http", st.Active.Source)
	assert.False(t, st.RestartPending)
}

func TestAddObserver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var got []SessionEvent
	f.engine.AddObserver(ObserverFunc(func(ev SessionEvent) { got = append(got, ev) }))

	h, err := f.engine.BeginUpload(ctx, WithSource("mqtt"))
	require.NoError(t, err)
	require.NoError(t, f.engine.Abort(ctx, h, "operator request"))

	require.Len(t, got, 2)
	assert.Equal(t, StateAborted, got[1].State)
	assert.Equal(t, "operator request", got[1].Reason)
	assert.Equal(t, "mqtt", got[1].Source)
	assert.Equal(t, h.ID(), got[1].Session)
}
