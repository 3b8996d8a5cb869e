package ota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/otad/internal/otad/slot"
	fsmutil "github.com/autopeer-io/otad/internal/pkg/util/fsm"
)

func TestStateTerminal(t *testing.T) {
	for state, terminal := range map[State]bool{
		StateIdle:       false,
		StateWriting:    false,
		StateFinalizing: false,
		StateCommitted:  true,
		StateAborted:    true,
	} {
		assert.Equal(t, terminal, state.Terminal(), state)
	}
}

func TestSessionTransitions(t *testing.T) {
	ctx := context.Background()
	var seen []State
	s := newSession(1, "s1", slot.Slot{ID: "b"}, nil, &uploadOptions{source: "test"}, time.Now(),
		func(ev SessionEvent) { seen = append(seen, ev.State) })

	assert.Equal(t, StateIdle, s.State())
	assert.Error(t, s.fsm.Event(ctx, eventCommit), "commit is only reachable from Finalizing")

	require.NoError(t, s.fsm.Event(ctx, eventBegin))

	err := s.fsm.Event(ctx, eventEnd)
	assert.ErrorIs(t, fsmutil.Cause(err), ErrEmptyUpload)
	assert.Equal(t, StateWriting, s.State())

	s.written.Add(10)
	require.NoError(t, s.fsm.Event(ctx, eventEnd))
	require.NoError(t, s.fsm.Event(ctx, eventCommit))

	assert.Error(t, s.fsm.Event(ctx, eventAbort), "Committed is terminal")
	assert.Equal(t, []State{StateWriting, StateFinalizing, StateCommitted}, seen)
}
