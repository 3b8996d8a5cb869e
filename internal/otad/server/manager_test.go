package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerStopsAllOnFailure(t *testing.T) {
	boom := errors.New("bind: address in use")
	stopped := make(chan struct{})

	m := NewManager(
		NewFunc("blocking", func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		}),
	)
	m.Add(NewFunc("failing", func(context.Context) error { return boom }))

	assert.ErrorIs(t, m.Start(context.Background()), boom)
	<-stopped
}

func TestManagerCleanShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(NewFunc("a", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	cancel()
	assert.NoError(t, m.Start(ctx))
}
