// Package command executes fleet commands received over MQTT.
package command

import (
	"context"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/internal/otad/ota"
)

// Puller installs an image stored under a key.
type Puller interface {
	Pull(ctx context.Context, key string) (ota.Outcome, error)
}

// Sessions exposes the active session for remote aborts.
type Sessions interface {
	Active() (ota.SessionHandle, bool)
	Abort(ctx context.Context, h ota.SessionHandle, reason string) error
}

// Module handles pull and abort commands.
type Module struct {
	deviceID string
	sessions Sessions
	puller   Puller
	clock    clock.PassiveClock

	// ctx outlives single messages so a pull survives its handler.
	ctx    context.Context
	sender core.Sender
}

var _ core.Module = (*Module)(nil)

// New returns the command module. puller may be nil when pull installs are
// disabled.
func New(deviceID string, sessions Sessions, puller Puller) *Module {
	return &Module{
		deviceID: deviceID,
		sessions: sessions,
		puller:   puller,
		clock:    clock.RealClock{},
	}
}

func (m *Module) Name() string {
	return "Command"
}

func (m *Module) Setup(ctx context.Context, sender core.Sender) error {
	m.ctx = ctx
	m.sender = sender
	return nil
}

func (m *Module) Routes() map[core.EventType]core.HandlerFunc {
	return map[core.EventType]core.HandlerFunc{
		core.EventCommand: core.JSONAdapter(m.HandleCommand),
	}
}
