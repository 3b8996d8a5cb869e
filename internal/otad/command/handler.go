package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/pkg/log"
)

var (
	errPullDisabled = errors.New("pull installs are disabled on this device")
	errNoSession    = errors.New("no update session is active")
)

// HandleCommand runs cmd to completion and reports the result on the ack
// topic. Only transport failures are returned.
func (m *Module) HandleCommand(_ context.Context, cmd *core.Command) error {
	log.Info(">>> PROCESSING COMMAND <<<", "type", cmd.Type, "id", cmd.ID, "object", cmd.Object)

	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	switch cmd.Type {
	case core.CommandPull:
		if err := m.ack(ctx, cmd, core.CommandAccepted, ""); err != nil {
			return err
		}
		err = m.pull(ctx, cmd)
	case core.CommandAbort:
		err = m.abort(ctx, cmd)
	default:
		err = fmt.Errorf("unknown command type %q", cmd.Type)
	}

	if err != nil {
		log.Warn("Command failed", "id", cmd.ID, "type", cmd.Type, "error", err)
		return m.ack(ctx, cmd, core.CommandFailed, err.Error())
	}
	return m.ack(ctx, cmd, core.CommandSucceeded, "")
}

func (m *Module) pull(ctx context.Context, cmd *core.Command) error {
	if m.puller == nil {
		return errPullDisabled
	}
	out, err := m.puller.Pull(ctx, cmd.Object)
	if err != nil {
		return err
	}
	log.Info("Pull install committed", "id", cmd.ID, "slot", out.Slot, "restartAt", out.RestartAt)
	return nil
}

func (m *Module) abort(ctx context.Context, cmd *core.Command) error {
	h, ok := m.sessions.Active()
	if !ok {
		return errNoSession
	}
	reason := cmd.Reason
	if reason == "" {
		reason = "aborted by fleet command " + cmd.ID
	}
	if err := m.sessions.Abort(ctx, h, reason); err != nil && !errors.Is(err, ota.ErrSessionClosed) {
		return err
	}
	return nil
}

func (m *Module) ack(ctx context.Context, cmd *core.Command, status core.CommandStatus, msg string) error {
	if m.sender == nil {
		return nil
	}
	return m.sender.SendJSON(ctx, core.EventCommandAck, core.CommandAck{
		ID:        cmd.ID,
		DeviceID:  m.deviceID,
		Status:    status,
		Message:   msg,
		Timestamp: m.clock.Now().UTC(),
	})
}
