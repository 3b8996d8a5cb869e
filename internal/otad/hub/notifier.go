package hub

import (
	"context"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/pkg/log"
)

// progressBuffer bounds the events queued while the broker is slow.
const progressBuffer = 32

// Notifier publishes session events as progress messages. The engine calls
// it under its locks, so events are queued and published by Run.
type Notifier struct {
	sender core.Sender
	queue  chan ota.SessionEvent
}

var _ ota.Observer = (*Notifier)(nil)

func NewNotifier(sender core.Sender) *Notifier {
	return &Notifier{
		sender: sender,
		queue:  make(chan ota.SessionEvent, progressBuffer),
	}
}

func (n *Notifier) OnSessionEvent(ev ota.SessionEvent) {
	select {
	case n.queue <- ev:
	default:
		log.Warn("Progress queue full, dropping event", "session", ev.Session, "state", ev.State)
	}
}

// Run publishes queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.queue:
			if err := n.sender.SendJSON(ctx, core.EventOTAProgress, ev); err != nil {
				log.Warn("Failed to publish update progress", "session", ev.Session, "state", ev.State, "error", err)
			}
		}
	}
}
