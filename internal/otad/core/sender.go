package core

import (
	"context"
)

// Sender publishes events to the fleet hub.
type Sender interface {
	Send(ctx context.Context, event EventType, payload []byte) error
	SendJSON(ctx context.Context, event EventType, v any) error
}
