package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandlerFunc handles the raw payload of an inbound event.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Module is a feature that exchanges events with the fleet hub.
type Module interface {
	Name() string

	Setup(ctx context.Context, sender Sender) error

	Routes() map[EventType]HandlerFunc
}

// JSONAdapter decodes the payload into T before calling fn.
func JSONAdapter[T any](fn func(ctx context.Context, msg *T) error) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		msg := new(T)
		if err := json.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("decode %T: %w", msg, err)
		}
		return fn(ctx, msg)
	}
}
