// Package hub connects the daemon to the fleet service over MQTT.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/pkg/log"
	"github.com/autopeer-io/otad/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/otad/pkg/mqtt/topic"
)

// Hub publishes device events and dispatches inbound commands.
type Hub struct {
	deviceID string

	mc     mqtt.Client
	topics *mqtttopic.Builder

	mu     sync.Mutex
	routes map[string]inbound
}

type inbound struct {
	segment string
	handler core.HandlerFunc
}

var _ core.Sender = (*Hub)(nil)

func New(deviceID string, client mqtt.Client, builder *mqtttopic.Builder) *Hub {
	return &Hub{
		deviceID: deviceID,
		mc:       client,
		topics:   builder,
		routes:   make(map[string]inbound),
	}
}

// Topic returns the topic event is exchanged on for this device.
func (b *Hub) Topic(event core.EventType) (string, error) {
	r, ok := events[event]
	if !ok {
		return "", fmt.Errorf("unmapped event: %s", event)
	}
	return b.topics.Build(r.segment, b.deviceID), nil
}

func (b *Hub) Send(ctx context.Context, event core.EventType, payload []byte) error {
	topic, err := b.Topic(event)
	if err != nil {
		return err
	}
	return b.mc.Publish(ctx, topic, 1, events[event].retain, payload)
}

func (b *Hub) SendJSON(ctx context.Context, event core.EventType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Send(ctx, event, payload)
}

// Register routes inbound messages for event to handler. It must be called
// before Start.
func (b *Hub) Register(event core.EventType, handler core.HandlerFunc) error {
	topic, err := b.Topic(event)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[topic] = inbound{segment: events[event].segment, handler: handler}
	return nil
}

// Use sets up a module and registers its routes.
func (b *Hub) Use(ctx context.Context, m core.Module) error {
	if err := m.Setup(ctx, b); err != nil {
		return fmt.Errorf("module %s setup failed: %w", m.Name(), err)
	}
	for event, handler := range m.Routes() {
		if err := b.Register(event, handler); err != nil {
			return fmt.Errorf("module %s register event %s failed: %w", m.Name(), event, err)
		}
	}
	return nil
}

func (b *Hub) IsConnected() bool {
	return b.mc.IsConnected()
}

// Start connects to the broker, subscribes every registered route and
// marks the device online.
func (b *Hub) Start(ctx context.Context) error {
	if err := b.mc.Start(ctx); err != nil {
		return err
	}

	if err := b.mc.AwaitConnection(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	routes := make(map[string]inbound, len(b.routes))
	for topic, in := range b.routes {
		routes[topic] = in
	}
	b.mu.Unlock()

	for topic, in := range routes {
		err := b.mc.Subscribe(ctx, topic, 1, func(c context.Context, received string, p []byte) {
			if !b.addressedToMe(in.segment, received) {
				log.Warn("Dropping message for another device", "topic", received)
				return
			}
			if handleErr := in.handler(c, p); handleErr != nil {
				log.Error(handleErr, "Handler execution failed", "topic", received)
			}
		})
		if err != nil {
			return err
		}
	}

	return b.SendJSON(ctx, core.EventOnline, core.OnlineStatus{DeviceID: b.deviceID, Online: true})
}

// addressedToMe reports whether topic is segment's topic for this device.
// Shared subscriptions and broker-side rewrites can deliver foreign topics.
func (b *Hub) addressedToMe(segment, topic string) bool {
	id, ok := b.topics.DeviceID(segment, topic)
	return ok && id == b.deviceID
}

// Stop marks the device offline and disconnects.
func (b *Hub) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if b.mc.IsConnected() {
		status := core.OnlineStatus{DeviceID: b.deviceID, Online: false, Reason: "Shutdown"}
		if err := b.SendJSON(ctx, core.EventOnline, status); err != nil {
			log.Warn("Failed to publish offline status", "error", err)
		}
	}

	log.Info("Disconnecting MQTT client...")
	b.mc.Disconnect(ctx)
}

// OfflineWill returns the will message payload announcing an unexpected
// disconnect. It carries no timestamp; the fleet uses its reception time.
func OfflineWill(deviceID string) []byte {
	payload, _ := json.Marshal(core.OnlineStatus{
		DeviceID: deviceID,
		Online:   false,
		Reason:   "UnexpectedDisconnect",
	})
	return payload
}
