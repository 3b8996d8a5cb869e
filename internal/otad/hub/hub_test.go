package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/otad/pkg/mqtt/topic"
)

type publication struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	published []publication
	handlers  map[string]mqtt.MessageHandler
}

var _ mqtt.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publication{topic: topic, retain: retain, payload: payload})
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *fakeClient) AwaitConnection(context.Context) error { return nil }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if ok {
		h(context.Background(), topic, payload)
	}
	return ok
}

// deliverAs invokes the handler subscribed on filter with a different topic,
// the way a shared or wildcard subscription would.
func (c *fakeClient) deliverAs(filter, topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	h(context.Background(), topic, payload)
}

func (c *fakeClient) on(topic string) []publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publication
	for _, p := range c.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func TestHubTopics(t *testing.T) {
	h := New("dev-1", newFakeClient(), mqtttopic.NewBuilder("/ota/v1/"))

	topic, err := h.Topic(core.EventOTAProgress)
	require.NoError(t, err)
	assert.Equal(t, "ota/v1/ota/progress/dev-1", topic)

	topic, err = h.Topic(core.EventCommandAck)
	require.NoError(t, err)
	assert.Equal(t, "ota/v1/command/ack/dev-1", topic)

	_, err = h.Topic("bogus")
	assert.Error(t, err)
	assert.Error(t, h.Register("bogus", nil))
}

func TestHubStartSubscribesAndGoesOnline(t *testing.T) {
	client := newFakeClient()
	h := New("dev-1", client, mqtttopic.NewBuilder("ota/v1"))

	got := make(chan []byte, 1)
	require.NoError(t, h.Register(core.EventCommand, func(_ context.Context, p []byte) error {
		got <- p
		return nil
	}))
	require.NoError(t, h.Start(context.Background()))
	assert.True(t, h.IsConnected())

	online := client.on("ota/v1/online/dev-1")
	require.Len(t, online, 1)
	assert.True(t, online[0].retain)
	var status core.OnlineStatus
	require.NoError(t, json.Unmarshal(online[0].payload, &status))
	assert.True(t, status.Online)

	require.True(t, client.deliver("ota/v1/command/dev-1", []byte(`{"id":"1"}`)))
	assert.JSONEq(t, `{"id":"1"}`, string(<-got))

	h.Stop()
	assert.False(t, h.IsConnected())
	online = client.on("ota/v1/online/dev-1")
	require.Len(t, online, 2)
	require.NoError(t, json.Unmarshal(online[1].payload, &status))
	assert.False(t, status.Online)
	assert.Equal(t, "Shutdown", status.Reason)
}

func TestHubDropsCommandsForOtherDevices(t *testing.T) {
	client := newFakeClient()
	h := New("dev-1", client, mqtttopic.NewBuilder("ota/v1"))

	var handled []string
	require.NoError(t, h.Register(core.EventCommand, func(_ context.Context, p []byte) error {
		handled = append(handled, string(p))
		return nil
	}))
	require.NoError(t, h.Start(context.Background()))

	client.deliverAs("ota/v1/command/dev-1", "ota/v1/command/dev-2", []byte("foreign"))
	client.deliverAs("ota/v1/command/dev-1", "ota/v1/command/ack/dev-1", []byte("ack"))
	client.deliverAs("ota/v1/command/dev-1", "ota/v1/command/dev-1", []byte("mine"))

	assert.Equal(t, []string{"mine"}, handled)
}

type echoModule struct {
	sender core.Sender
}

func (m *echoModule) Name() string { return "Echo" }

func (m *echoModule) Setup(_ context.Context, sender core.Sender) error {
	m.sender = sender
	return nil
}

func (m *echoModule) Routes() map[core.EventType]core.HandlerFunc {
	return map[core.EventType]core.HandlerFunc{
		core.EventCommand: core.JSONAdapter(func(ctx context.Context, cmd *core.Command) error {
			return m.sender.SendJSON(ctx, core.EventCommandAck, core.CommandAck{ID: cmd.ID, Status: core.CommandSucceeded})
		}),
	}
}

func TestHubUseModule(t *testing.T) {
	client := newFakeClient()
	h := New("dev-1", client, mqtttopic.NewBuilder("ota/v1"))

	require.NoError(t, h.Use(context.Background(), &echoModule{}))
	require.NoError(t, h.Start(context.Background()))
	require.True(t, client.deliver("ota/v1/command/dev-1", []byte(`{"id":"c9","type":"abort"}`)))

	acks := client.on("ota/v1/command/ack/dev-1")
	require.Len(t, acks, 1)
	assert.False(t, acks[0].retain)
	var ack core.CommandAck
	require.NoError(t, json.Unmarshal(acks[0].payload, &ack))
	assert.Equal(t, "c9", ack.ID)
}

func TestNotifierPublishesProgress(t *testing.T) {
	client := newFakeClient()
	h := New("dev-1", client, mqtttopic.NewBuilder("ota/v1"))
	n := NewNotifier(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	n.OnSessionEvent(ota.SessionEvent{Session: "s1", State: ota.StateWriting, Slot: "b"})
	n.OnSessionEvent(ota.SessionEvent{Session: "s1", State: ota.StateCommitted, Slot: "b", Written: 10})

	require.Eventually(t, func() bool {
		return len(client.on("ota/v1/ota/progress/dev-1")) == 2
	}, time.Second, 5*time.Millisecond)

	var ev ota.SessionEvent
	require.NoError(t, json.Unmarshal(client.on("ota/v1/ota/progress/dev-1")[1].payload, &ev))
	assert.Equal(t, ota.StateCommitted, ev.State)
	assert.Equal(t, int64(10), ev.Written)

	cancel()
	assert.NoError(t, <-done)
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(New("dev-1", newFakeClient(), mqtttopic.NewBuilder("ota/v1")))
	for range progressBuffer + 5 {
		n.OnSessionEvent(ota.SessionEvent{Session: "s"})
	}
	assert.Len(t, n.queue, progressBuffer)
}

func TestOfflineWill(t *testing.T) {
	var status core.OnlineStatus
	require.NoError(t, json.Unmarshal(OfflineWill("dev-9"), &status))
	assert.Equal(t, "dev-9", status.DeviceID)
	assert.False(t, status.Online)
}
