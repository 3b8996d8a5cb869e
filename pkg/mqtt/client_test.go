package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"ota/v1/command/dev", "ota/v1/command/dev", true},
		{"ota/v1/command/+", "ota/v1/command/dev", true},
		{"ota/v1/command/+", "ota/v1/command/ack/dev", false},
		{"ota/v1/#", "ota/v1/command/ack/dev", true},
		{"ota/v1/+/dev", "ota/v1/register/dev", true},
		{"ota/v1/command/dev", "ota/v1/command/other", false},
		{"ota/v1/command/+/x", "ota/v1/command/dev", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestTopicFilterStripsSharedGroup(t *testing.T) {
	assert.Equal(t, "ota/v1/command/+", topicFilter("$share/devices/ota/v1/command/+"))
	assert.Equal(t, "ota/v1/command/+", topicFilter("ota/v1/command/+"))
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{}
	assert.Error(t, cfg.Validate())

	cfg.BrokerURL = "localhost"
	assert.Error(t, cfg.Validate())

	cfg.BrokerURL = "tcp://localhost:1883"
	assert.NoError(t, cfg.Validate())

	cfg.WillQoS = 3
	assert.Error(t, cfg.Validate())
}

func TestNewClientAppliesDefaults(t *testing.T) {
	cfg := &ClientConfig{BrokerURL: "tcp://localhost:1883"}
	c, err := NewClient(cfg)
	assert.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Equal(t, uint16(60), cfg.KeepAlive)
}
