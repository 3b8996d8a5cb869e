package topic

import (
	"fmt"
	"strings"
)

// Builder constructs MQTT topic strings of the form {root}/{segment}/{deviceID}.
type Builder struct {
	// root is the base namespace for all topics (e.g., "ota/v1").
	root string
}

// NewBuilder creates a Builder rooted at root. Surrounding slashes are trimmed.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Root returns the namespace all topics are built under.
func (b *Builder) Root() string {
	return b.root
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// DeviceID extracts the trailing device identifier from a topic built for segment.
// ok is false when topic does not belong to segment.
func (b *Builder) DeviceID(segment, topic string) (id string, ok bool) {
	prefix := b.root + "/" + segment + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id = strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
