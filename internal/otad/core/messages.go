package core

import "time"

// Registration announces the device and the image it runs.
type Registration struct {
	DeviceID        string    `json:"deviceId"`
	FirmwareVersion string    `json:"firmwareVersion"`
	BootSlot        string    `json:"bootSlot,omitempty"`
	Description     string    `json:"description,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// OnlineStatus is retained on the online topic. The broker publishes the
// offline variant as the will message.
type OnlineStatus struct {
	DeviceID string `json:"deviceId"`
	Online   bool   `json:"online"`
	Reason   string `json:"reason,omitempty"`
}

// CommandType selects what a Command asks the device to do.
type CommandType string

const (
	// CommandPull installs the image stored under Command.Object.
	CommandPull CommandType = "pull"
	// CommandAbort aborts the active update session.
	CommandAbort CommandType = "abort"
)

// Command is sent by the fleet hub to one device.
type Command struct {
	ID     string      `json:"id"`
	Type   CommandType `json:"type"`
	Object string      `json:"object,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// CommandStatus is the state reported in a CommandAck.
type CommandStatus string

const (
	CommandAccepted  CommandStatus = "accepted"
	CommandSucceeded CommandStatus = "succeeded"
	CommandFailed    CommandStatus = "failed"
)

// CommandAck reports progress on a Command.
type CommandAck struct {
	ID        string        `json:"id"`
	DeviceID  string        `json:"deviceId"`
	Status    CommandStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
