package paths

// Topic segments shared by otad and whatever fleet service talks to it.
// Changing a value breaks every device already in the field.

// Downstream: fleet -> device
const (
	// Command carries install/abort directives.
	// Pattern: {root}/command/{deviceID}
	Command = "command"
)

// Upstream: device -> fleet
const (
	// Register announces the device and the slot it booted from.
	// Pattern: {root}/register/{deviceID}
	Register = "register"

	// Online is the retained presence flag, also used as the last will.
	// Pattern: {root}/online/{deviceID}
	Online = "online"

	// CommandAck reports the result of a command.
	// Pattern: {root}/command/ack/{deviceID}
	CommandAck = "command/ack"

	// OTAProgress reports every update session state change.
	// Payload: { "session": "6f1c0b9e-...", "state": "Writing", "written": 4096, ... }
	// Pattern: {root}/ota/progress/{deviceID}
	OTAProgress = "ota/progress"
)
