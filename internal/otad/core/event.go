package core

// EventType names a message exchanged with the fleet hub.
type EventType string

const (
	EventRegister    EventType = "device.register"
	EventOnline      EventType = "device.online"
	EventCommand     EventType = "ota.command"
	EventCommandAck  EventType = "ota.command.ack"
	EventOTAProgress EventType = "ota.progress"
)
