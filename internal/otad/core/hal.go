package core

import "context"

// HAL is the device side the daemon depends on.
type HAL interface {
	// DeviceID returns the stable identity of this device, or "" if unknown.
	DeviceID() string

	// FirmwareVersion returns the version of the running image.
	FirmwareVersion() string

	// Reboot restarts the device so it boots from the selected slot.
	Reboot(ctx context.Context) error
}
