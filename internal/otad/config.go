// Package otad wires the update engine to its transports.
package otad

import (
	"fmt"

	"github.com/autopeer-io/otad/internal/otad/hal"
	"github.com/autopeer-io/otad/pkg/options"
)

type Config struct {
	HttpOptions   *options.HttpOptions
	GrpcOptions   *options.GrpcOptions
	MqttOptions   *options.MqttOptions
	S3Options     *options.S3Options
	SlotOptions   *options.SlotOptions
	EngineOptions *options.EngineOptions
	DeviceOptions *options.DeviceOptions
}

// NewDaemon resolves the device identity and returns a daemon ready to Run.
func (cfg *Config) NewDaemon() (*Daemon, error) {
	d := &Daemon{cfg: cfg}

	d.hal = hal.New(hal.Config{
		DeviceID:    cfg.DeviceOptions.ID,
		VersionFile: cfg.DeviceOptions.VersionFile,
		DryRun:      cfg.DeviceOptions.DryRunReboot,
		OnReboot:    d.requestStop,
	})

	if d.deviceID = d.hal.DeviceID(); d.deviceID == "" {
		return nil, fmt.Errorf("unable to determine the device ID, set --device.id or OTAD_DEVICE_ID")
	}

	return d, nil
}
