package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*DeviceOptions)(nil)

// DeviceOptions describe the device the daemon runs on.
type DeviceOptions struct {
	// ID overrides the discovered device identity.
	ID string `json:"id" mapstructure:"id"`

	// VersionFile holds the version string of the running image.
	VersionFile string `json:"version-file" mapstructure:"version-file"`

	// DryRunReboot replaces the real reboot with a process exit.
	DryRunReboot bool `json:"dry-run-reboot" mapstructure:"dry-run-reboot"`
}

func NewDeviceOptions() *DeviceOptions {
	return &DeviceOptions{
		VersionFile: "/etc/otad/version",
	}
}

func (o *DeviceOptions) Validate() []error {
	return nil
}

func (o *DeviceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ID, "device.id", o.ID, "Device identity (default: discovered from OTAD_DEVICE_ID, /etc/otad/device-id or /etc/machine-id).")
	fs.StringVar(&o.VersionFile, "device.version-file", o.VersionFile, "File holding the version of the running firmware.")
	fs.BoolVar(&o.DryRunReboot, "device.dry-run-reboot", o.DryRunReboot, "Exit the daemon instead of rebooting the device after a commit.")
}
