// Package hal adapts the daemon to the device it runs on.
package hal

import (
	"os"
	"strings"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/pkg/log"
)

// Config selects and configures the HAL implementation.
type Config struct {
	// DeviceID overrides discovery when set.
	DeviceID string

	// VersionFile holds the version of the running image.
	VersionFile string

	// DryRun replaces the reboot with OnReboot.
	DryRun bool

	// OnReboot is called by the mock instead of restarting the device.
	OnReboot func()
}

// DefaultVersion is reported when the version file cannot be read.
const DefaultVersion = "v0.0.0-unknown"

// New returns the platform HAL, or the mock when cfg.DryRun is set or the
// platform cannot reboot.
func New(cfg Config) core.HAL {
	if cfg.DryRun {
		return NewMock(cfg)
	}
	return newPlatform(cfg)
}

var deviceIDFiles = []string{"/etc/otad/device-id", "/etc/machine-id"}

// DiscoverDeviceID looks for the device identity in the OTAD_DEVICE_ID
// environment variable, then in well-known files. It returns "" if nothing
// is found.
func DiscoverDeviceID() string {
	if envID := os.Getenv("OTAD_DEVICE_ID"); envID != "" {
		log.Info("Device ID detected from env", "id", envID)
		return envID
	}

	for _, path := range deviceIDFiles {
		if id := readTrimmed(path); id != "" {
			log.Info("Device ID detected from file", "id", id, "path", path)
			return id
		}
	}
	return ""
}

func readTrimmed(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func deviceID(cfg Config) string {
	if cfg.DeviceID != "" {
		return cfg.DeviceID
	}
	return DiscoverDeviceID()
}

func firmwareVersion(cfg Config) string {
	if v := readTrimmed(cfg.VersionFile); v != "" {
		return v
	}
	return DefaultVersion
}
