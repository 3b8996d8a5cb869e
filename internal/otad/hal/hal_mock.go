package hal

import (
	"context"
	"sync/atomic"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/pkg/log"
)

// MockHAL stands in for a device that must not really reboot.
type MockHAL struct {
	cfg Config

	reboots atomic.Int32
}

var _ core.HAL = (*MockHAL)(nil)

func NewMock(cfg Config) *MockHAL {
	return &MockHAL{cfg: cfg}
}

func (h *MockHAL) DeviceID() string {
	if id := deviceID(h.cfg); id != "" {
		return id
	}
	return "otad-mock-001"
}

func (h *MockHAL) FirmwareVersion() string {
	return firmwareVersion(h.cfg)
}

func (h *MockHAL) Reboot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.reboots.Add(1)
	log.Warn("[HAL-Mock] >>> REBOOT REQUESTED <<<")
	log.Warn("[HAL-Mock] Restart the daemon to run from the new boot slot.")
	if h.cfg.OnReboot != nil {
		h.cfg.OnReboot()
	}
	return nil
}

// Reboots returns how often Reboot was called.
func (h *MockHAL) Reboots() int {
	return int(h.reboots.Load())
}
