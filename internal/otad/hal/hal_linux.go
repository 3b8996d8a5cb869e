//go:build linux

package hal

import (
	"context"
	"syscall"

	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/pkg/log"
)

// LinuxHAL restarts the machine through the reboot syscall.
type LinuxHAL struct {
	cfg Config
}

var _ core.HAL = (*LinuxHAL)(nil)

func newPlatform(cfg Config) core.HAL {
	return &LinuxHAL{cfg: cfg}
}

func (h *LinuxHAL) DeviceID() string {
	return deviceID(h.cfg)
}

func (h *LinuxHAL) FirmwareVersion() string {
	return firmwareVersion(h.cfg)
}

func (h *LinuxHAL) Reboot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info("System is rebooting NOW...")
	_ = log.Sync()
	syscall.Sync()
	return syscall.Reboot(syscall.LINUX_REBOOT_CMD_RESTART)
}
