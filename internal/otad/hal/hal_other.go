//go:build !linux

package hal

import (
	"github.com/autopeer-io/otad/internal/otad/core"
	"github.com/autopeer-io/otad/pkg/log"
)

func newPlatform(cfg Config) core.HAL {
	log.Warn("No reboot support on this platform, using the mock HAL")
	return NewMock(cfg)
}
