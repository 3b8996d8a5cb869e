package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*EngineOptions)(nil)

// EngineOptions tune the update engine and the device restart that follows a commit.
type EngineOptions struct {
	// RestartDelay lets the success response reach the uploader before reboot.
	RestartDelay time.Duration `json:"restart-delay" mapstructure:"restart-delay"`

	// ChunkSize is the read buffer used by streaming transports.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`
}

func NewEngineOptions() *EngineOptions {
	return &EngineOptions{
		RestartDelay: time.Second,
		ChunkSize:    1000,
	}
}

func (o *EngineOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.RestartDelay < 0 {
		errs = append(errs, errors.New("--ota.restart-delay must not be negative"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, errors.New("--ota.chunk-size must be positive"))
	}
	return errs
}

func (o *EngineOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.RestartDelay, "ota.restart-delay", o.RestartDelay, "Delay between a committed update and the device restart.")
	fs.IntVar(&o.ChunkSize, "ota.chunk-size", o.ChunkSize, "Read buffer size used when streaming an image into a slot.")
}
