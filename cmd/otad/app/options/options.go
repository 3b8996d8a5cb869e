package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/otad/internal/otad"
	"github.com/autopeer-io/otad/pkg/app"
	"github.com/autopeer-io/otad/pkg/log"
	"github.com/autopeer-io/otad/pkg/options"
)

type DaemonOptions struct {
	HttpOptions   *options.HttpOptions   `json:"http" mapstructure:"http"`
	GrpcOptions   *options.GrpcOptions   `json:"grpc" mapstructure:"grpc"`
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	S3Options     *options.S3Options     `json:"s3" mapstructure:"s3"`
	SlotOptions   *options.SlotOptions   `json:"slot" mapstructure:"slot"`
	EngineOptions *options.EngineOptions `json:"ota" mapstructure:"ota"`
	DeviceOptions *options.DeviceOptions `json:"device" mapstructure:"device"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*DaemonOptions)(nil)

func NewDaemonOptions() *DaemonOptions {
	o := &DaemonOptions{
		HttpOptions:   options.NewHttpOptions(),
		GrpcOptions:   options.NewGrpcOptions(),
		MqttOptions:   options.NewMqttOptions(),
		S3Options:     options.NewS3Options(),
		SlotOptions:   options.NewSlotOptions(),
		EngineOptions: options.NewEngineOptions(),
		DeviceOptions: options.NewDeviceOptions(),
		Log:           log.NewOptions(),
	}

	return o
}

func (o *DaemonOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.SlotOptions.AddFlags(fss.FlagSet("slot"))
	o.EngineOptions.AddFlags(fss.FlagSet("ota"))
	o.DeviceOptions.AddFlags(fss.FlagSet("device"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *DaemonOptions) Complete() error {
	return nil
}

func (o *DaemonOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.SlotOptions.Validate()...)
	errs = append(errs, o.EngineOptions.Validate()...)
	errs = append(errs, o.DeviceOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// LogOptions lets the app initialize logging before running.
func (o *DaemonOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *DaemonOptions) Config() (*otad.Config, error) {
	return &otad.Config{
		HttpOptions:   o.HttpOptions,
		GrpcOptions:   o.GrpcOptions,
		MqttOptions:   o.MqttOptions,
		S3Options:     o.S3Options,
		SlotOptions:   o.SlotOptions,
		EngineOptions: o.EngineOptions,
		DeviceOptions: o.DeviceOptions,
	}, nil
}
