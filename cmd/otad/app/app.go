package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/otad/cmd/otad/app/options"
	"github.com/autopeer-io/otad/pkg/app"
)

const (
	commandName = "otad"
	commandDesc = `otad installs firmware images into the spare slot of an A/B
device. Images arrive over HTTP or are pulled from S3 on an MQTT command,
and the device restarts into a new image only once it is fully written.`
)

func NewApp() *app.App {
	opts := options.NewDaemonOptions()
	application := app.NewApp(
		commandName,
		"Launch the A/B firmware update daemon",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithCommands(newSlotsCommand(opts)),
	)
	return application
}

func run(opts *options.DaemonOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		daemon, err := cfg.NewDaemon()
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		return daemon.Run(ctx)
	}
}
