// Package app builds cobra commands whose flags, environment variables and
// config file all land in one options struct.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/otad/pkg/log"
)

// App is the main structure of a cli application.
type App struct {
	name        string
	shortDesc   string
	description string
	run         RunFunc
	cmd         *cobra.Command
	args        cobra.PositionalArgs
	commands    []*cobra.Command

	// +optional
	options NamedFlagSetOptions

	// +optional
	silence bool
}

// Option configures an App.
type Option func(*App)

// RunFunc is the application's entry point once options are validated.
type RunFunc func() error

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(app *App) {
		app.options = opts
	}
}

func WithRunFunc(run RunFunc) Option {
	return func(app *App) {
		app.run = run
	}
}

func WithDescription(desc string) Option {
	return func(app *App) {
		app.description = desc
	}
}

// WithSilence suppresses the config and version banner at startup.
func WithSilence() Option {
	return func(app *App) {
		app.silence = true
	}
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(app *App) {
		app.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithCommands attaches subcommands. They share the parent's options and
// config file.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(app *App) {
		app.commands = append(app.commands, cmds...)
	}
}

// NewApp creates a new application instance based on the given parameters.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	app := &App{
		name:      name,
		shortDesc: shortDesc,
		run:       func() error { return nil },
	}

	for _, o := range opts {
		o(app)
	}

	app.buildCommand()

	return app
}

func (app *App) buildCommand() {
	cmd := &cobra.Command{
		Use:   app.name,
		Short: app.shortDesc,
		Long:  app.description,
		Args:  app.args,
		// The error is printed by Run, usage would only bury it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var fss cliflag.NamedFlagSets
	if app.options != nil {
		fss = app.options.Flags()
	}
	globalflag.AddGlobalFlags(fss.FlagSet("global"), cmd.Name())
	addConfigFlag(app.name, fss.FlagSet("global"))

	for _, f := range fss.FlagSets {
		cmd.PersistentFlags().AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return app.runCommand(cmd, args)
	}
	for _, sub := range app.commands {
		sub.PersistentPreRunE = app.prepare
		cmd.AddCommand(sub)
	}

	app.cmd = cmd
}

// Run launches the application.
func (app *App) Run() {
	if err := app.cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the root cobra command.
func (app *App) Command() *cobra.Command {
	return app.cmd
}

func (app *App) runCommand(cmd *cobra.Command, args []string) error {
	if err := app.prepare(cmd, args); err != nil {
		return err
	}
	if !app.silence {
		log.Info("Starting application", "name", app.name)
		if file := viper.ConfigFileUsed(); file != "" {
			log.Info("Config file used", "file", file)
		}
	}
	watchConfig()

	defer func() { _ = log.Sync() }()
	return app.run()
}

// prepare merges flags, environment and config file into the options,
// then completes, validates and initializes logging.
func (app *App) prepare(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if app.options == nil {
		return nil
	}

	if err := viper.Unmarshal(app.options); err != nil {
		return err
	}
	if err := app.options.Complete(); err != nil {
		return err
	}
	if err := app.options.Validate(); err != nil {
		return err
	}

	if lo, ok := app.options.(interface{ LogOptions() *log.Options }); ok {
		log.Init(lo.LogOptions())
	}
	return nil
}
