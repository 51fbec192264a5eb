// Package app builds the cobra root command shared by telehub binaries:
// flag sections, config file and environment loading, option validation and
// logger setup happen here so each binary only supplies options and a run func.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/telehub/pkg/log"
)

// RunFunc is the main body of a binary, invoked after options are loaded.
type RunFunc func() error

// App is a command line application.
type App struct {
	basename    string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	envPrefix   string
	args        cobra.PositionalArgs
	commands    []*cobra.Command

	v   *viper.Viper
	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithNoConfig drops the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithEnvPrefix sets the prefix of environment overrides, e.g. TELEHUB_HTTP_ADDR.
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithCommands attaches subcommands. They share the root's persistent flags.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

// NewApp creates an App and its cobra command.
func NewApp(basename, shortDesc string, opts ...Option) *App {
	a := &App{
		basename:  basename,
		shortDesc: shortDesc,
		v:         viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits the process on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.basename,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.AddCommand(a.commands...)

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	global := namedFlagSets.FlagSet("global")
	if !a.noConfig {
		addConfigFlag(a.basename, global)
	}
	global.BoolP("help", "h", false, fmt.Sprintf("Help for %s.", a.basename))

	for _, f := range namedFlagSets.FlagSets {
		cmd.PersistentFlags().AddFlagSet(f)
	}

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}
	if a.options != nil {
		cmd.PersistentPreRunE = a.loadOptions
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cmd.SetUsageFunc(func(cmd *cobra.Command) error {
		fmt.Fprintf(cmd.OutOrStderr(), "Usage:\n  %s\n", cmd.UseLine())
		cliflag.PrintSections(cmd.OutOrStderr(), namedFlagSets, cols)
		return nil
	})
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", cmd.Long)
		if cmd.HasAvailableSubCommands() {
			fmt.Fprintln(cmd.OutOrStdout(), "Commands:")
			for _, c := range cmd.Commands() {
				if c.IsAvailableCommand() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s\n", c.Name(), c.Short)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Usage:\n  %s\n", cmd.UseLine())
		cliflag.PrintSections(cmd.OutOrStdout(), namedFlagSets, cols)
	})

	a.cmd = cmd
}

// loadOptions merges config file, environment and flags into the options,
// then completes and validates them.
func (a *App) loadOptions(cmd *cobra.Command, _ []string) error {
	if err := a.bind(cmd); err != nil {
		return err
	}

	if err := a.v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	if err := a.options.Complete(); err != nil {
		return err
	}
	if err := a.options.Validate(); err != nil {
		return err
	}

	if lo, ok := a.options.(LogOptionsProvider); ok {
		log.Init(lo.LogOptions())
	}
	if !a.noConfig {
		a.watchConfig()
	}
	return nil
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	defer log.Sync() //nolint:errcheck

	log.Info("Starting application", "name", a.basename)
	return a.runFunc()
}
