package app

import (
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/telehub/pkg/log"
)

// NamedFlagSetOptions is implemented by the option struct of every binary.
// Fields carry mapstructure tags matching the flag names so config files and
// environment variables land in the same place as flags.
type NamedFlagSetOptions interface {
	// Flags returns flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills derived and default values.
	Complete() error

	// Validate checks the options; errors are aggregated.
	Validate() error
}

// LogOptionsProvider is implemented by options that carry a log section. The
// global logger is initialised from it before the run func starts.
type LogOptionsProvider interface {
	LogOptions() *log.Options
}
