package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*CommandOptions)(nil)

// CommandOptions tunes the command orchestrator.
type CommandOptions struct {
	// ExecutionDelay is how long a simulated command takes to complete when
	// the vehicle never reports a result.
	ExecutionDelay time.Duration `json:"execution-delay" mapstructure:"execution-delay"`

	// Simulate enables the simulated completion. Disable it when real vehicles
	// report command results over MQTT.
	Simulate bool `json:"simulate" mapstructure:"simulate"`

	// HistoryLimit caps the number of commands a history query returns.
	HistoryLimit int `json:"history-limit" mapstructure:"history-limit"`
}

func NewCommandOptions() *CommandOptions {
	return &CommandOptions{
		ExecutionDelay: 2 * time.Second,
		Simulate:       true,
		HistoryLimit:   50,
	}
}

func (o *CommandOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ExecutionDelay < 0 {
		errs = append(errs, fmt.Errorf("--command.execution-delay must not be negative"))
	}
	if o.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("--command.history-limit must be positive"))
	}
	return errs
}

func (o *CommandOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.ExecutionDelay, flagName("command.execution-delay", prefixes...), o.ExecutionDelay, "Simulated command execution time.")
	fs.BoolVar(&o.Simulate, flagName("command.simulate", prefixes...), o.Simulate, "Complete commands locally when no vehicle result arrives.")
	fs.IntVar(&o.HistoryLimit, flagName("command.history-limit", prefixes...), o.HistoryLimit, "Maximum commands returned by a history query.")
}
