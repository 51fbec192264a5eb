package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AgentOptions)(nil)

// AgentOptions configures the vehicle-side agent loops.
type AgentOptions struct {
	// VehicleID overrides discovery from the environment and /etc/telehub/vin.
	VehicleID string `json:"vehicle-id" mapstructure:"vehicle-id"`

	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
	// PIDs are the mode 01 parameters read on every poll.
	PIDs []string `json:"pids" mapstructure:"pids"`

	// DTCInterval is how often trouble codes are read; 0 disables it.
	DTCInterval time.Duration `json:"dtc-interval" mapstructure:"dtc-interval"`

	// MaxLinkFailures is how many polls in a row may fail every query before
	// the gateway is dropped and discovery starts over.
	MaxLinkFailures int `json:"max-link-failures" mapstructure:"max-link-failures"`

	// ReconnectInterval is the pause between discovery attempts while no
	// gateway is connected.
	ReconnectInterval time.Duration `json:"reconnect-interval" mapstructure:"reconnect-interval"`
}

func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		PollInterval:      5 * time.Second,
		PIDs:              []string{"0C", "0D", "05", "04", "11", "2F", "42", "31"},
		DTCInterval:       time.Minute,
		MaxLinkFailures:   3,
		ReconnectInterval: 30 * time.Second,
	}
}

func (o *AgentOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("--agent.poll-interval must be positive"))
	}
	if len(o.PIDs) == 0 {
		errs = append(errs, fmt.Errorf("--agent.pids must not be empty"))
	}
	if o.DTCInterval < 0 {
		errs = append(errs, fmt.Errorf("--agent.dtc-interval must not be negative"))
	}
	if o.MaxLinkFailures < 1 {
		errs = append(errs, fmt.Errorf("--agent.max-link-failures must be at least 1"))
	}
	if o.ReconnectInterval <= 0 {
		errs = append(errs, fmt.Errorf("--agent.reconnect-interval must be positive"))
	}
	return errs
}

func (o *AgentOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.VehicleID, flagName("agent.vehicle-id", prefixes...), o.VehicleID, "Vehicle id reported to the hub (default: discovered).")
	fs.DurationVar(&o.PollInterval, flagName("agent.poll-interval", prefixes...), o.PollInterval, "Interval between status polls.")
	fs.StringSliceVar(&o.PIDs, flagName("agent.pids", prefixes...), o.PIDs, "OBD-II mode 01 PIDs read on every poll.")
	fs.DurationVar(&o.DTCInterval, flagName("agent.dtc-interval", prefixes...), o.DTCInterval, "Interval between trouble code reads (0 disables).")
	fs.IntVar(&o.MaxLinkFailures, flagName("agent.max-link-failures", prefixes...), o.MaxLinkFailures, "Consecutive failed polls before the gateway is disconnected.")
	fs.DurationVar(&o.ReconnectInterval, flagName("agent.reconnect-interval", prefixes...), o.ReconnectInterval, "Pause between gateway discovery attempts.")
}
