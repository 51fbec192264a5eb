package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items related to HTTP server startup.
type HttpOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds reading a request and writing its response.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// ShutdownTimeout is how long in-flight requests get after the stop signal.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network:         "tcp",
		Addr:            "0.0.0.0:8080",
		Timeout:         30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the HTTP server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, flagName("http.network", prefixes...), o.Network, "Specify the network for the HTTP server.")
	fs.StringVar(&o.Addr, flagName("http.addr", prefixes...), o.Addr, "Specify the HTTP server bind address and port.")
	fs.DurationVar(&o.Timeout, flagName("http.timeout", prefixes...), o.Timeout, "Timeout for server connections.")
	fs.DurationVar(&o.ShutdownTimeout, flagName("http.shutdown-timeout", prefixes...), o.ShutdownTimeout,
		"Grace period for in-flight requests on shutdown.")
}
