package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/telehub/internal/agent"
	"github.com/autopeer-io/telehub/pkg/app"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

type ObdAgentOptions struct {
	AgentOptions        *options.AgentOptions        `json:"agent" mapstructure:"agent"`
	MqttOptions         *options.MqttOptions         `json:"mqtt" mapstructure:"mqtt"`
	ConnectionOptions   *options.ConnectionOptions   `json:"connection" mapstructure:"connection"`
	ManufacturerOptions *options.ManufacturerOptions `json:"manufacturer" mapstructure:"manufacturer"`
	Log                 *log.Options                 `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*ObdAgentOptions)(nil)
	_ app.LogOptionsProvider  = (*ObdAgentOptions)(nil)
)

func NewObdAgentOptions() *ObdAgentOptions {
	o := &ObdAgentOptions{
		AgentOptions:        options.NewAgentOptions(),
		MqttOptions:         options.NewMqttOptions(),
		ConnectionOptions:   options.NewConnectionOptions(),
		ManufacturerOptions: options.NewManufacturerOptions(),
		Log:                 log.NewOptions(),
	}
	// Keep the session so commands queued while offline are delivered.
	o.MqttOptions.CleanStart = false

	return o
}

func (o *ObdAgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.AgentOptions.AddFlags(fss.FlagSet("agent"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.ConnectionOptions.AddFlags(fss.FlagSet("connection"))
	o.ManufacturerOptions.AddFlags(fss.FlagSet("manufacturer"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ObdAgentOptions) Complete() error {
	return nil
}

func (o *ObdAgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.AgentOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.ConnectionOptions.Validate()...)
	errs = append(errs, o.ManufacturerOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ObdAgentOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *ObdAgentOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		AgentOptions:        o.AgentOptions,
		MqttOptions:         o.MqttOptions,
		ConnectionOptions:   o.ConnectionOptions,
		ManufacturerOptions: o.ManufacturerOptions,
	}, nil
}
