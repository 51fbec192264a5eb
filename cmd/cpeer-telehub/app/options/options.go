package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/telehub/internal/telehub"
	"github.com/autopeer-io/telehub/pkg/app"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

type TelehubOptions struct {
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	AuthOptions     *options.AuthOptions     `json:"auth" mapstructure:"auth"`
	StoreOptions    *options.StoreOptions    `json:"store" mapstructure:"store"`
	CommandOptions  *options.CommandOptions  `json:"command" mapstructure:"command"`
	RealtimeOptions *options.RealtimeOptions `json:"realtime" mapstructure:"realtime"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*TelehubOptions)(nil)
	_ app.LogOptionsProvider  = (*TelehubOptions)(nil)
)

func NewTelehubOptions() *TelehubOptions {
	o := &TelehubOptions{
		HttpOptions:     options.NewHttpOptions(),
		MqttOptions:     options.NewMqttOptions(),
		AuthOptions:     options.NewAuthOptions(),
		StoreOptions:    options.NewStoreOptions(),
		CommandOptions:  options.NewCommandOptions(),
		RealtimeOptions: options.NewRealtimeOptions(),
		Log:             log.NewOptions(),
	}
	o.MqttOptions.SharedGroup = "telehub"

	return o
}

func (o *TelehubOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.AuthOptions.AddFlags(fss.FlagSet("auth"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.CommandOptions.AddFlags(fss.FlagSet("command"))
	o.RealtimeOptions.AddFlags(fss.FlagSet("realtime"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *TelehubOptions) Complete() error {
	return nil
}

func (o *TelehubOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.AuthOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.CommandOptions.Validate()...)
	errs = append(errs, o.RealtimeOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *TelehubOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *TelehubOptions) Config() (*telehub.Config, error) {
	return &telehub.Config{
		HttpOptions:     o.HttpOptions,
		MqttOptions:     o.MqttOptions,
		AuthOptions:     o.AuthOptions,
		StoreOptions:    o.StoreOptions,
		CommandOptions:  o.CommandOptions,
		RealtimeOptions: o.RealtimeOptions,
	}, nil
}
