package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/telehub/pkg/app"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

// ObdctlOptions are shared by every obdctl subcommand.
type ObdctlOptions struct {
	ConnectionOptions *options.ConnectionOptions `json:"connection" mapstructure:"connection"`
	Log               *log.Options               `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*ObdctlOptions)(nil)
	_ app.LogOptionsProvider  = (*ObdctlOptions)(nil)
)

func NewObdctlOptions() *ObdctlOptions {
	o := &ObdctlOptions{
		ConnectionOptions: options.NewConnectionOptions(),
		Log:               log.NewOptions(),
	}
	// Tables go to stdout; keep logs out of them.
	o.Log.Level = "warn"
	o.Log.OutputPaths = []string{"stderr"}
	return o
}

func (o *ObdctlOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.ConnectionOptions.AddFlags(fss.FlagSet("connection"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ObdctlOptions) Complete() error {
	return nil
}

func (o *ObdctlOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.ConnectionOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ObdctlOptions) LogOptions() *log.Options {
	return o.Log
}
