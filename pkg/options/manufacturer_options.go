package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ManufacturerOptions)(nil)

// ManufacturerOptions configures the optional manufacturer cloud API client.
type ManufacturerOptions struct {
	// Name selects the integration (tesla, ford, gm). Empty disables it.
	Name string `json:"name" mapstructure:"name"`

	BaseURL      string        `json:"base-url" mapstructure:"base-url"`
	AuthURL      string        `json:"auth-url" mapstructure:"auth-url"`
	ClientID     string        `json:"client-id" mapstructure:"client-id"`
	ClientSecret string        `json:"client-secret" mapstructure:"client-secret"`
	Token        string        `json:"token" mapstructure:"token"`
	VIN          string        `json:"vin" mapstructure:"vin"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewManufacturerOptions() *ManufacturerOptions {
	return &ManufacturerOptions{
		Timeout: 10 * time.Second,
	}
}

func (o *ManufacturerOptions) Validate() []error {
	if o == nil || o.Name == "" {
		return nil
	}

	var errs []error
	if o.BaseURL != "" {
		if _, err := url.ParseRequestURI(o.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("--manufacturer.base-url: %w", err))
		}
	}
	if o.AuthURL != "" {
		if _, err := url.ParseRequestURI(o.AuthURL); err != nil {
			errs = append(errs, fmt.Errorf("--manufacturer.auth-url: %w", err))
		}
	}
	if o.VIN == "" {
		errs = append(errs, fmt.Errorf("--manufacturer.vin is required when --manufacturer.name is set"))
	}
	return errs
}

func (o *ManufacturerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Name, flagName("manufacturer.name", prefixes...), o.Name, "Manufacturer integration: tesla, ford or gm.")
	fs.StringVar(&o.BaseURL, flagName("manufacturer.base-url", prefixes...), o.BaseURL, "Override the manufacturer API base URL.")
	fs.StringVar(&o.AuthURL, flagName("manufacturer.auth-url", prefixes...), o.AuthURL, "Override the manufacturer OAuth token endpoint base URL.")
	fs.StringVar(&o.ClientID, flagName("manufacturer.client-id", prefixes...), o.ClientID, "OAuth client id.")
	fs.StringVar(&o.ClientSecret, flagName("manufacturer.client-secret", prefixes...), o.ClientSecret, "OAuth client secret.")
	fs.StringVar(&o.Token, flagName("manufacturer.token", prefixes...), o.Token, "Pre-issued access token (skips the OAuth exchange).")
	fs.StringVar(&o.VIN, flagName("manufacturer.vin", prefixes...), o.VIN, "VIN of the vehicle this agent serves.")
	fs.DurationVar(&o.Timeout, flagName("manufacturer.timeout", prefixes...), o.Timeout, "Timeout of one manufacturer API call.")
}
