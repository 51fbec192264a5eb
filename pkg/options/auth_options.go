package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AuthOptions)(nil)

// AuthOptions configures bearer token validation. Tokens are issued elsewhere;
// telehub only verifies them.
type AuthOptions struct {
	// Secret is the HMAC key used to verify HS256 tokens.
	Secret string `json:"secret" mapstructure:"secret"`

	Issuer   string `json:"issuer" mapstructure:"issuer"`
	Audience string `json:"audience" mapstructure:"audience"`

	// Leeway tolerates clock skew when checking exp/nbf.
	Leeway time.Duration `json:"leeway" mapstructure:"leeway"`
}

func NewAuthOptions() *AuthOptions {
	return &AuthOptions{
		Leeway: 30 * time.Second,
	}
}

func (o *AuthOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if len(o.Secret) < 16 {
		errs = append(errs, fmt.Errorf("--auth.secret must be at least 16 bytes"))
	}
	if o.Leeway < 0 {
		errs = append(errs, fmt.Errorf("--auth.leeway must not be negative"))
	}
	return errs
}

func (o *AuthOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Secret, flagName("auth.secret", prefixes...), o.Secret, "HMAC secret used to verify bearer tokens.")
	fs.StringVar(&o.Issuer, flagName("auth.issuer", prefixes...), o.Issuer, "Expected token issuer (empty disables the check).")
	fs.StringVar(&o.Audience, flagName("auth.audience", prefixes...), o.Audience, "Expected token audience (empty disables the check).")
	fs.DurationVar(&o.Leeway, flagName("auth.leeway", prefixes...), o.Leeway, "Allowed clock skew for token time claims.")
}
