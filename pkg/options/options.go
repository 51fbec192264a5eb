// Package options holds the flag-bound option groups shared by the telehub
// binaries. Each group validates itself and registers its own flags.
package options

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group.
type IOptions interface {
	// Validate returns every problem found in the options.
	Validate() []error

	// AddFlags registers the option flags, optionally namespaced by prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a usable port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " /") {
		return fmt.Errorf("%q is not a valid host", host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port", port)
	}
	return nil
}

// flagName joins prefixes and name with dots, e.g. ("wifi", "timeout") -> "wifi.timeout".
func flagName(name string, prefixes ...string) string {
	parts := make([]string, 0, len(prefixes)+1)
	for _, p := range prefixes {
		if p = strings.Trim(p, "."); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(append(parts, name), ".")
}
