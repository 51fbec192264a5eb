package options

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ConnectionOptions)(nil)

var transportKinds = []string{"bluetooth", "wifi", "usb", "cellular"}

// ConnectionOptions configures gateway discovery on every transport.
type ConnectionOptions struct {
	// ScanTimeout bounds one transport scan.
	ScanTimeout time.Duration `json:"scan-timeout" mapstructure:"scan-timeout"`

	// Preferred is the transport the agent connects through first.
	Preferred string `json:"preferred" mapstructure:"preferred"`

	// BLENamePrefix filters advertisements by local name.
	BLENamePrefix string `json:"ble-name-prefix" mapstructure:"ble-name-prefix"`

	// WiFiCandidates are host:port pairs checked over HTTP.
	WiFiCandidates []string `json:"wifi-candidates" mapstructure:"wifi-candidates"`
	WiFiStatusPath string   `json:"wifi-status-path" mapstructure:"wifi-status-path"`
	MDNSService    string   `json:"mdns-service" mapstructure:"mdns-service"`

	// SerialPorts limits USB discovery; empty means every port the OS lists.
	SerialPorts []string `json:"serial-ports" mapstructure:"serial-ports"`
	SerialBaud  int      `json:"serial-baud" mapstructure:"serial-baud"`

	RegistryURL   string `json:"registry-url" mapstructure:"registry-url"`
	RegistryToken string `json:"registry-token" mapstructure:"registry-token"`
}

func NewConnectionOptions() *ConnectionOptions {
	return &ConnectionOptions{
		ScanTimeout:    5 * time.Second,
		Preferred:      "bluetooth",
		BLENamePrefix:  "OBD",
		WiFiCandidates: []string{"192.168.0.10:35000", "192.168.4.1:35000"},
		WiFiStatusPath: "/status",
		MDNSService:    "_obd._tcp",
		SerialBaud:     38400,
	}
}

func (o *ConnectionOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--connection.scan-timeout must be positive"))
	}
	if !slices.Contains(transportKinds, o.Preferred) {
		errs = append(errs, fmt.Errorf("--connection.preferred must be one of %v", transportKinds))
	}
	for _, c := range o.WiFiCandidates {
		if err := ValidateAddress(c); err != nil {
			errs = append(errs, fmt.Errorf("--connection.wifi-candidates: %w", err))
		}
	}
	if o.SerialBaud <= 0 {
		errs = append(errs, fmt.Errorf("--connection.serial-baud must be positive"))
	}
	return errs
}

func (o *ConnectionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.ScanTimeout, flagName("connection.scan-timeout", prefixes...), o.ScanTimeout, "Timeout of a single transport scan.")
	fs.StringVar(&o.Preferred, flagName("connection.preferred", prefixes...), o.Preferred, "Preferred transport: bluetooth, wifi, usb or cellular.")
	fs.StringVar(&o.BLENamePrefix, flagName("connection.ble-name-prefix", prefixes...), o.BLENamePrefix, "Only report BLE adapters whose name starts with this prefix.")
	fs.StringSliceVar(&o.WiFiCandidates, flagName("connection.wifi-candidates", prefixes...), o.WiFiCandidates, "Gateway addresses checked over HTTP.")
	fs.StringVar(&o.WiFiStatusPath, flagName("connection.wifi-status-path", prefixes...), o.WiFiStatusPath, "HTTP path answered by WiFi gateways.")
	fs.StringVar(&o.MDNSService, flagName("connection.mdns-service", prefixes...), o.MDNSService, "mDNS service type advertised by WiFi gateways.")
	fs.StringSliceVar(&o.SerialPorts, flagName("connection.serial-ports", prefixes...), o.SerialPorts, "Serial ports to try (default: all).")
	fs.IntVar(&o.SerialBaud, flagName("connection.serial-baud", prefixes...), o.SerialBaud, "Serial baud rate.")
	fs.StringVar(&o.RegistryURL, flagName("connection.registry-url", prefixes...), o.RegistryURL, "Telematics device registry base URL.")
	fs.StringVar(&o.RegistryToken, flagName("connection.registry-token", prefixes...), o.RegistryToken, "Bearer token for the device registry.")
}
