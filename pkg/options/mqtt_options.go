package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/telehub/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for MQTT client and topics.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every topic: {TopicRoot}/vehicle/status/{vid} etc.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// SharedGroup, when set, subscribes upstream topics through $share/{group}/
	// so several hub replicas split the vehicle traffic.
	SharedGroup string `json:"shared-group" mapstructure:"shared-group"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "mqtt://127.0.0.1:1883",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		SessionExpiry:  60,
		CleanStart:     true,
		TopicRoot:      "iov/v1",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	u, err := url.Parse(o.Broker)
	if err != nil {
		errors = append(errors, fmt.Errorf("--mqtt.broker: %w", err))
	} else {
		switch u.Scheme {
		case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
		default:
			errors = append(errors, fmt.Errorf("--mqtt.broker: unsupported scheme %q", u.Scheme))
		}
	}
	if o.TopicRoot == "" {
		errors = append(errors, fmt.Errorf("--mqtt.topic-root must not be empty"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, flagName("mqtt.broker", prefixes...), o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, flagName("mqtt.username", prefixes...), o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, flagName("mqtt.password", prefixes...), o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, flagName("mqtt.client-id", prefixes...), o.ClientID, "Explicit Client ID (optional, usually generated).")

	fs.DurationVar(&o.KeepAlive, flagName("mqtt.keep-alive", prefixes...), o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, flagName("mqtt.connect-timeout", prefixes...), o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, flagName("mqtt.session-expiry", prefixes...), o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, flagName("mqtt.clean-start", prefixes...), o.CleanStart, "Start a clean MQTT session on connect.")
	fs.BoolVar(&o.InsecureSkipVerify, flagName("mqtt.insecure-skip-verify", prefixes...), o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, flagName("mqtt.topic-root", prefixes...), o.TopicRoot, "Topic prefix for vehicle and command topics.")
	fs.StringVar(&o.SharedGroup, flagName("mqtt.shared-group", prefixes...), o.SharedGroup, "Shared subscription group for upstream topics.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
