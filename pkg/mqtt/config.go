package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectDelay is the pause between reconnect attempts. Default is 3s.
	ReconnectDelay time.Duration

	// SessionExpiry in seconds; 0 drops the session on disconnect.
	SessionExpiry uint32

	// CleanStart indicates whether to start a clean session.
	// Vehicle agents usually keep it false to receive commands queued while offline.
	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// OrderedHandlers runs handlers on the paho reader goroutine, in arrival
	// order. Handlers must then return quickly.
	OrderedHandlers bool

	// Will is published by the broker when the client drops without a
	// DISCONNECT. The agent uses it to flip its vehicle offline.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

// setDefaultConfig applies safe default values to the configuration.
func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}

	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("broker url %q has no host", c.BrokerURL)
	}
	if c.WillQoS > 2 {
		return fmt.Errorf("will qos must be 0, 1 or 2, got %d", c.WillQoS)
	}
	return nil
}
