package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RealtimeOptions)(nil)

// RealtimeOptions tunes realtime sessions and geofence alerting.
type RealtimeOptions struct {
	// InboundQueue is the number of events a session buffers before its reader
	// blocks.
	InboundQueue int `json:"inbound-queue" mapstructure:"inbound-queue"`
	// OutboundQueue is the number of events buffered for a slow client before
	// broadcasts to it are dropped.
	OutboundQueue int `json:"outbound-queue" mapstructure:"outbound-queue"`

	WriteTimeout   time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	PingInterval   time.Duration `json:"ping-interval" mapstructure:"ping-interval"`
	MaxMessageSize int64         `json:"max-message-size" mapstructure:"max-message-size"`

	// AllowedOrigins restricts websocket upgrades. Empty allows same-origin only.
	AllowedOrigins []string `json:"allowed-origins" mapstructure:"allowed-origins"`

	// GeofenceHysteresis is the fraction of the radius a vehicle must move back
	// inside before leaving the fence alerts again.
	GeofenceHysteresis float64 `json:"geofence-hysteresis" mapstructure:"geofence-hysteresis"`
	// GeofenceCooldown repeats the alert while the vehicle stays outside. Zero
	// alerts once per excursion.
	GeofenceCooldown time.Duration `json:"geofence-cooldown" mapstructure:"geofence-cooldown"`
}

func NewRealtimeOptions() *RealtimeOptions {
	return &RealtimeOptions{
		InboundQueue:       64,
		OutboundQueue:      256,
		WriteTimeout:       10 * time.Second,
		PingInterval:       30 * time.Second,
		MaxMessageSize:     64 * 1024,
		GeofenceHysteresis: 0.05,
		GeofenceCooldown:   5 * time.Minute,
	}
}

func (o *RealtimeOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.InboundQueue <= 0 || o.OutboundQueue <= 0 {
		errs = append(errs, fmt.Errorf("--realtime queue sizes must be positive"))
	}
	if o.PingInterval <= 0 || o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--realtime.ping-interval and --realtime.write-timeout must be positive"))
	}
	if o.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("--realtime.max-message-size must be positive"))
	}
	if o.GeofenceHysteresis < 0 || o.GeofenceHysteresis >= 1 {
		errs = append(errs, fmt.Errorf("--realtime.geofence-hysteresis must be within [0, 1)"))
	}
	if o.GeofenceCooldown < 0 {
		errs = append(errs, fmt.Errorf("--realtime.geofence-cooldown must not be negative"))
	}
	return errs
}

func (o *RealtimeOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.InboundQueue, flagName("realtime.inbound-queue", prefixes...), o.InboundQueue, "Inbound events buffered per session.")
	fs.IntVar(&o.OutboundQueue, flagName("realtime.outbound-queue", prefixes...), o.OutboundQueue, "Outbound events buffered per session before dropping.")
	fs.DurationVar(&o.WriteTimeout, flagName("realtime.write-timeout", prefixes...), o.WriteTimeout, "Websocket write deadline.")
	fs.DurationVar(&o.PingInterval, flagName("realtime.ping-interval", prefixes...), o.PingInterval, "Websocket keepalive ping interval.")
	fs.Int64Var(&o.MaxMessageSize, flagName("realtime.max-message-size", prefixes...), o.MaxMessageSize, "Largest accepted websocket message in bytes.")
	fs.StringSliceVar(&o.AllowedOrigins, flagName("realtime.allowed-origins", prefixes...), o.AllowedOrigins, "Origins allowed to open a realtime session.")
	fs.Float64Var(&o.GeofenceHysteresis, flagName("realtime.geofence-hysteresis", prefixes...), o.GeofenceHysteresis, "Fraction of the radius needed to re-arm a geofence alert.")
	fs.DurationVar(&o.GeofenceCooldown, flagName("realtime.geofence-cooldown", prefixes...), o.GeofenceCooldown, "Repeat interval of geofence alerts while outside. 0 disables repeats.")
}
