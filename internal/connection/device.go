// Package connection discovers and connects to a vehicle's diagnostic
// gateway over bluetooth, wifi, usb serial and a cellular telematics
// registry. A Manager holds at most one active connection.
package connection

import (
	"errors"
	"time"
)

// Kind is a transport family.
type Kind string

const (
	KindBluetooth Kind = "bluetooth"
	KindWiFi      Kind = "wifi"
	KindUSB       Kind = "usb"
	KindCellular  Kind = "cellular"
)

// Kinds is the fixed scan and aggregation order.
var Kinds = []Kind{KindBluetooth, KindWiFi, KindUSB, KindCellular}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusError        Status = "error"
)

// Device is a discovered gateway.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Transport Kind   `json:"transport"`
	Protocol  string `json:"protocol"`
	Status    Status `json:"status"`
	// SignalStrength is a 0-100 quality estimate; 0 when unknown.
	SignalStrength int       `json:"signalStrength"`
	LastSeen       time.Time `json:"lastSeen"`
	// Address is transport specific: a BLE MAC, host:port, serial port path
	// or registry device id.
	Address string `json:"address"`
	Demo    bool   `json:"demo,omitempty"`
}

func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// ErrUnavailable means the platform has no way to use a transport at all,
// such as a host without a bluetooth controller.
var ErrUnavailable = errors.New("transport unavailable")

const protocolAuto = "ISO 15765-4 CAN (auto)"

var demoNames = map[Kind]string{
	KindBluetooth: "Demo OBDII BLE",
	KindWiFi:      "Demo OBDII WiFi",
	KindUSB:       "Demo OBDII USB",
	KindCellular:  "Demo Telematics Unit",
}

var demoSignal = map[Kind]int{
	KindBluetooth: 85,
	KindWiFi:      90,
	KindUSB:       100,
	KindCellular:  70,
}

// DemoDevice is the deterministic stand-in reported for a transport the
// platform cannot use.
func DemoDevice(kind Kind, now time.Time) *Device {
	return &Device{
		ID:             "demo-" + string(kind),
		Name:           demoNames[kind],
		Transport:      kind,
		Protocol:       protocolAuto,
		Status:         StatusDisconnected,
		SignalStrength: demoSignal[kind],
		LastSeen:       now,
		Address:        "demo://" + string(kind),
		Demo:           true,
	}
}
