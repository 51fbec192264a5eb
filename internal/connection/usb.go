package connection

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial"
)

const serialReadTimeout = 200 * time.Millisecond

// serialHints match the port names USB serial adapters get on linux, macOS
// and windows.
var serialHints = []string{"ttyUSB", "ttyACM", "usbserial", "usbmodem", "COM"}

type usb struct {
	ports []string
	baud  int

	list func() ([]string, error)
	open func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewUSB lists serial ports (all USB-looking ones, or just ports when set)
// and opens them at baud.
func NewUSB(ports []string, baud int) Transport {
	return &usb{ports: ports, baud: baud, list: serial.GetPortsList, open: serial.Open}
}

func (u *usb) Kind() Kind { return KindUSB }

func (u *usb) Scan(ctx context.Context) ([]*Device, error) {
	names, err := u.list()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out []*Device
	for _, name := range names {
		if !u.wanted(name) {
			continue
		}
		out = append(out, &Device{
			ID:             "usb-" + filepath.Base(name),
			Name:           "OBDII USB " + filepath.Base(name),
			Transport:      KindUSB,
			Protocol:       protocolAuto,
			Status:         StatusDisconnected,
			SignalStrength: 100,
			Address:        name,
		})
	}
	return out, nil
}

func (u *usb) wanted(name string) bool {
	if len(u.ports) > 0 {
		return slices.Contains(u.ports, name)
	}
	for _, hint := range serialHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func (u *usb) Connect(ctx context.Context, d *Device) (Link, error) {
	port, err := u.open(d.Address, &serial.Mode{
		BaudRate: u.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Address, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return newELMLink(ctx, port)
}
