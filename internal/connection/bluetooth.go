package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-ble/ble"
)

// Most BLE ELM327 clones expose the serial bridge as service FFF0 with a
// notify characteristic FFF1 and a write characteristic FFF2.
var (
	bleNotifyUUID = ble.UUID16(0xFFF1)
	bleWriteUUID  = ble.UUID16(0xFFF2)
)

// bleCentral is the part of ble.Device the transport uses.
type bleCentral interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
}

type bluetooth struct {
	namePrefix string

	once       sync.Once
	central    bleCentral
	centralErr error
	open       func() (bleCentral, error)
}

// NewBluetooth discovers BLE OBD adapters whose local name starts with
// namePrefix.
func NewBluetooth(namePrefix string) Transport {
	return &bluetooth{namePrefix: namePrefix, open: newBLECentral}
}

func (b *bluetooth) Kind() Kind { return KindBluetooth }

func (b *bluetooth) device() (bleCentral, error) {
	b.once.Do(func() {
		b.central, b.centralErr = b.open()
		if b.centralErr != nil {
			b.centralErr = fmt.Errorf("%w: %v", ErrUnavailable, b.centralErr)
		}
	})
	return b.central, b.centralErr
}

func (b *bluetooth) Scan(ctx context.Context) ([]*Device, error) {
	dev, err := b.device()
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		seen  = map[string]*Device{}
		order []string
	)
	handler := func(a ble.Advertisement) {
		name := a.LocalName()
		if !strings.HasPrefix(name, b.namePrefix) || !a.Connectable() {
			return
		}
		addr := a.Addr().String()

		mu.Lock()
		defer mu.Unlock()
		d, ok := seen[addr]
		if !ok {
			d = &Device{
				ID:        "ble-" + strings.ReplaceAll(addr, ":", ""),
				Name:      name,
				Transport: KindBluetooth,
				Protocol:  protocolAuto,
				Status:    StatusDisconnected,
				Address:   addr,
			}
			seen[addr] = d
			order = append(order, addr)
		}
		d.SignalStrength = rssiQuality(a.RSSI())
	}

	err = dev.Scan(ctx, false, handler)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = nil
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]*Device, 0, len(order))
	for _, addr := range order {
		out = append(out, seen[addr])
	}
	return out, err
}

func (b *bluetooth) Connect(ctx context.Context, d *Device) (Link, error) {
	dev, err := b.device()
	if err != nil {
		return nil, err
	}
	client, err := dev.Dial(ctx, ble.NewAddr(d.Address))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Address, err)
	}

	stream, err := newBLEStream(client)
	if err != nil {
		_ = client.CancelConnection()
		return nil, err
	}
	return newELMLink(ctx, stream)
}

// rssiQuality maps -100..-50 dBm onto 0..100.
func rssiQuality(rssi int) int {
	q := (rssi + 100) * 2
	return max(0, min(100, q))
}

// bleStream turns the notify/write characteristic pair into a byte stream.
type bleStream struct {
	client ble.Client
	write  *ble.Characteristic
	pr     *io.PipeReader
	pw     *io.PipeWriter
}

func newBLEStream(client ble.Client) (*bleStream, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("discover profile: %w", err)
	}

	var notify, write *ble.Characteristic
	for _, s := range profile.Services {
		for _, c := range s.Characteristics {
			switch {
			case c.UUID.Equal(bleNotifyUUID):
				notify = c
			case c.UUID.Equal(bleWriteUUID):
				write = c
			}
		}
	}
	if notify == nil || write == nil {
		return nil, errors.New("adapter has no serial bridge characteristics")
	}

	pr, pw := io.Pipe()
	s := &bleStream{client: client, write: write, pr: pr, pw: pw}
	if err := client.Subscribe(notify, false, func(p []byte) {
		_, _ = pw.Write(p)
	}); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	go func() {
		<-client.Disconnected()
		_ = pw.CloseWithError(io.ErrUnexpectedEOF)
	}()
	return s, nil
}

func (s *bleStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *bleStream) Write(p []byte) (int, error) {
	if err := s.client.WriteCharacteristic(s.write, p, true); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *bleStream) Close() error {
	_ = s.client.ClearSubscriptions()
	_ = s.pw.Close()
	return s.client.CancelConnection()
}
