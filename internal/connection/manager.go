package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/telehub/internal/pkg/metrics"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

const defaultScanTimeout = 5 * time.Second

// ScanResult aggregates one scan of every transport.
type ScanResult struct {
	Devices []*Device `json:"devices"`
	// PrimaryTransport is the transport of the first device, or bluetooth
	// when nothing was found.
	PrimaryTransport Kind          `json:"primaryTransport"`
	Elapsed          time.Duration `json:"elapsedTime"`
}

// ChangeFunc observes the active slot. prev or next is nil when the slot was
// or becomes empty.
type ChangeFunc func(prev, next *Device)

// Manager owns the single active gateway connection of an agent. Scan and
// connect never return transport errors; failures become empty results or
// false.
type Manager struct {
	transports  map[Kind]Transport
	scanTimeout time.Duration
	clock       clock.PassiveClock

	mu        sync.Mutex
	active    *Device
	link      Link
	listeners []ChangeFunc
}

type Option func(*Manager)

// WithTransports replaces the transports built from options.
func WithTransports(ts ...Transport) Option {
	return func(m *Manager) {
		m.transports = make(map[Kind]Transport, len(ts))
		for _, t := range ts {
			m.transports[t.Kind()] = t
		}
	}
}

func WithClock(c clock.PassiveClock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithScanTimeout(d time.Duration) Option {
	return func(m *Manager) { m.scanTimeout = d }
}

// NewManager builds a Manager with the platform transports configured by
// opts.
func NewManager(opts *options.ConnectionOptions, fns ...Option) *Manager {
	m := &Manager{
		scanTimeout: opts.ScanTimeout,
		clock:       clock.RealClock{},
	}
	WithTransports(
		NewBluetooth(opts.BLENamePrefix),
		NewWiFi(opts.WiFiCandidates, opts.WiFiStatusPath, opts.MDNSService),
		NewUSB(opts.SerialPorts, opts.SerialBaud),
		NewCellular(opts.RegistryURL, opts.RegistryToken, opts.ScanTimeout),
	)(m)
	for _, fn := range fns {
		fn(m)
	}
	if m.scanTimeout <= 0 {
		m.scanTimeout = defaultScanTimeout
	}
	return m
}

// Scan discovers gateways on one transport within the scan timeout. Errors
// yield an empty list; an unusable transport yields its demo device.
func (m *Manager) Scan(ctx context.Context, kind Kind) []*Device {
	start := m.clock.Now()
	logger := log.FromContext(ctx).WithValues("transport", kind)

	devices, err := m.scan(ctx, kind)
	switch {
	case errors.Is(err, ErrUnavailable):
		logger.Debug("Transport unavailable, reporting demo device", "reason", err.Error())
		devices = []*Device{DemoDevice(kind, m.clock.Now())}
	case err != nil:
		logger.Warn("Scan failed", "error", err.Error())
		devices = []*Device{}
	}
	if devices == nil {
		devices = []*Device{}
	}

	metrics.ScanDuration.WithLabelValues(string(kind)).Observe(m.clock.Since(start).Seconds())
	metrics.DevicesFound.WithLabelValues(string(kind)).Set(float64(len(devices)))
	logger.Debug("Scan finished", "devices", len(devices))
	return devices
}

func (m *Manager) scan(ctx context.Context, kind Kind) (devices []*Device, err error) {
	t, ok := m.transports[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %s transport", ErrUnavailable, kind)
	}

	defer func() {
		if r := recover(); r != nil {
			devices, err = nil, fmt.Errorf("scan panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.scanTimeout)
	defer cancel()
	devices, err = t.Scan(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && len(devices) > 0 {
		// A transport that ran out of time still reports what it saw.
		err = nil
	}
	return devices, err
}

// ScanAll scans every transport concurrently and aggregates the results in
// transport order once all of them have settled.
func (m *Manager) ScanAll(ctx context.Context) ScanResult {
	start := m.clock.Now()

	results := make([][]*Device, len(Kinds))
	var g errgroup.Group
	for i, kind := range Kinds {
		g.Go(func() error {
			results[i] = m.Scan(ctx, kind)
			return nil
		})
	}
	_ = g.Wait()

	out := ScanResult{Devices: []*Device{}, PrimaryTransport: KindBluetooth}
	for _, devs := range results {
		out.Devices = append(out.Devices, devs...)
	}
	if len(out.Devices) > 0 {
		out.PrimaryTransport = out.Devices[0].Transport
	}
	out.Elapsed = m.clock.Since(start)

	log.FromContext(ctx).Info("Scan complete", "devices", len(out.Devices), "primary", out.PrimaryTransport, "elapsed", out.Elapsed)
	return out
}

// Connect opens dev and makes it the active connection, closing whatever was
// active before. On failure the active slot is left as it was.
func (m *Manager) Connect(ctx context.Context, dev *Device) bool {
	if dev == nil {
		return false
	}
	logger := log.FromContext(ctx).WithValues("device", dev.ID, "transport", dev.Transport)

	link, err := m.open(ctx, dev)
	if err != nil {
		logger.Warn("Connect failed", "error", err.Error())
		return false
	}

	next := dev.Clone()
	next.Status = StatusConnected
	next.LastSeen = m.clock.Now()

	m.mu.Lock()
	prev, prevLink := m.active, m.link
	m.active, m.link = next, link
	listeners := m.listeners
	m.mu.Unlock()

	if prevLink != nil {
		if err := prevLink.Close(); err != nil {
			logger.Debug("Closing previous link failed", "error", err.Error())
		}
	}
	setActiveMetric(next)
	logger.Info("Connected")
	notify(listeners, prev, next)
	return true
}

func (m *Manager) open(ctx context.Context, dev *Device) (link Link, err error) {
	if dev.Demo {
		return NewDemoLink(dev.ID), nil
	}
	t, ok := m.transports[dev.Transport]
	if !ok {
		return nil, fmt.Errorf("%w: no %s transport", ErrUnavailable, dev.Transport)
	}

	defer func() {
		if r := recover(); r != nil {
			link, err = nil, fmt.Errorf("connect panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.scanTimeout)
	defer cancel()
	link, err = t.Connect(ctx, dev)
	if err == nil && link == nil {
		err = errors.New("transport returned no link")
	}
	return link, err
}

// Disconnect clears the active slot. It is a no-op when nothing is active.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev, link := m.active, m.link
	m.active, m.link = nil, nil
	listeners := m.listeners
	m.mu.Unlock()

	if prev == nil {
		return
	}
	if link != nil {
		if err := link.Close(); err != nil {
			log.Debug("Closing link failed", "device", prev.ID, "error", err.Error())
		}
	}
	setActiveMetric(nil)
	log.Info("Disconnected", "device", prev.ID)
	notify(listeners, prev, nil)
}

// Active returns a copy of the active device, or nil.
func (m *Manager) Active() *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

// Link returns the open link of the active device, or nil.
func (m *Manager) Link() Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

// OnChange registers fn for every change of the active slot. fn runs on the
// goroutine that made the change.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func notify(listeners []ChangeFunc, prev, next *Device) {
	for _, fn := range listeners {
		fn(prev.Clone(), next.Clone())
	}
}

func setActiveMetric(active *Device) {
	for _, k := range Kinds {
		v := 0.0
		if active != nil && active.Transport == k {
			v = 1
		}
		metrics.ActiveConnection.WithLabelValues(string(k)).Set(v)
	}
}
