// Package telemetry polls the connected gateway and publishes the vehicle's
// status snapshot.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/telehub/internal/agent/core"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/internal/manufacturer"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/obd"
)

const (
	pidEngineSpeed = "0C"
	pidFuelLevel   = "2F"
	pidVoltage     = "42"

	defaultMaxFailures = 3
)

type Config struct {
	VehicleID    string
	PIDs         []string
	PollInterval time.Duration
	// DTCInterval is how often trouble codes are read; 0 disables it.
	DTCInterval time.Duration
	// MaxFailures is how many consecutive polls may fail every PID query
	// before the gateway is disconnected. Defaults to 3.
	MaxFailures int

	// Manufacturer and VIN enrich each snapshot with cloud data when set.
	Manufacturer manufacturer.Client
	VIN          string

	Clock clock.WithTicker
}

// Module publishes a status snapshot every poll interval.
type Module struct {
	cfg Config

	gw     core.Gateway
	sender core.Sender

	mu       sync.Mutex
	dtcs     []string
	lastDTCs time.Time
	failures int
}

var (
	_ core.Module = (*Module)(nil)
	_ core.Runner = (*Module)(nil)
)

func New(cfg Config) *Module {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	return &Module{cfg: cfg}
}

func (m *Module) Name() string { return "telemetry" }

func (m *Module) Setup(_ context.Context, gw core.Gateway, sender core.Sender) error {
	m.gw, m.sender = gw, sender
	return nil
}

func (m *Module) Routes() map[core.EventType]core.HandlerFunc { return nil }

func (m *Module) Run(ctx context.Context) error {
	ticker := m.cfg.Clock.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := m.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(err, "Status poll failed", "vehicleID", m.cfg.VehicleID)
			}
		}
	}
}

// Poll reads the gateway once and publishes the resulting snapshot, plus a
// location fix when the manufacturer reports one.
func (m *Module) Poll(ctx context.Context) error {
	now := m.cfg.Clock.Now()
	s := &model.StatusSnapshot{
		VehicleID: m.cfg.VehicleID,
		Readings:  map[string]float64{},
		UpdatedAt: now,
	}

	if link := m.gw.Link(); link != nil {
		alive := m.read(ctx, link, s)
		if alive {
			s.DTCs = m.troubleCodes(ctx, link, now)
		}
		if ctx.Err() == nil {
			m.track(alive)
		}
	}
	// Read after the link check so a dropped gateway reports offline.
	if dev := m.gw.Active(); dev != nil {
		s.Connectivity = model.Connectivity{
			IsConnected:    true,
			Transport:      string(dev.Transport),
			SignalStrength: dev.SignalStrength,
			LastSeen:       now,
		}
	}

	if m.cfg.Manufacturer != nil {
		data, err := m.cfg.Manufacturer.GetVehicleData(ctx, m.cfg.VIN)
		if err != nil {
			log.Warn("Manufacturer vehicle data unavailable", "vin", m.cfg.VIN, "error", err.Error())
		} else {
			data.Apply(s)
			if data.Location != nil {
				if err := m.sender.SendJSON(ctx, core.EventLocation, data.Location); err != nil {
					return err
				}
			}
		}
	}

	// Location travels on its own topic.
	s.Location = nil
	return m.sender.SendJSON(ctx, core.EventStatus, s)
}

// read queries every configured PID. A PID that fails is left out without
// affecting the others. It reports false when queries were sent and every
// one of them failed without the vehicle answering.
func (m *Module) read(ctx context.Context, link connection.Link, s *model.StatusSnapshot) bool {
	queried, answered := 0, 0
	for _, pid := range m.cfg.PIDs {
		p, ok := obd.Lookup(pid)
		if !ok {
			continue
		}
		queried++
		data, err := link.Query(ctx, p.PID)
		if errors.Is(err, obd.ErrNoData) {
			answered++
			continue
		}
		if err != nil {
			log.Debug("PID query failed", "pid", p.PID, "error", err.Error())
			continue
		}
		answered++
		if v, ok := obd.Decode(p.PID, data); ok {
			s.Readings[p.PID] = v
		}
	}

	if v, ok := s.Readings[pidEngineSpeed]; ok {
		s.EngineRunning = v > 0
	}
	if v, ok := s.Readings[pidFuelLevel]; ok {
		s.FuelLevel = &v
	}
	if v, ok := s.Readings[pidVoltage]; ok {
		s.BatteryVoltage = &v
	}
	return queried == 0 || answered > 0
}

// track counts polls whose link went unanswered and disconnects the gateway
// once MaxFailures of them happen in a row.
func (m *Module) track(alive bool) {
	m.mu.Lock()
	if alive {
		m.failures = 0
		m.mu.Unlock()
		return
	}
	m.failures++
	failures := m.failures
	lost := failures >= m.cfg.MaxFailures
	if lost {
		m.failures = 0
	}
	m.mu.Unlock()

	if !lost {
		log.Debug("Gateway link unanswered", "vehicleID", m.cfg.VehicleID, "failures", failures)
		return
	}
	log.Warn("Gateway link lost, disconnecting", "vehicleID", m.cfg.VehicleID, "failures", failures)
	m.gw.Disconnect()
}

// troubleCodes returns the cached codes, refreshing them once DTCInterval
// has passed.
func (m *Module) troubleCodes(ctx context.Context, link connection.Link, now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.DTCInterval <= 0 {
		return nil
	}
	if m.lastDTCs.IsZero() || now.Sub(m.lastDTCs) >= m.cfg.DTCInterval {
		codes, err := link.TroubleCodes(ctx)
		if err != nil {
			log.Debug("Trouble code read failed", "error", err.Error())
		} else {
			m.dtcs = codes
			m.lastDTCs = now
		}
	}
	return append([]string(nil), m.dtcs...)
}
