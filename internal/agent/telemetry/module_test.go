package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/telehub/internal/agent/core"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/internal/manufacturer"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/obd"
)

type sent struct {
	event core.EventType
	value any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (s *recordingSender) Send(ctx context.Context, e core.EventType, p []byte) error {
	return s.SendJSON(ctx, e, p)
}

func (s *recordingSender) SendJSON(_ context.Context, e core.EventType, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{event: e, value: v})
	return nil
}

func (s *recordingSender) statuses() []*model.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.StatusSnapshot
	for _, m := range s.sent {
		if st, ok := m.value.(*model.StatusSnapshot); ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *recordingSender) events() []core.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.EventType
	for _, m := range s.sent {
		out = append(out, m.event)
	}
	return out
}

type scriptedLink struct {
	mu       sync.Mutex
	frames   map[string][]byte
	codes    []string
	dtcReads int
}

func (l *scriptedLink) Query(_ context.Context, pid string) ([]byte, error) {
	if d, ok := l.frames[pid]; ok {
		return d, nil
	}
	return nil, obd.ErrNoData
}

func (l *scriptedLink) TroubleCodes(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dtcReads++
	return l.codes, nil
}

func (l *scriptedLink) Close() error { return nil }

type gateway struct {
	dev         *connection.Device
	link        connection.Link
	disconnects int
}

func (g *gateway) Active() *connection.Device { return g.dev.Clone() }
func (g *gateway) Link() connection.Link { return g.link }

func (g *gateway) Disconnect() {
	g.dev, g.link = nil, nil
	g.disconnects++
}

// deadLink is an adapter that stopped answering.
type deadLink struct{}

func (deadLink) Query(context.Context, string) ([]byte, error) { return nil, io.EOF }
func (deadLink) TroubleCodes(context.Context) ([]string, error) { return nil, io.EOF }
func (deadLink) Close() error { return nil }

type fakeManufacturer struct {
	manufacturer.Client
	data *manufacturer.VehicleData
	err  error
}

func (f *fakeManufacturer) GetVehicleData(context.Context, string) (*manufacturer.VehicleData, error) {
	return f.data, f.err
}

var start = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newModule(t *testing.T, gw core.Gateway, cfg Config) (*Module, *recordingSender, *testingclock.FakeClock) {
	t.Helper()
	fc := testingclock.NewFakeClock(start)
	cfg.VehicleID = "v-1"
	cfg.Clock = fc
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	m := New(cfg)
	sender := &recordingSender{}
	require.NoError(t, m.Setup(context.Background(), gw, sender))
	return m, sender, fc
}

func TestPollDecodesReadings(t *testing.T) {
	link := &scriptedLink{frames: map[string][]byte{
		"0C": {0x1A, 0xF8},
		"2F": {0x80},
		"42": {0x31, 0x2D},
		"0D": {},
	}}
	gw := &gateway{
		dev:  &connection.Device{ID: "d1", Transport: connection.KindWiFi, SignalStrength: 70},
		link: link,
	}
	m, sender, _ := newModule(t, gw, Config{PIDs: []string{"0c", "0D", "2F", "42", "05", "ZZ"}})

	require.NoError(t, m.Poll(context.Background()))

	st := sender.statuses()
	require.Len(t, st, 1)
	s := st[0]
	assert.Equal(t, "v-1", s.VehicleID)
	assert.Equal(t, start, s.UpdatedAt)
	assert.Equal(t, 1726.0, s.Readings["0C"])
	assert.NotContains(t, s.Readings, "0D")
	assert.NotContains(t, s.Readings, "05")
	assert.True(t, s.EngineRunning)
	require.NotNil(t, s.FuelLevel)
	assert.InDelta(t, 50.2, *s.FuelLevel, 0.1)
	require.NotNil(t, s.BatteryVoltage)
	assert.InDelta(t, 12.589, *s.BatteryVoltage, 1e-9)

	assert.True(t, s.Connectivity.IsConnected)
	assert.Equal(t, "wifi", s.Connectivity.Transport)
	assert.Equal(t, 70, s.Connectivity.SignalStrength)
	assert.Nil(t, s.DTCs)
}

func TestPollWithoutGateway(t *testing.T) {
	m, sender, _ := newModule(t, &gateway{}, Config{PIDs: []string{"0C"}})

	require.NoError(t, m.Poll(context.Background()))

	st := sender.statuses()
	require.Len(t, st, 1)
	assert.False(t, st[0].Connectivity.IsConnected)
	assert.Empty(t, st[0].Readings)
}

func TestTroubleCodesAreCached(t *testing.T) {
	link := &scriptedLink{codes: []string{"P0171"}}
	gw := &gateway{dev: &connection.Device{ID: "d1"}, link: link}
	m, sender, fc := newModule(t, gw, Config{DTCInterval: time.Minute})

	require.NoError(t, m.Poll(context.Background()))
	fc.Step(30 * time.Second)
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 1, link.dtcReads)

	fc.Step(30 * time.Second)
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 2, link.dtcReads)

	for _, s := range sender.statuses() {
		assert.Equal(t, []string{"P0171"}, s.DTCs)
	}
}

func TestManufacturerEnrichment(t *testing.T) {
	locked := true
	mf := &fakeManufacturer{data: &manufacturer.VehicleData{
		Locked:   &locked,
		Location: &model.Location{Lat: 52.5, Lng: 13.4},
	}}
	m, sender, _ := newModule(t, &gateway{}, Config{Manufacturer: mf, VIN: "VIN1"})

	require.NoError(t, m.Poll(context.Background()))

	assert.Equal(t, []core.EventType{core.EventLocation, core.EventStatus}, sender.events())
	s := sender.statuses()[0]
	assert.True(t, s.DoorsLocked)
	assert.Nil(t, s.Location)

	mf.err, mf.data = errors.New("timeout"), nil
	require.NoError(t, m.Poll(context.Background()))
	assert.Len(t, sender.statuses(), 2)
}

func TestRunPollsOnTick(t *testing.T) {
	m, sender, fc := newModule(t, &gateway{}, Config{PollInterval: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(5 * time.Second)
	require.Eventually(t, func() bool { return len(sender.statuses()) == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestDeadLinkDisconnectsGateway(t *testing.T) {
	gw := &gateway{dev: &connection.Device{ID: "d1", Transport: connection.KindUSB}, link: deadLink{}}
	m, sender, _ := newModule(t, gw, Config{PIDs: []string{"0C", "0D"}, DTCInterval: time.Minute, MaxFailures: 3})

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Poll(context.Background()))
	}
	assert.Zero(t, gw.disconnects)
	for _, s := range sender.statuses() {
		assert.True(t, s.Connectivity.IsConnected)
	}

	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 1, gw.disconnects)

	statuses := sender.statuses()
	require.Len(t, statuses, 3)
	last := statuses[2]
	assert.False(t, last.Connectivity.IsConnected)
	assert.Empty(t, last.Readings)
	assert.Empty(t, last.DTCs)
}

func TestUnansweredPIDsKeepGateway(t *testing.T) {
	// NO DATA is an answer: the vehicle is there, the PID is not.
	gw := &gateway{dev: &connection.Device{ID: "d1"}, link: &scriptedLink{}}
	m, sender, _ := newModule(t, gw, Config{PIDs: []string{"0C"}, MaxFailures: 1})

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Poll(context.Background()))
	}
	assert.Zero(t, gw.disconnects)
	for _, s := range sender.statuses() {
		assert.True(t, s.Connectivity.IsConnected)
	}
}
