package agent

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/telehub/internal/agent/command"
	"github.com/autopeer-io/telehub/internal/agent/hub"
	"github.com/autopeer-io/telehub/internal/agent/telemetry"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/telehub/pkg/mqtt/topic"
	"github.com/autopeer-io/telehub/pkg/options"
)

func dev(id string, kind connection.Kind, demo bool) *connection.Device {
	return &connection.Device{ID: id, Transport: kind, Demo: demo}
}

func TestPick(t *testing.T) {
	tests := []struct {
		name      string
		devices   []*connection.Device
		preferred connection.Kind
		want      string
	}{
		{
			name:      "preferred live",
			devices:   []*connection.Device{dev("b", connection.KindBluetooth, false), dev("u", connection.KindUSB, false)},
			preferred: connection.KindUSB,
			want:      "u",
		},
		{
			name:      "live beats preferred demo",
			devices:   []*connection.Device{dev("demo-bluetooth", connection.KindBluetooth, true), dev("w", connection.KindWiFi, false)},
			preferred: connection.KindBluetooth,
			want:      "w",
		},
		{
			name:      "preferred demo",
			devices:   []*connection.Device{dev("demo-bluetooth", connection.KindBluetooth, true), dev("demo-usb", connection.KindUSB, true)},
			preferred: connection.KindUSB,
			want:      "demo-usb",
		},
		{
			name:      "primary fallback",
			devices:   []*connection.Device{dev("demo-bluetooth", connection.KindBluetooth, true)},
			preferred: connection.KindCellular,
			want:      "demo-bluetooth",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := connection.ScanResult{Devices: tt.devices, PrimaryTransport: tt.devices[0].Transport}
			got := Pick(res, tt.preferred)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	assert.Nil(t, Pick(connection.ScanResult{PrimaryTransport: connection.KindBluetooth}, connection.KindUSB))
}

func decodeOnline(t *testing.T, payload []byte) wire.Online {
	t.Helper()
	var o wire.Online
	require.NoError(t, json.Unmarshal(payload, &o))
	return o
}

func TestAgentRun(t *testing.T) {
	fake := mqtttest.NewFake()
	topics := topic.NewTopicBuilder("iov/v1")

	// No transports at all: every scan reports the demo device.
	conn := connection.NewManager(options.NewConnectionOptions(), connection.WithTransports())

	a := NewAgent("v-1", hub.New("v-1", fake, topics), conn, connection.KindUSB, time.Hour,
		telemetry.New(telemetry.Config{VehicleID: "v-1", PIDs: []string{"0C", "0D"}, PollInterval: 10 * time.Millisecond}),
		command.New("v-1", "", nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		active := conn.Active()
		return active != nil && active.ID == "demo-usb"
	}, 2*time.Second, 5*time.Millisecond)

	// A status poll through the demo link.
	require.Eventually(t, func() bool {
		for _, m := range fake.Published() {
			if m.Topic != topics.VehicleStatus("v-1") {
				continue
			}
			var s model.StatusSnapshot
			if json.Unmarshal(m.Payload, &s) != nil {
				continue
			}
			if s.Connectivity.Transport == "usb" && len(s.Readings) == 2 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	// A command round trip.
	cmd, _ := json.Marshal(wire.CommandExecute{CommandID: "c-1", VehicleID: "v-1", Action: model.ActionLockDoors})
	require.NoError(t, fake.Publish(ctx, topics.Command("v-1"), 1, false, cmd))

	var result *wire.CommandResult
	for _, m := range fake.Published() {
		if m.Topic == topics.CommandResult("v-1") {
			result = &wire.CommandResult{}
			require.NoError(t, json.Unmarshal(m.Payload, result))
		}
	}
	require.NotNil(t, result)
	assert.Equal(t, "c-1", result.CommandID)
	assert.True(t, result.Success)

	cancel()
	require.NoError(t, <-done)
	assert.Nil(t, conn.Active())

	var presence []wire.Online
	for _, m := range fake.Published() {
		if m.Topic == topics.VehicleOnline("v-1") {
			assert.True(t, m.Retain)
			presence = append(presence, decodeOnline(t, m.Payload))
		}
	}
	require.GreaterOrEqual(t, len(presence), 3)
	assert.Equal(t, wire.Online{Online: true}, presence[0])
	assert.Contains(t, presence, wire.Online{Online: true, Transport: "usb"})
	assert.Equal(t, wire.Online{Online: false}, presence[len(presence)-1])
	assert.False(t, fake.IsConnected())
}

// deadLink is an adapter that stopped answering.
type deadLink struct{}

func (deadLink) Query(context.Context, string) ([]byte, error) { return nil, io.EOF }
func (deadLink) TroubleCodes(context.Context) ([]string, error) { return nil, io.EOF }
func (deadLink) Close() error { return nil }

// deadTransport finds one USB adapter whose link never answers.
type deadTransport struct {
	mu       sync.Mutex
	connects int
}

func (*deadTransport) Kind() connection.Kind { return connection.KindUSB }

func (*deadTransport) Scan(context.Context) ([]*connection.Device, error) {
	return []*connection.Device{dev("usb-1", connection.KindUSB, false)}, nil
}

func (d *deadTransport) Connect(context.Context, *connection.Device) (connection.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	return deadLink{}, nil
}

func (d *deadTransport) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func TestAgentReconnectsDeadLink(t *testing.T) {
	fake := mqtttest.NewFake()
	topics := topic.NewTopicBuilder("iov/v1")
	transport := &deadTransport{}
	conn := connection.NewManager(options.NewConnectionOptions(), connection.WithTransports(transport))

	var mu sync.Mutex
	dropped := 0
	conn.OnChange(func(prev, next *connection.Device) {
		if prev != nil && prev.ID == "usb-1" && next == nil {
			mu.Lock()
			dropped++
			mu.Unlock()
		}
	})

	a := NewAgent("v-1", hub.New("v-1", fake, topics), conn, connection.KindUSB, 20*time.Millisecond,
		telemetry.New(telemetry.Config{VehicleID: "v-1", PIDs: []string{"0C"}, PollInterval: 5 * time.Millisecond, MaxFailures: 2}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dropped >= 1 && transport.count() >= 2
	}, 3*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	connected, offlineAfter := false, false
	for _, m := range fake.Published() {
		if m.Topic != topics.VehicleStatus("v-1") {
			continue
		}
		var s model.StatusSnapshot
		require.NoError(t, json.Unmarshal(m.Payload, &s))
		if s.Connectivity.IsConnected {
			connected = true
		} else if connected {
			offlineAfter = true
		}
	}
	assert.True(t, offlineAfter, "a dropped link must be reported as disconnected")
}
