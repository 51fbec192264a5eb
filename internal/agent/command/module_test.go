package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/telehub/internal/agent/core"
	"github.com/autopeer-io/telehub/internal/connection"
	"github.com/autopeer-io/telehub/internal/manufacturer"
	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

type sent struct {
	event core.EventType
	value any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (s *recordingSender) Send(_ context.Context, e core.EventType, p []byte) error {
	return s.SendJSON(context.Background(), e, json.RawMessage(p))
}

func (s *recordingSender) SendJSON(_ context.Context, e core.EventType, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{event: e, value: v})
	return nil
}

func (s *recordingSender) results() []*wire.CommandResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*wire.CommandResult
	for _, m := range s.sent {
		if r, ok := m.value.(*wire.CommandResult); ok && m.event == core.EventCommandResult {
			out = append(out, r)
		}
	}
	return out
}

type staticGateway struct{ dev *connection.Device }

func (g staticGateway) Active() *connection.Device { return g.dev }
func (g staticGateway) Link() connection.Link { return nil }
func (g staticGateway) Disconnect() {}

type fakeManufacturer struct {
	manufacturer.Client
	res    *manufacturer.CommandResult
	err    error
	action model.Action
	params map[string]string
}

func (f *fakeManufacturer) SendCommand(_ context.Context, _ string, action model.Action, params map[string]string) (*manufacturer.CommandResult, error) {
	f.action, f.params = action, params
	return f.res, f.err
}

func setup(t *testing.T, mf manufacturer.Client) (core.HandlerFunc, *recordingSender) {
	t.Helper()
	m := New("v-1", "VIN1", mf)
	sender := &recordingSender{}
	gw := staticGateway{dev: &connection.Device{ID: "d", Transport: connection.KindUSB}}
	require.NoError(t, m.Setup(context.Background(), gw, sender))
	h, ok := m.Routes()[core.EventCommand]
	require.True(t, ok)
	return h, sender
}

func payload(t *testing.T, cmd wire.CommandExecute) []byte {
	t.Helper()
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	return b
}

func TestLocalAcknowledge(t *testing.T) {
	h, sender := setup(t, nil)

	require.NoError(t, h(context.Background(), payload(t, wire.CommandExecute{CommandID: "c-1", VehicleID: "v-1", Action: model.ActionHonkHorn})))

	res := sender.results()
	require.Len(t, res, 1)
	assert.Equal(t, "c-1", res[0].CommandID)
	assert.True(t, res[0].Success)
	assert.Equal(t, "usb", res[0].Response["transport"])
}

func TestManufacturerExecution(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		mf := &fakeManufacturer{res: &manufacturer.CommandResult{Success: true, Response: map[string]any{"id": "x"}}}
		h, sender := setup(t, mf)

		cmd := wire.CommandExecute{CommandID: "c-2", Action: model.ActionSetTemperature, Parameters: map[string]string{"temperature": "21"}}
		require.NoError(t, h(context.Background(), payload(t, cmd)))

		assert.Equal(t, model.ActionSetTemperature, mf.action)
		assert.Equal(t, "21", mf.params["temperature"])
		res := sender.results()
		require.Len(t, res, 1)
		assert.True(t, res[0].Success)
		assert.Equal(t, "x", res[0].Response["id"])
	})

	t.Run("refused", func(t *testing.T) {
		h, sender := setup(t, &fakeManufacturer{res: &manufacturer.CommandResult{Success: false}})
		require.NoError(t, h(context.Background(), payload(t, wire.CommandExecute{CommandID: "c-3", Action: model.ActionLockDoors})))

		res := sender.results()
		require.Len(t, res, 1)
		assert.False(t, res[0].Success)
		assert.Equal(t, "rejected by manufacturer", res[0].Error)
	})

	t.Run("unsupported", func(t *testing.T) {
		h, sender := setup(t, &fakeManufacturer{err: manufacturer.ErrUnsupportedAction})
		require.NoError(t, h(context.Background(), payload(t, wire.CommandExecute{CommandID: "c-4", Action: model.ActionOpenTrunk})))

		res := sender.results()
		require.Len(t, res, 1)
		assert.False(t, res[0].Success)
		assert.Contains(t, res[0].Error, "OPEN_TRUNK")
	})

	t.Run("api error", func(t *testing.T) {
		h, sender := setup(t, &fakeManufacturer{err: errors.New("502 bad gateway")})
		require.NoError(t, h(context.Background(), payload(t, wire.CommandExecute{CommandID: "c-5", Action: model.ActionLockDoors})))

		res := sender.results()
		require.Len(t, res, 1)
		assert.Contains(t, res[0].Error, "502")
	})
}

func TestIgnoresForeignAndMalformed(t *testing.T) {
	h, sender := setup(t, nil)

	require.NoError(t, h(context.Background(), payload(t, wire.CommandExecute{CommandID: "c-1", VehicleID: "v-2"})))
	assert.Error(t, h(context.Background(), []byte("{")))
	assert.Error(t, h(context.Background(), []byte(`{"action":"LOCK_DOORS"}`)))
	assert.Empty(t, sender.results())
}
