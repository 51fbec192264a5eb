package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/telehub/internal/telehub/command"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/internal/telehub/store/memory"
	"github.com/autopeer-io/telehub/pkg/options"
)

const (
	alice   = "alice"
	mallory = "mallory"
	veh     = "veh-1"
)

type recordingNotifier struct {
	mu   sync.Mutex
	cmds []*model.Command
}

func (n *recordingNotifier) Notify(_ context.Context, cmd *model.Command) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cmds = append(n.cmds, cmd)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.cmds)
}

type harness struct {
	hub      *Hub
	svc      *command.Service
	store    *memory.Store
	clock    *testingclock.FakeClock
	notifier *recordingNotifier
	ctx      context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.New()
	require.NoError(t, store.Vehicle().Create(ctx, &model.Vehicle{
		ID:            veh,
		OwnerID:       alice,
		RemoteControl: &model.RemoteControlConfig{RemoteLockEnabled: true, HornLightsEnabled: true},
	}))

	fc := testingclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := command.New(store, options.NewCommandOptions(), command.WithClock(fc))
	t.Cleanup(svc.Stop)

	n := &recordingNotifier{}
	hub := NewHub(store, svc, n, options.NewRealtimeOptions(), WithHubClock(fc))
	svc.SetBroadcaster(hub)
	t.Cleanup(hub.Shutdown)

	return &harness{hub: hub, svc: svc, store: store, clock: fc, notifier: n, ctx: ctx}
}

func (h *harness) session(t *testing.T, principal string) *Session {
	t.Helper()
	s := h.hub.NewSession(principal)
	go s.Run(h.ctx)
	return s
}

func send(t *testing.T, s *Session, event string, payload any) {
	t.Helper()
	env, err := NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(context.Background(), env))
}

func next(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case frame := <-s.Outbound():
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Envelope{}
	}
}

func expectNone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case frame := <-s.Outbound():
		t.Fatalf("unexpected event %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func register(t *testing.T, s *Session, userID string) {
	t.Helper()
	send(t, s, core.EventRegisterVehicle, RegisterPayload{VehicleID: veh, UserID: userID})
	require.Equal(t, core.EventRegistered, next(t, s).Event)
}

func TestUnauthorizedRegisterReceivesNoUpdates(t *testing.T) {
	h := newHarness(t)

	intruder := h.session(t, "")
	send(t, intruder, core.EventRegisterVehicle, RegisterPayload{VehicleID: veh, UserID: mallory})
	env := next(t, intruder)
	require.Equal(t, core.EventRegisterError, env.Event)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "NotFound", payload.Code)
	assert.Equal(t, StateConnecting, intruder.State())

	owner := h.session(t, "")
	register(t, owner, alice)

	send(t, owner, core.EventVehicleStatus, StatusPayload{
		VehicleID: veh,
		Status:    model.StatusSnapshot{EngineRunning: true, Connectivity: model.Connectivity{IsConnected: true}},
	})
	assert.Equal(t, core.EventStatusUpdate, next(t, owner).Event)
	expectNone(t, intruder)

	// The intruder cannot push status either.
	send(t, intruder, core.EventVehicleStatus, StatusPayload{VehicleID: veh})
	assert.Equal(t, core.EventError, next(t, intruder).Event)
	expectNone(t, owner)
}

func TestRegisterRequiresMatchingPrincipal(t *testing.T) {
	h := newHarness(t)

	s := h.session(t, mallory)
	send(t, s, core.EventRegisterVehicle, RegisterPayload{VehicleID: veh, UserID: alice})
	assert.Equal(t, core.EventRegisterError, next(t, s).Event)
	assert.Zero(t, h.hub.Members(core.VehicleGroup(veh)))

	ok := h.session(t, alice)
	register(t, ok, alice)
	assert.Equal(t, 1, h.hub.Members(core.VehicleGroup(veh)))
	assert.Equal(t, 1, h.hub.Members(core.UserGroup(alice)))
}

// gatedVehicles holds every lookup until release is closed.
type gatedVehicles struct {
	core.VehicleRepository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedVehicles) Get(ctx context.Context, id string) (*model.Vehicle, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.VehicleRepository.Get(ctx, id)
}

func TestSessionClosedDuringRegisterStaysOut(t *testing.T) {
	h := newHarness(t)
	gate := &gatedVehicles{
		VehicleRepository: h.store.Vehicle(),
		entered:           make(chan struct{}, 1),
		release:           make(chan struct{}),
	}
	h.hub.vehicles = gate

	s := h.session(t, alice)
	send(t, s, core.EventRegisterVehicle, RegisterPayload{VehicleID: veh, UserID: alice})

	select {
	case <-gate.entered:
	case <-time.After(time.Second):
		t.Fatal("register never looked up the vehicle")
	}
	s.Close()
	close(gate.release)

	assert.Never(t, func() bool {
		return h.hub.Members(core.VehicleGroup(veh)) > 0 || h.hub.Members(core.UserGroup(alice)) > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.False(t, s.registered(veh))
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	s := h.session(t, alice)
	assert.Equal(t, StateConnecting, s.State())

	register(t, s, alice)
	assert.Equal(t, StateRegistered, s.State())

	send(t, s, core.EventVehicleLocation, LocationPayload{VehicleID: veh, Lat: 48.1, Lng: 11.5})
	assert.Equal(t, core.EventLocationUpdate, next(t, s).Event)
	assert.Equal(t, StateActive, s.State())

	register(t, s, alice)
	assert.Equal(t, StateActive, s.State())

	s.Close()
	assert.Equal(t, StateDisconnected, s.State())
	assert.Zero(t, h.hub.Members(core.VehicleGroup(veh)))

	env, err := NewEnvelope(core.EventVehicleStatus, StatusPayload{VehicleID: veh})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Enqueue(context.Background(), env), ErrSessionClosed)
}

func TestLocationGeofenceAlert(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.GeoFence().Upsert(h.ctx, fence()))

	s := h.session(t, alice)
	register(t, s, alice)

	inside := north(100)
	send(t, s, core.EventVehicleLocation, LocationPayload{VehicleID: veh, Lat: inside.Lat, Lng: inside.Lng})
	assert.Equal(t, core.EventLocationUpdate, next(t, s).Event)
	expectNone(t, s)

	outside := north(3000)
	send(t, s, core.EventVehicleLocation, LocationPayload{VehicleID: veh, Lat: outside.Lat, Lng: outside.Lng})
	assert.Equal(t, core.EventLocationUpdate, next(t, s).Event)
	env := next(t, s)
	require.Equal(t, core.EventGeofenceAlert, env.Event)

	var alert GeofenceAlert
	require.NoError(t, json.Unmarshal(env.Data, &alert))
	assert.Equal(t, veh, alert.VehicleID)
	assert.InDelta(t, 3000, alert.DistanceMeters, 1)
	assert.Equal(t, 1000.0, alert.RadiusMeters)

	send(t, s, core.EventVehicleLocation, LocationPayload{VehicleID: veh, Lat: outside.Lat, Lng: outside.Lng})
	assert.Equal(t, core.EventLocationUpdate, next(t, s).Event)
	expectNone(t, s)

	snap, err := h.store.Status().Get(h.ctx, veh)
	require.NoError(t, err)
	require.NotNil(t, snap.Location)
	assert.InDelta(t, outside.Lat, snap.Location.Lat, 1e-9)
}

func TestInvalidLocationRejected(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, alice)
	register(t, s, alice)

	send(t, s, core.EventVehicleLocation, LocationPayload{VehicleID: veh, Lat: 123, Lng: 0})
	env := next(t, s)
	require.Equal(t, core.EventError, env.Event)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "InvalidArgument", payload.Code)
}

func TestStatusConnectivityEdges(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, alice)
	register(t, s, alice)

	send(t, s, core.EventVehicleStatus, StatusPayload{VehicleID: veh, Status: model.StatusSnapshot{
		Connectivity: model.Connectivity{IsConnected: true, Transport: "wifi"},
	}})
	assert.Equal(t, core.EventStatusUpdate, next(t, s).Event)

	resp, err := h.svc.Submit(h.ctx, command.SubmitRequest{VehicleID: veh, UserID: alice, Action: model.ActionLockDoors})
	require.NoError(t, err)

	send(t, s, core.EventVehicleStatus, StatusPayload{VehicleID: veh, Status: model.StatusSnapshot{
		Connectivity: model.Connectivity{IsConnected: false},
	}})
	assert.Equal(t, core.EventStatusUpdate, next(t, s).Event)
	update := next(t, s)
	assert.Equal(t, core.EventCommandUpdate, update.Event)

	cmd, err := h.store.Command().Get(h.ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)

	entries, err := h.store.Connectivity().List(h.ctx, veh, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Connected)
	assert.Equal(t, "wifi", entries[0].Transport)
	assert.True(t, entries[1].Connected)
}

func TestCommandSendAndResult(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Status().UpsertStatus(h.ctx, &model.StatusSnapshot{
		VehicleID:    veh,
		Connectivity: model.Connectivity{IsConnected: true},
	})
	require.NoError(t, err)

	s := h.session(t, alice)
	register(t, s, alice)

	resp, err := h.svc.Submit(h.ctx, command.SubmitRequest{VehicleID: veh, UserID: alice, Action: model.ActionHonkHorn})
	require.NoError(t, err)

	send(t, s, core.EventCommandSend, CommandSendPayload{VehicleID: veh, UserID: alice, CommandID: resp.CommandID, Action: model.ActionHonkHorn})
	env := next(t, s)
	require.Equal(t, core.EventCommandExecute, env.Event)

	var exec CommandExecute
	require.NoError(t, json.Unmarshal(env.Data, &exec))
	assert.Equal(t, resp.CommandID, exec.CommandID)
	assert.Equal(t, 1, h.notifier.count())

	cmd, err := h.store.Command().Get(h.ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusSent, cmd.Status)

	// The simulated completion was cancelled.
	h.clock.Step(time.Minute)

	send(t, s, core.EventCommandResult, CommandResultPayload{CommandID: resp.CommandID, Success: true})
	assert.Equal(t, core.EventCommandUpdate, next(t, s).Event)

	send(t, s, core.EventCommandResult, CommandResultPayload{CommandID: resp.CommandID, Success: false, Error: "late"})
	expectNone(t, s)

	cmd, err = h.store.Command().Get(h.ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusCompleted, cmd.Status)
	assert.Empty(t, cmd.Error)

	send(t, s, core.EventCommandSend, CommandSendPayload{VehicleID: veh, UserID: alice, CommandID: resp.CommandID})
	assert.Equal(t, core.EventError, next(t, s).Event)
}

func TestCommandSendRejectsForeignCommand(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, alice)
	register(t, s, alice)

	send(t, s, core.EventCommandSend, CommandSendPayload{VehicleID: veh, UserID: alice, CommandID: "missing"})
	env := next(t, s)
	require.Equal(t, core.EventError, env.Event)
	assert.Zero(t, h.notifier.count())
}
