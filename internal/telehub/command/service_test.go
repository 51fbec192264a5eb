package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/internal/telehub/store/memory"
	"github.com/autopeer-io/telehub/pkg/options"
)

const (
	owner     = "user-1"
	stranger  = "user-2"
	vehicleID = "veh-1"
)

type event struct {
	group, name string
	payload     any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []event
}

func (b *recordingBroadcaster) Broadcast(group, name string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{group: group, name: name, payload: payload})
}

func (b *recordingBroadcaster) named(name string) []event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event
	for _, e := range b.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *testingclock.FakeClock
	bc    *recordingBroadcaster
}

func allEnabled() *model.RemoteControlConfig {
	return &model.RemoteControlConfig{
		RemoteLockEnabled:     true,
		RemoteStartEnabled:    true,
		ClimateControlEnabled: true,
		HornLightsEnabled:     true,
		TrunkEnabled:          true,
	}
}

func newFixture(t *testing.T, rc *model.RemoteControlConfig, connected bool) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	require.NoError(t, store.Vehicle().Create(ctx, &model.Vehicle{ID: vehicleID, OwnerID: owner, RemoteControl: rc}))
	_, err := store.Status().UpsertStatus(ctx, &model.StatusSnapshot{
		VehicleID:    vehicleID,
		DoorsLocked:  false,
		Connectivity: model.Connectivity{IsConnected: connected, Transport: "bluetooth"},
	})
	require.NoError(t, err)

	fc := testingclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	bc := &recordingBroadcaster{}
	opts := options.NewCommandOptions()
	svc := New(store, opts, WithClock(fc), WithBroadcaster(bc))
	t.Cleanup(svc.Stop)

	return &fixture{svc: svc, store: store, clock: fc, bc: bc}
}

func (f *fixture) submit(t *testing.T, action model.Action) (*SubmitResponse, error) {
	t.Helper()
	return f.svc.Submit(context.Background(), SubmitRequest{VehicleID: vehicleID, UserID: owner, Action: action})
}

func (f *fixture) commandCount(t *testing.T) int {
	t.Helper()
	cmds, err := f.store.Command().ListByVehicle(context.Background(), vehicleID, 0)
	require.NoError(t, err)
	return len(cmds)
}

func (f *fixture) waitStatus(t *testing.T, id string, want model.CommandStatus) *model.Command {
	t.Helper()
	var cmd *model.Command
	require.Eventually(t, func() bool {
		var err error
		cmd, err = f.store.Command().Get(context.Background(), id)
		return err == nil && cmd.Status == want
	}, time.Second, 5*time.Millisecond)
	return cmd
}

func TestSubmitDisabledCapabilityCreatesNothing(t *testing.T) {
	rc := allEnabled()
	rc.RemoteLockEnabled = false
	f := newFixture(t, rc, true)

	_, err := f.submit(t, model.ActionLockDoors)
	require.ErrorIs(t, err, errno.ErrPermission)
	assert.Equal(t, 403, errno.FromError(err).HTTP)
	assert.Zero(t, f.commandCount(t))
}

func TestSubmitDisconnectedVehicleCreatesNothing(t *testing.T) {
	f := newFixture(t, allEnabled(), false)

	_, err := f.submit(t, model.ActionStartEngine)
	require.ErrorIs(t, err, errno.ErrUnavailable)
	assert.Equal(t, 503, errno.FromError(err).HTTP)
	assert.Zero(t, f.commandCount(t))
}

func TestSubmitLocateCompletesWithoutStatusChange(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	before, err := f.store.Status().Get(ctx, vehicleID)
	require.NoError(t, err)

	resp, err := f.submit(t, model.ActionLocate)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusPending, resp.Status)
	assert.Equal(t, 2, resp.EstimatedTime)
	assert.NotEmpty(t, resp.Message)

	cmd, err := f.store.Command().Get(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusPending, cmd.Status)

	f.clock.Step(2 * time.Second)
	done := f.waitStatus(t, resp.CommandID, model.CommandStatusCompleted)
	require.NotNil(t, done.CompletedAt)

	after, err := f.store.Status().Get(ctx, vehicleID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.Eventually(t, func() bool { return len(f.bc.named(core.EventCommandUpdate)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, core.UserGroup(owner), f.bc.named(core.EventCommandUpdate)[0].group)
	assert.Empty(t, f.bc.named(core.EventStatusUpdate))
}

func TestSimulatedExecutionAppliesEffect(t *testing.T) {
	f := newFixture(t, allEnabled(), true)

	resp, err := f.submit(t, model.ActionStartEngine)
	require.NoError(t, err)

	f.clock.Step(2 * time.Second)
	f.waitStatus(t, resp.CommandID, model.CommandStatusCompleted)

	snap, err := f.store.Status().Get(context.Background(), vehicleID)
	require.NoError(t, err)
	assert.True(t, snap.EngineRunning)
	assert.True(t, snap.Connectivity.IsConnected)
	require.Eventually(t, func() bool { return len(f.bc.named(core.EventStatusUpdate)) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSimulatedExecutionFailureIsRecorded(t *testing.T) {
	f := newFixture(t, allEnabled(), true)

	resp, err := f.submit(t, model.ActionOpenTrunk)
	require.NoError(t, err)

	f.svc.statuses = missingStatus{f.store.Status()}

	f.clock.Step(2 * time.Second)
	cmd := f.waitStatus(t, resp.CommandID, model.CommandStatusFailed)
	assert.Contains(t, cmd.Error, "OPEN_TRUNK")
}

// missingStatus behaves like a store that lost the vehicle snapshot.
type missingStatus struct {
	core.StatusRepository
}

func (missingStatus) Get(context.Context, string) (*model.StatusSnapshot, error) {
	return nil, core.ErrNotFound
}

func (missingStatus) Update(_ context.Context, _ string, _ func(*model.StatusSnapshot) error) (*model.StatusSnapshot, error) {
	return nil, core.ErrNotFound
}

// racingStatus runs beforeGet ahead of every snapshot read, standing in for
// a vehicle result that lands while a simulation is in flight.
type racingStatus struct {
	core.StatusRepository
	beforeGet func()
}

func (r racingStatus) Get(ctx context.Context, vehicleID string) (*model.StatusSnapshot, error) {
	r.beforeGet()
	return r.StatusRepository.Get(ctx, vehicleID)
}

func TestSimulationLosingToResultKeepsStatus(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	resp, err := f.submit(t, model.ActionLockDoors)
	require.NoError(t, err)

	var once sync.Once
	f.svc.statuses = racingStatus{
		StatusRepository: f.store.Status(),
		beforeGet: func() {
			once.Do(func() {
				_, applied, err := f.svc.Resolve(ctx, resp.CommandID, core.Result{Error: "door actuator fault"})
				assert.NoError(t, err)
				assert.True(t, applied)
			})
		},
	}

	f.clock.Step(2 * time.Second)
	require.Eventually(t, func() bool {
		cmd, err := f.store.Command().Get(ctx, resp.CommandID)
		return err == nil && cmd.Status == model.CommandStatusFailed && len(f.bc.named(core.EventCommandUpdate)) == 1
	}, time.Second, 5*time.Millisecond)

	// Give a wrongly applied effect the chance to land.
	time.Sleep(20 * time.Millisecond)

	cmd, err := f.store.Command().Get(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, "door actuator fault", cmd.Error)

	snap, err := f.store.Status().Get(ctx, vehicleID)
	require.NoError(t, err)
	assert.False(t, snap.DoorsLocked)
	assert.Empty(t, f.bc.named(core.EventStatusUpdate))
}

func TestStopFailsPendingCommands(t *testing.T) {
	f := newFixture(t, allEnabled(), true)

	resp, err := f.submit(t, model.ActionClimateOn)
	require.NoError(t, err)

	f.svc.Stop()

	cmd, err := f.store.Command().Get(context.Background(), resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)
	assert.Equal(t, reasonShutdown, cmd.Error)
	assert.Zero(t, f.svc.scheduler.Pending())
}

func TestSubmitOwnership(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{VehicleID: vehicleID, UserID: stranger, Action: model.ActionLocate})
	require.ErrorIs(t, err, errno.ErrNotFound)

	_, err = f.svc.Submit(ctx, SubmitRequest{VehicleID: "missing", UserID: owner, Action: model.ActionLocate})
	require.ErrorIs(t, err, errno.ErrNotFound)
	assert.Equal(t, errno.FromError(err).Message, errno.ErrNotFound.Message)

	resp, err := f.submit(t, model.ActionLocate)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, stranger, resp.CommandID)
	require.ErrorIs(t, err, errno.ErrNotFound)
	_, err = f.svc.Get(ctx, owner, "missing")
	require.ErrorIs(t, err, errno.ErrNotFound)

	cmd, err := f.svc.Get(ctx, owner, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionLocate, cmd.Action)

	_, err = f.svc.History(ctx, stranger, vehicleID, 10)
	require.ErrorIs(t, err, errno.ErrNotFound)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{VehicleID: vehicleID, UserID: owner, Action: "SELF_DESTRUCT"})
	require.ErrorIs(t, err, errno.ErrValidation)

	_, err = f.svc.Submit(ctx, SubmitRequest{UserID: owner, Action: model.ActionLocate})
	require.ErrorIs(t, err, errno.ErrValidation)

	_, err = f.svc.Submit(ctx, SubmitRequest{
		VehicleID: vehicleID, UserID: owner, Action: model.ActionSetTemperature,
		Parameters: map[string]string{ParamTemperature: "hot"},
	})
	require.ErrorIs(t, err, errno.ErrValidation)
	assert.Zero(t, f.commandCount(t))
}

func TestSubmitWithoutRemoteControl(t *testing.T) {
	f := newFixture(t, nil, true)

	_, err := f.submit(t, model.ActionLocate)
	require.ErrorIs(t, err, errno.ErrPermission)
	assert.Zero(t, f.commandCount(t))
}

func TestSubmitVerification(t *testing.T) {
	hash, err := HashPIN("1234")
	require.NoError(t, err)

	tests := []struct {
		name      string
		cfg       func(*model.RemoteControlConfig)
		pin       string
		biometric bool
		wantErr   bool
		verified  bool
	}{
		{name: "pin missing", cfg: func(c *model.RemoteControlConfig) { c.RequirePIN = true }, wantErr: true},
		{name: "pin present without enrolled hash", cfg: func(c *model.RemoteControlConfig) { c.RequirePIN = true }, pin: "0000"},
		{name: "wrong pin", cfg: func(c *model.RemoteControlConfig) { c.RequirePIN = true; c.PINHash = hash }, pin: "0000", wantErr: true},
		{name: "right pin", cfg: func(c *model.RemoteControlConfig) { c.RequirePIN = true; c.PINHash = hash }, pin: "1234", verified: true},
		{name: "biometric missing", cfg: func(c *model.RemoteControlConfig) { c.RequireBiometric = true }, wantErr: true},
		{name: "biometric present", cfg: func(c *model.RemoteControlConfig) { c.RequireBiometric = true }, biometric: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := allEnabled()
			tt.cfg(rc)
			f := newFixture(t, rc, true)

			resp, err := f.svc.Submit(context.Background(), SubmitRequest{
				VehicleID: vehicleID, UserID: owner, Action: model.ActionHonkHorn, PIN: tt.pin, Biometric: tt.biometric,
			})
			if tt.wantErr {
				require.ErrorIs(t, err, errno.ErrPermission)
				assert.Zero(t, f.commandCount(t))
				return
			}
			require.NoError(t, err)
			cmd, err := f.store.Command().Get(context.Background(), resp.CommandID)
			require.NoError(t, err)
			assert.Equal(t, tt.verified, cmd.PINVerified)
			assert.Equal(t, rc.RequireBiometric, cmd.BiometricVerified)
		})
	}
}

func TestTerminalStatusNeverChanges(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	resp, err := f.submit(t, model.ActionHonkHorn)
	require.NoError(t, err)

	cmd, applied, err := f.svc.Resolve(ctx, resp.CommandID, core.Result{Success: false, Error: "horn fault"})
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)

	cmd, applied, err = f.svc.Resolve(ctx, resp.CommandID, core.Result{Success: true})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)
	assert.Equal(t, "horn fault", cmd.Error)

	_, err = f.svc.MarkSent(ctx, resp.CommandID)
	require.ErrorIs(t, err, ErrTerminal)

	// The cancelled simulation must not run either.
	f.clock.Step(5 * time.Second)
	cmd, err = f.store.Command().Get(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)
}

func TestMarkSentCancelsSimulation(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	resp, err := f.submit(t, model.ActionLockDoors)
	require.NoError(t, err)

	cmd, err := f.svc.MarkSent(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusSent, cmd.Status)
	require.NotNil(t, cmd.SentAt)
	assert.Zero(t, f.svc.scheduler.Pending())

	again, err := f.svc.MarkSent(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusSent, again.Status)

	f.clock.Step(5 * time.Second)
	cmd, err = f.store.Command().Get(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusSent, cmd.Status)

	cmd, applied, err := f.svc.Resolve(ctx, resp.CommandID, core.Result{Success: true, Response: map[string]any{"locked": true}})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.CommandStatusCompleted, cmd.Status)
	assert.Equal(t, true, cmd.Response["locked"])
}

func TestNewerCommandSupersedesPending(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	first, err := f.submit(t, model.ActionLockDoors)
	require.NoError(t, err)
	other, err := f.submit(t, model.ActionHonkHorn)
	require.NoError(t, err)
	second, err := f.submit(t, model.ActionUnlockDoors)
	require.NoError(t, err)

	cmd, err := f.store.Command().Get(ctx, first.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)
	assert.Equal(t, reasonSuperseded, cmd.Error)

	f.clock.Step(2 * time.Second)
	f.waitStatus(t, second.CommandID, model.CommandStatusCompleted)
	f.waitStatus(t, other.CommandID, model.CommandStatusCompleted)

	snap, err := f.store.Status().Get(ctx, vehicleID)
	require.NoError(t, err)
	assert.False(t, snap.DoorsLocked)
}

func TestVehicleDisconnectedFailsPending(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	ctx := context.Background()

	resp, err := f.submit(t, model.ActionClimateOn)
	require.NoError(t, err)

	f.svc.VehicleDisconnected(ctx, vehicleID)

	cmd, err := f.store.Command().Get(ctx, resp.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusFailed, cmd.Status)
	assert.Equal(t, reasonDisconnected, cmd.Error)
	assert.Zero(t, f.svc.scheduler.Pending())
}

func TestHistoryNewestFirstAndCapped(t *testing.T) {
	f := newFixture(t, allEnabled(), true)
	f.svc.opts.Simulate = false
	f.svc.opts.HistoryLimit = 2
	ctx := context.Background()

	var ids []string
	for _, a := range []model.Action{model.ActionHonkHorn, model.ActionFlashLights, model.ActionLocate} {
		resp, err := f.submit(t, a)
		require.NoError(t, err)
		ids = append(ids, resp.CommandID)
		f.clock.Step(time.Second)
	}

	cmds, err := f.svc.History(ctx, owner, vehicleID, 0)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, ids[2], cmds[0].ID)
	assert.Equal(t, ids[1], cmds[1].ID)

	for _, c := range cmds {
		assert.Equal(t, model.CommandStatusPending, c.Status)
	}
}
