// Package command is the remote command orchestrator. It validates a
// submission against ownership, capability, verification and connectivity,
// persists the command and drives it to a terminal status either through a
// simulated execution or through results reported by the vehicle.
package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/internal/pkg/metrics"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

const (
	reasonSuperseded   = "superseded by a newer command"
	reasonDisconnected = "vehicle disconnected"
	reasonShutdown     = "telehub shutting down"
)

var _ core.CommandTracker = (*Service)(nil)

// SubmitRequest is a user's request to run action on a vehicle.
type SubmitRequest struct {
	VehicleID  string            `json:"-"`
	UserID     string            `json:"-"`
	Action     model.Action      `json:"action"`
	PIN        string            `json:"pin,omitempty"`
	Biometric  bool              `json:"biometric,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// SubmitResponse acknowledges an accepted command. EstimatedTime is in seconds.
type SubmitResponse struct {
	CommandID     string              `json:"commandId"`
	Status        model.CommandStatus `json:"status"`
	Message       string              `json:"message"`
	EstimatedTime int                 `json:"estimatedTime"`
}

type Service struct {
	vehicles core.VehicleRepository
	commands core.CommandRepository
	statuses core.StatusRepository

	broadcaster core.Broadcaster
	scheduler   *Scheduler
	clock       clock.WithDelayedExecution
	opts        *options.CommandOptions
}

type Option func(*Service)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(s *Service) { s.clock = c }
}

// WithBroadcaster sets where command and status updates are announced.
func WithBroadcaster(b core.Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

func New(repo core.Repository, opts *options.CommandOptions, fns ...Option) *Service {
	s := &Service{
		vehicles: repo.Vehicle(),
		commands: repo.Command(),
		statuses: repo.Status(),
		clock:    clock.RealClock{},
		opts:     opts,
	}
	for _, fn := range fns {
		fn(s)
	}
	s.scheduler = NewScheduler(s.clock)
	return s
}

// SetBroadcaster is used when the broadcaster itself depends on the service.
func (s *Service) SetBroadcaster(b core.Broadcaster) {
	s.broadcaster = b
}

// Stop cancels every scheduled execution and fails the commands waiting on
// them, so none stays PENDING across a restart.
func (s *Service) Stop() {
	ids := s.scheduler.Stop()
	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range ids {
		s.fail(ctx, id, reasonShutdown)
	}
	log.Info("Failed pending commands on shutdown", "count", len(ids))
}

// Submit validates req and records a PENDING command. Rejected submissions
// never create a record.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	cmd, err := s.admit(ctx, req)
	if err != nil {
		metrics.CommandsSubmitted.WithLabelValues(string(req.Action), outcome(err)).Inc()
		return nil, err
	}

	if err := s.commands.Create(ctx, cmd); err != nil {
		metrics.CommandsSubmitted.WithLabelValues(string(req.Action), "error").Inc()
		return nil, fmt.Errorf("create command: %w", err)
	}
	metrics.CommandsSubmitted.WithLabelValues(string(cmd.Action), "accepted").Inc()
	metrics.CommandTransitions.WithLabelValues(string(cmd.Status)).Inc()

	logger := log.FromContext(ctx).WithValues("commandID", cmd.ID, "vehicleID", cmd.VehicleID, "action", cmd.Action)
	logger.Info("Command accepted")

	if s.opts.Simulate {
		superseded := s.scheduler.Schedule(cmd.ID, cmd.VehicleID, group(cmd.Action), s.opts.ExecutionDelay, func() {
			s.execute(cmd.ID)
		})
		for _, id := range superseded {
			logger.Info("Superseding pending command", "superseded", id)
			s.fail(context.WithoutCancel(ctx), id, reasonSuperseded)
		}
	}

	return &SubmitResponse{
		CommandID:     cmd.ID,
		Status:        cmd.Status,
		Message:       fmt.Sprintf("Command %s queued for vehicle %s", cmd.Action, cmd.VehicleID),
		EstimatedTime: int(math.Ceil(s.opts.ExecutionDelay.Seconds())),
	}, nil
}

// admit runs every submission check in order and builds the command.
func (s *Service) admit(ctx context.Context, req SubmitRequest) (*model.Command, error) {
	if req.VehicleID == "" || req.UserID == "" {
		return nil, errno.ErrValidation.WithMessage("vehicleId and userId are required.")
	}
	if !Known(req.Action) {
		return nil, errno.ErrValidation.WithMessage("Unsupported action %q.", req.Action)
	}
	if req.Action == model.ActionSetTemperature {
		if _, err := targetTemperature(req.Parameters); err != nil {
			return nil, errno.ErrValidation.WithMessage("%s.", err)
		}
	}

	vehicle, err := s.ownedVehicle(ctx, req.UserID, req.VehicleID)
	if err != nil {
		return nil, err
	}

	cfg := vehicle.RemoteControl
	if cfg == nil {
		return nil, errno.ErrPermission.WithMessage("Remote control is not configured for this vehicle.")
	}
	if !Enabled(cfg, req.Action) {
		return nil, errno.ErrPermission.WithMessage("%s is not enabled for this vehicle.", req.Action)
	}
	pinAllowed, pinVerified := verifyPIN(vehicle.ID, cfg, req.PIN)
	if !pinAllowed {
		return nil, errno.ErrPermission.WithMessage("A valid PIN is required.")
	}
	if cfg.RequireBiometric && !req.Biometric {
		return nil, errno.ErrPermission.WithMessage("Biometric verification is required.")
	}

	snapshot, err := s.statuses.Get(ctx, vehicle.ID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get status: %w", err)
	}
	if snapshot == nil || !snapshot.Connectivity.IsConnected {
		return nil, errno.ErrUnavailable
	}

	return &model.Command{
		ID:                uuid.Must(uuid.NewV7()).String(),
		VehicleID:         vehicle.ID,
		UserID:            req.UserID,
		Action:            req.Action,
		Parameters:        req.Parameters,
		Status:            model.CommandStatusPending,
		PINVerified:       pinVerified,
		BiometricVerified: cfg.RequireBiometric && req.Biometric,
		CreatedAt:         s.clock.Now().UTC(),
	}, nil
}

// ownedVehicle loads the vehicle and hides vehicles of other owners behind
// the same not-found error as missing ones.
func (s *Service) ownedVehicle(ctx context.Context, userID, vehicleID string) (*model.Vehicle, error) {
	vehicle, err := s.vehicles.Get(ctx, vehicleID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errno.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	if !vehicle.OwnedBy(userID) {
		return nil, errno.ErrNotFound
	}
	return vehicle, nil
}

// Get returns a command of a vehicle userID owns.
func (s *Service) Get(ctx context.Context, userID, commandID string) (*model.Command, error) {
	cmd, err := s.commands.Get(ctx, commandID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errno.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}
	if _, err := s.ownedVehicle(ctx, userID, cmd.VehicleID); err != nil {
		return nil, err
	}
	return cmd, nil
}

// History returns the newest commands of a vehicle, capped by the configured
// history limit.
func (s *Service) History(ctx context.Context, userID, vehicleID string, limit int) ([]*model.Command, error) {
	if _, err := s.ownedVehicle(ctx, userID, vehicleID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}
	cmds, err := s.commands.ListByVehicle(ctx, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return cmds, nil
}

// MarkSent records that the command reached the vehicle bus and cancels its
// simulated execution. Sending a SENT command again is a no-op.
func (s *Service) MarkSent(ctx context.Context, commandID string) (*model.Command, error) {
	s.scheduler.Cancel(commandID)

	cmd, err := s.commands.Update(ctx, commandID, func(c *model.Command) error {
		return transition(ctx, c, eventSend, s.clock.Now().UTC())
	})
	switch {
	case errors.Is(err, errAlreadySent):
		return s.commands.Get(ctx, commandID)
	case errors.Is(err, ErrTerminal):
		metrics.CommandTransitionsDropped.Inc()
		return nil, err
	case err != nil:
		return nil, err
	}

	metrics.CommandTransitions.WithLabelValues(string(cmd.Status)).Inc()
	return cmd, nil
}

// Resolve records the outcome of a command. The first terminal writer wins;
// later results are dropped and reported with applied=false.
func (s *Service) Resolve(ctx context.Context, commandID string, result core.Result) (*model.Command, bool, error) {
	s.scheduler.Cancel(commandID)

	event := eventComplete
	if !result.Success {
		event = eventFail
	}

	cmd, err := s.commands.Update(ctx, commandID, func(c *model.Command) error {
		if err := transition(ctx, c, event, s.clock.Now().UTC()); err != nil {
			return err
		}
		c.Response = result.Response
		c.Error = result.Error
		return nil
	})
	if errors.Is(err, ErrTerminal) {
		metrics.CommandTransitionsDropped.Inc()
		log.FromContext(ctx).Info("Dropping result for finished command", "commandID", commandID, "success", result.Success)
		cur, getErr := s.commands.Get(ctx, commandID)
		if getErr != nil {
			return nil, false, getErr
		}
		return cur, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	metrics.CommandTransitions.WithLabelValues(string(cmd.Status)).Inc()
	s.broadcast(core.UserGroup(cmd.UserID), core.EventCommandUpdate, cmd)
	return cmd, true, nil
}

// VehicleDisconnected fails every command of the vehicle still waiting for
// its simulated execution.
func (s *Service) VehicleDisconnected(ctx context.Context, vehicleID string) {
	for _, id := range s.scheduler.CancelVehicle(vehicleID) {
		s.fail(ctx, id, reasonDisconnected)
	}
}

func (s *Service) fail(ctx context.Context, commandID, reason string) {
	if _, _, err := s.Resolve(ctx, commandID, core.Result{Error: reason}); err != nil {
		log.Error(err, "Failed to fail command", "commandID", commandID, "reason", reason)
	}
}

// execute is the simulated completion. Failures, panics included, are
// recorded on the command and never reach the submitter.
func (s *Service) execute(commandID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "Simulated command execution panicked", "commandID", commandID)
			s.fail(ctx, commandID, fmt.Sprintf("execution panicked: %v", r))
		}
	}()

	if err := s.simulate(ctx, commandID); err != nil {
		log.Warn("Simulated command execution failed", "commandID", commandID, "error", err.Error())
		s.fail(ctx, commandID, err.Error())
	}
}

func (s *Service) simulate(ctx context.Context, commandID string) error {
	cmd, err := s.commands.Get(ctx, commandID)
	if err != nil {
		return err
	}
	if cmd.Status != model.CommandStatusPending {
		return nil
	}

	change := mutates(cmd.Action)
	if change {
		// Dry run against the current snapshot: a command whose effect cannot
		// apply fails instead of completing.
		cur, err := s.statuses.Get(ctx, cmd.VehicleID)
		if err != nil {
			return fmt.Errorf("apply %s: %w", cmd.Action, err)
		}
		if err := applyEffect(cur, cmd); err != nil {
			return fmt.Errorf("apply %s: %w", cmd.Action, err)
		}
	}

	// The effect is written only once the completion won; a result or
	// disconnect that finished the command first leaves the snapshot alone.
	_, applied, err := s.Resolve(ctx, commandID, core.Result{
		Success:  true,
		Response: map[string]any{"simulated": true},
	})
	if err != nil || !applied || !change {
		return err
	}

	snapshot, err := s.statuses.Update(ctx, cmd.VehicleID, func(snap *model.StatusSnapshot) error {
		if err := applyEffect(snap, cmd); err != nil {
			return err
		}
		snap.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil {
		log.Error(err, "Completed command left the status unchanged", "commandID", commandID, "action", cmd.Action)
		return nil
	}
	s.broadcast(core.VehicleGroup(cmd.VehicleID), core.EventStatusUpdate, snapshot)
	return nil
}

func (s *Service) broadcast(group, event string, payload any) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(group, event, payload)
	}
}

func outcome(err error) string {
	switch e := errno.FromError(err); e.Reason {
	case errno.ErrPermission.Reason:
		return "forbidden"
	case errno.ErrUnavailable.Reason:
		return "unavailable"
	case errno.ErrNotFound.Reason:
		return "not_found"
	case errno.ErrValidation.Reason:
		return "invalid"
	default:
		return "error"
	}
}
