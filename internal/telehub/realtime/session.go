package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/telehub/internal/pkg/util/fsm"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/pkg/log"
)

// Session states.
const (
	StateConnecting   = "connecting"
	StateRegistered   = "registered"
	StateActive       = "active"
	StateDisconnected = "disconnected"
)

const (
	eventRegister   = "register"
	eventActivate   = "activate"
	eventDisconnect = "disconnect"
)

var sessionEvents = fsm.Events{
	{Name: eventRegister, Src: []string{StateConnecting, StateRegistered}, Dst: StateRegistered},
	{Name: eventRegister, Src: []string{StateActive}, Dst: StateActive},
	{Name: eventActivate, Src: []string{StateRegistered}, Dst: StateActive},
	{Name: eventDisconnect, Src: []string{StateConnecting, StateRegistered, StateActive}, Dst: StateDisconnected},
}

// ErrSessionClosed is returned by Enqueue after the session disconnected.
var ErrSessionClosed = errors.New("session closed")

// Session is one realtime client. Inbound events are handled in order by a
// single goroutine; outbound frames are buffered and dropped when the client
// falls behind.
type Session struct {
	id        string
	principal string
	hub       *Hub
	logger    log.Logger

	mu       sync.Mutex
	machine  *fsm.FSM
	vehicles map[string]struct{}

	in        chan Envelope
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session for an authenticated principal, "" when the
// transport carries none. Call Run to start handling events.
func (h *Hub) NewSession(principal string) *Session {
	s := &Session{
		id:        uuid.NewString(),
		principal: principal,
		hub:       h,
		vehicles:  make(map[string]struct{}),
		in:        make(chan Envelope, h.opts.InboundQueue),
		out:       make(chan []byte, h.opts.OutboundQueue),
		done:      make(chan struct{}),
	}
	s.logger = log.WithValues("session", s.id)
	s.machine = fsm.NewFSM(StateConnecting, sessionEvents, fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
			s.logger.Debug("Session state changed", "from", e.Src, "to", e.Dst)
			return nil
		}),
	})
	h.add(s)
	return s
}

func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Outbound yields encoded frames for the transport to write.
func (s *Session) Outbound() <-chan []byte { return s.out }

// Done is closed once the session disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// Enqueue hands an inbound event to the session, waiting while its queue is
// full.
func (s *Session) Enqueue(ctx context.Context, env Envelope) error {
	select {
	case <-s.done:
		metrics.RealtimeEvents.WithLabelValues(env.Event, "dropped").Inc()
		return ErrSessionClosed
	default:
	}

	select {
	case s.in <- env:
		return nil
	case <-s.done:
		metrics.RealtimeEvents.WithLabelValues(env.Event, "dropped").Inc()
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles inbound events until ctx is done or the session is closed.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case env := <-s.in:
			s.handle(ctx, env)
		}
	}
}

// Close disconnects the session. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.fire(context.Background(), eventDisconnect)
		s.hub.remove(s)
		close(s.done)
		s.logger.Debug("Session closed")
	})
}

func (s *Session) fire(ctx context.Context, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Event(ctx, event); fsmutil.IsRealError(err) && !fsmutil.IsInvalidEvent(err) {
		s.logger.Error(err, "Session transition failed", "event", event)
	}
}

// send queues a frame without blocking.
func (s *Session) send(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) emit(event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		s.logger.Error(err, "Failed to encode event", "event", event)
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		s.logger.Error(err, "Failed to encode event", "event", event)
		return
	}
	if !s.send(frame) {
		metrics.RealtimeEvents.WithLabelValues(event, "dropped").Inc()
	}
}

func (s *Session) registered(vehicleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vehicles[vehicleID]
	return ok
}

func (s *Session) handle(ctx context.Context, env Envelope) {
	if s.State() == StateDisconnected {
		metrics.RealtimeEvents.WithLabelValues(env.Event, "dropped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()
	ctx = log.NewContext(ctx, s.logger.WithValues("event", env.Event))

	var err error
	switch env.Event {
	case core.EventRegisterVehicle:
		s.handleRegister(ctx, env)
		return
	case core.EventVehicleStatus:
		err = s.handleStatus(ctx, env)
	case core.EventVehicleLocation:
		err = s.handleLocation(ctx, env)
	case core.EventCommandSend:
		err = s.handleCommandSend(ctx, env)
	case core.EventCommandResult:
		err = s.handleCommandResult(ctx, env)
	default:
		err = errno.ErrValidation.WithMessage("Unknown event %q.", env.Event)
	}

	if err != nil {
		s.reject(ctx, env.Event, core.EventError, err)
		return
	}
	if s.State() == StateRegistered {
		s.fire(ctx, eventActivate)
	}
	metrics.RealtimeEvents.WithLabelValues(env.Event, "ok").Inc()
}

// reject reports err to the client without internal detail.
func (s *Session) reject(ctx context.Context, event, reply string, err error) {
	e := errno.FromError(err)
	result := "rejected"
	if e.Reason == errno.ErrInternal.Reason {
		result = "error"
		log.FromContext(ctx).Error(err, "Failed to handle realtime event")
	}
	metrics.RealtimeEvents.WithLabelValues(event, result).Inc()
	s.emit(reply, &ErrorPayload{Event: event, Code: e.Reason, Message: e.Message})
}

func decode[T any](env Envelope) (*T, error) {
	var v T
	if len(env.Data) == 0 {
		return nil, errno.ErrValidation.WithMessage("Event %q has no data.", env.Event)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, errno.ErrValidation.WithMessage("Malformed %q payload.", env.Event)
	}
	return &v, nil
}

func (s *Session) handleRegister(ctx context.Context, env Envelope) {
	req, err := decode[RegisterPayload](env)
	if err == nil && s.principal != "" && req.UserID != s.principal {
		err = errno.ErrNotFound
	}
	if err == nil {
		_, err = s.hub.authorize(ctx, req.UserID, req.VehicleID)
	}
	if err != nil {
		s.reject(ctx, env.Event, core.EventRegisterError, err)
		return
	}

	if !s.hub.join(s, core.VehicleGroup(req.VehicleID), core.UserGroup(req.UserID)) {
		metrics.RealtimeEvents.WithLabelValues(env.Event, "dropped").Inc()
		return
	}
	s.mu.Lock()
	s.vehicles[req.VehicleID] = struct{}{}
	s.mu.Unlock()
	s.fire(ctx, eventRegister)

	metrics.RealtimeEvents.WithLabelValues(env.Event, "ok").Inc()
	log.FromContext(ctx).Info("Vehicle registered on session", "vehicleID", req.VehicleID)
	s.emit(core.EventRegistered, &RegisteredPayload{VehicleID: req.VehicleID})
}

// requireVehicle rejects events for vehicles this session did not register.
func (s *Session) requireVehicle(vehicleID string) error {
	if vehicleID == "" {
		return errno.ErrValidation.WithMessage("vehicleId is required.")
	}
	if !s.registered(vehicleID) {
		return errno.ErrNotFound.WithMessage("Vehicle %s is not registered on this session.", vehicleID)
	}
	return nil
}

func (s *Session) handleStatus(ctx context.Context, env Envelope) error {
	req, err := decode[StatusPayload](env)
	if err != nil {
		return err
	}
	if err := s.requireVehicle(req.VehicleID); err != nil {
		return err
	}
	return s.hub.IngestStatus(ctx, req.VehicleID, &req.Status)
}

func (s *Session) handleLocation(ctx context.Context, env Envelope) error {
	req, err := decode[LocationPayload](env)
	if err != nil {
		return err
	}
	if err := s.requireVehicle(req.VehicleID); err != nil {
		return err
	}
	return s.hub.IngestLocation(ctx, req.VehicleID, req.Location())
}

func (s *Session) handleCommandSend(ctx context.Context, env Envelope) error {
	req, err := decode[CommandSendPayload](env)
	if err != nil {
		return err
	}
	if err := s.requireVehicle(req.VehicleID); err != nil {
		return err
	}
	if s.principal != "" && req.UserID != s.principal {
		return errno.ErrNotFound
	}
	return s.hub.DispatchCommand(ctx, req)
}

func (s *Session) handleCommandResult(ctx context.Context, env Envelope) error {
	req, err := decode[CommandResultPayload](env)
	if err != nil {
		return err
	}
	vehicleID, err := s.hub.commandVehicle(ctx, req.CommandID)
	if err != nil {
		return err
	}
	if err := s.requireVehicle(vehicleID); err != nil {
		return errno.ErrNotFound
	}
	return s.hub.IngestCommandResult(ctx, vehicleID, req)
}
