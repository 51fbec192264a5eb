// Package realtime is the event channel between vehicle gateways, operator
// dashboards and the command orchestrator. Sessions join broadcast groups per
// vehicle and per user; vehicle-side events update the status store and fan
// out to every session of the vehicle.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/internal/pkg/geo"
	"github.com/autopeer-io/telehub/internal/pkg/metrics"
	"github.com/autopeer-io/telehub/internal/pkg/wire"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

var _ core.Broadcaster = (*Hub)(nil)

// Hub owns the broadcast groups and the handlers shared by every transport.
type Hub struct {
	vehicles     core.VehicleRepository
	commands     core.CommandRepository
	statuses     core.StatusRepository
	fences       core.GeoFenceRepository
	connectivity core.ConnectivityLogRepository

	tracker  core.CommandTracker
	notifier core.CommandNotifier
	geofence *Debouncer
	clock    clock.PassiveClock
	opts     *options.RealtimeOptions

	mu       sync.RWMutex
	groups   map[string]map[*Session]struct{}
	sessions map[*Session]struct{}
}

type HubOption func(*Hub)

func WithHubClock(c clock.PassiveClock) HubOption {
	return func(h *Hub) { h.clock = c }
}

func NewHub(
	repo core.Repository,
	tracker core.CommandTracker,
	notifier core.CommandNotifier,
	opts *options.RealtimeOptions,
	fns ...HubOption,
) *Hub {
	h := &Hub{
		vehicles:     repo.Vehicle(),
		commands:     repo.Command(),
		statuses:     repo.Status(),
		fences:       repo.GeoFence(),
		connectivity: repo.Connectivity(),
		tracker:      tracker,
		notifier:     notifier,
		clock:        clock.RealClock{},
		opts:         opts,
		groups:       make(map[string]map[*Session]struct{}),
		sessions:     make(map[*Session]struct{}),
	}
	for _, fn := range fns {
		fn(h)
	}
	h.geofence = NewDebouncer(h.clock, opts.GeofenceHysteresis, opts.GeofenceCooldown)
	return h
}

// Broadcast encodes payload once and queues it on every session of group.
// Sessions with a full outbound queue miss the event.
func (h *Hub) Broadcast(group, event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		log.Error(err, "Failed to encode broadcast", "event", event, "group", group)
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		log.Error(err, "Failed to encode broadcast", "event", event, "group", group)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.groups[group] {
		if !s.send(frame) {
			metrics.RealtimeEvents.WithLabelValues(event, "dropped").Inc()
			log.Debug("Outbound queue full, dropping event", "session", s.id, "event", event)
		}
	}
}

// join adds s to groups. A session already removed from the hub stays out
// and join reports false.
func (h *Hub) join(s *Session, groups ...string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return false
	}
	for _, g := range groups {
		members, ok := h.groups[g]
		if !ok {
			members = make(map[*Session]struct{})
			h.groups[g] = members
		}
		members[s] = struct{}{}
	}
	return true
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	metrics.RealtimeSessions.Inc()
}

// remove drops s from the hub and every group.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	metrics.RealtimeSessions.Dec()
	for g, members := range h.groups {
		delete(members, s)
		if len(members) == 0 {
			delete(h.groups, g)
		}
	}
}

// Members returns the number of sessions joined to group.
func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Shutdown closes every session.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

// authorize loads vehicleID and checks userID owns it.
func (h *Hub) authorize(ctx context.Context, userID, vehicleID string) (*model.Vehicle, error) {
	if userID == "" || vehicleID == "" {
		return nil, errno.ErrValidation.WithMessage("vehicleId and userId are required.")
	}
	v, err := h.vehicles.Get(ctx, vehicleID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errno.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	if !v.OwnedBy(userID) {
		return nil, errno.ErrNotFound
	}
	return v, nil
}

// IngestStatus replaces the status of vehicleID, broadcasts it and records
// connectivity edges. A vehicle going offline fails its pending simulated
// commands.
func (h *Hub) IngestStatus(ctx context.Context, vehicleID string, status *model.StatusSnapshot) error {
	now := h.clock.Now().UTC()
	status.VehicleID = vehicleID
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = now
	}
	if status.Connectivity.IsConnected && status.Connectivity.LastSeen.IsZero() {
		status.Connectivity.LastSeen = now
	}

	prev, err := h.statuses.UpsertStatus(ctx, status)
	if err != nil {
		return fmt.Errorf("upsert status: %w", err)
	}
	if prev != nil {
		status.Location = prev.Location
	}
	h.Broadcast(core.VehicleGroup(vehicleID), core.EventStatusUpdate, status)

	wasConnected := prev != nil && prev.Connectivity.IsConnected
	isConnected := status.Connectivity.IsConnected
	if wasConnected == isConnected {
		return nil
	}

	entry := &model.ConnectivityLog{
		VehicleID: vehicleID,
		Connected: isConnected,
		Transport: status.Connectivity.Transport,
		At:        now,
	}
	if isConnected {
		entry.Reason = "reported connected"
	} else {
		entry.Reason = "reported disconnected"
		if entry.Transport == "" && prev != nil {
			entry.Transport = prev.Connectivity.Transport
		}
	}
	if err := h.connectivity.Append(ctx, entry); err != nil {
		log.FromContext(ctx).Error(err, "Failed to append connectivity log", "vehicleID", vehicleID)
	}
	if !isConnected {
		h.tracker.VehicleDisconnected(ctx, vehicleID)
	}
	return nil
}

// IngestLocation stores a position fix, broadcasts it and evaluates the
// vehicle's geofence.
func (h *Hub) IngestLocation(ctx context.Context, vehicleID string, loc *model.Location) error {
	p := geo.Point{Lat: loc.Lat, Lng: loc.Lng}
	if !p.Valid() {
		return errno.ErrValidation.WithMessage("Coordinates are out of range.")
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = h.clock.Now().UTC()
	}

	if err := h.statuses.UpsertLocation(ctx, vehicleID, loc); err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	h.Broadcast(core.VehicleGroup(vehicleID), core.EventLocationUpdate, &LocationUpdate{VehicleID: vehicleID, Location: *loc})

	fence, err := h.fences.Get(ctx, vehicleID)
	if errors.Is(err, core.ErrNotFound) {
		h.geofence.Forget(vehicleID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get geofence: %w", err)
	}

	alert, distance := h.geofence.Observe(vehicleID, fence, p)
	if !alert {
		return nil
	}

	v, err := h.vehicles.Get(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("get vehicle: %w", err)
	}
	metrics.GeofenceAlerts.Inc()
	log.FromContext(ctx).Info("Vehicle left its geofence", "vehicleID", vehicleID, "distance", distance, "radius", fence.RadiusMeters)
	h.Broadcast(core.UserGroup(v.OwnerID), core.EventGeofenceAlert, &GeofenceAlert{
		VehicleID:      vehicleID,
		Lat:            loc.Lat,
		Lng:            loc.Lng,
		DistanceMeters: distance,
		RadiusMeters:   fence.RadiusMeters,
		At:             loc.Timestamp,
	})
	return nil
}

// DispatchCommand marks a PENDING command SENT and forwards it to the vehicle
// group and the vehicle bus. The command must belong to the vehicle and user
// named in req.
func (h *Hub) DispatchCommand(ctx context.Context, req *CommandSendPayload) error {
	cmd, err := h.commands.Get(ctx, req.CommandID)
	if errors.Is(err, core.ErrNotFound) {
		return errno.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get command: %w", err)
	}
	if cmd.VehicleID != req.VehicleID || cmd.UserID != req.UserID {
		return errno.ErrNotFound
	}
	if req.Action != "" && req.Action != cmd.Action {
		return errno.ErrValidation.WithMessage("Action does not match command %s.", cmd.ID)
	}

	sent, err := h.tracker.MarkSent(ctx, cmd.ID)
	if errors.Is(err, core.ErrCommandTerminal) {
		return errno.ErrValidation.WithMessage("Command %s already finished.", cmd.ID)
	}
	if err != nil {
		return err
	}

	h.Broadcast(core.VehicleGroup(cmd.VehicleID), core.EventCommandExecute, wire.FromCommand(sent))
	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, sent); err != nil {
			log.FromContext(ctx).Error(err, "Failed to publish command to vehicle bus", "commandID", sent.ID)
		}
	}
	return nil
}

// IngestCommandResult resolves a command reported by vehicleID.
func (h *Hub) IngestCommandResult(ctx context.Context, vehicleID string, res *CommandResultPayload) error {
	vid, err := h.commandVehicle(ctx, res.CommandID)
	if err != nil {
		return err
	}
	if vid != vehicleID {
		return errno.ErrNotFound
	}

	_, applied, err := h.tracker.Resolve(ctx, res.CommandID, core.Result{
		Success:  res.Success,
		Response: res.Response,
		Error:    res.Error,
	})
	if err != nil {
		return err
	}
	if !applied {
		log.FromContext(ctx).Debug("Command result ignored, command already finished", "commandID", res.CommandID)
	}
	return nil
}

func (h *Hub) commandVehicle(ctx context.Context, commandID string) (string, error) {
	if commandID == "" {
		return "", errno.ErrValidation.WithMessage("commandId is required.")
	}
	cmd, err := h.commands.Get(ctx, commandID)
	if errors.Is(err, core.ErrNotFound) {
		return "", errno.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get command: %w", err)
	}
	return cmd.VehicleID, nil
}

// SetOnline records an online/offline report that carries no status, such as
// an MQTT will message.
func (h *Hub) SetOnline(ctx context.Context, vehicleID string, online bool, transport string) error {
	var changed bool
	snap, err := h.statuses.Update(ctx, vehicleID, func(s *model.StatusSnapshot) error {
		changed = s.Connectivity.IsConnected != online
		s.Connectivity.IsConnected = online
		if transport != "" {
			s.Connectivity.Transport = transport
		}
		if online {
			s.Connectivity.LastSeen = h.clock.Now().UTC()
		}
		return nil
	})
	if errors.Is(err, core.ErrNotFound) {
		if !online {
			return nil
		}
		return h.IngestStatus(ctx, vehicleID, &model.StatusSnapshot{
			Connectivity: model.Connectivity{IsConnected: true, Transport: transport},
		})
	}
	if err != nil {
		return fmt.Errorf("update connectivity: %w", err)
	}
	if !changed {
		return nil
	}
	h.Broadcast(core.VehicleGroup(vehicleID), core.EventStatusUpdate, snap)

	reason := "bus online"
	if !online {
		reason = "bus offline"
	}
	if err := h.connectivity.Append(ctx, &model.ConnectivityLog{
		VehicleID: vehicleID, Connected: online, Transport: transport, Reason: reason, At: h.clock.Now().UTC(),
	}); err != nil {
		log.FromContext(ctx).Error(err, "Failed to append connectivity log", "vehicleID", vehicleID)
	}
	if !online {
		h.tracker.VehicleDisconnected(ctx, vehicleID)
	}
	return nil
}

// eventTimeout bounds the handling of one inbound event.
const eventTimeout = 10 * time.Second
