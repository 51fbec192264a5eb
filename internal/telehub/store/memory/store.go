// Package memory is an in-process implementation of the telehub repositories.
// It backs tests and single-node demo deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

var _ core.Repository = (*Store)(nil)

// Store keeps every record in maps guarded by one mutex. Records are copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu           sync.Mutex
	vehicles     map[string]*model.Vehicle
	commands     map[string]*model.Command
	statuses     map[string]*model.StatusSnapshot
	fences       map[string]*model.GeoFence
	connectivity map[string][]*model.ConnectivityLog
}

func New() *Store {
	return &Store{
		vehicles:     make(map[string]*model.Vehicle),
		commands:     make(map[string]*model.Command),
		statuses:     make(map[string]*model.StatusSnapshot),
		fences:       make(map[string]*model.GeoFence),
		connectivity: make(map[string][]*model.ConnectivityLog),
	}
}

func (s *Store) Vehicle() core.VehicleRepository { return (*vehicleRepo)(s) }
func (s *Store) Command() core.CommandRepository { return (*commandRepo)(s) }
func (s *Store) Status() core.StatusRepository { return (*statusRepo)(s) }
func (s *Store) GeoFence() core.GeoFenceRepository { return (*fenceRepo)(s) }
func (s *Store) Connectivity() core.ConnectivityLogRepository { return (*connectivityRepo)(s) }
func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
}

type vehicleRepo Store

func (r *vehicleRepo) Get(_ context.Context, id string) (*model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, notFound("vehicle", id)
	}
	return cloneVehicle(v), nil
}

func (r *vehicleRepo) Create(_ context.Context, v *model.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[v.ID]; ok {
		return fmt.Errorf("vehicle %q: %w", v.ID, core.ErrConflict)
	}
	r.vehicles[v.ID] = cloneVehicle(v)
	return nil
}

func cloneVehicle(v *model.Vehicle) *model.Vehicle {
	out := *v
	if v.RemoteControl != nil {
		rc := *v.RemoteControl
		out.RemoteControl = &rc
	}
	return &out
}

type commandRepo Store

func (r *commandRepo) Create(_ context.Context, cmd *model.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[cmd.ID]; ok {
		return fmt.Errorf("command %q: %w", cmd.ID, core.ErrConflict)
	}
	r.commands[cmd.ID] = cmd.Clone()
	return nil
}

func (r *commandRepo) Get(_ context.Context, id string) (*model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[id]
	if !ok {
		return nil, notFound("command", id)
	}
	return cmd.Clone(), nil
}

func (r *commandRepo) ListByVehicle(_ context.Context, vehicleID string, limit int) ([]*model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Command
	for _, cmd := range r.commands {
		if cmd.VehicleID == vehicleID {
			out = append(out, cmd.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *commandRepo) Update(_ context.Context, id string, fn func(*model.Command) error) (*model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.commands[id]
	if !ok {
		return nil, notFound("command", id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.commands[id] = next
	return next.Clone(), nil
}

type statusRepo Store

func (r *statusRepo) Get(_ context.Context, vehicleID string) (*model.StatusSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.statuses[vehicleID]
	if !ok {
		return nil, notFound("status", vehicleID)
	}
	return s.Clone(), nil
}

func (r *statusRepo) UpsertStatus(_ context.Context, s *model.StatusSnapshot) (*model.StatusSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.statuses[s.VehicleID]
	next := s.Clone()
	if prev != nil {
		next.Location = prev.Location
	}
	r.statuses[s.VehicleID] = next
	return prev.Clone(), nil
}

func (r *statusRepo) UpsertLocation(_ context.Context, vehicleID string, loc *model.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.statuses[vehicleID]
	if !ok {
		cur = &model.StatusSnapshot{VehicleID: vehicleID}
		r.statuses[vehicleID] = cur
	}
	l := *loc
	cur.Location = &l
	return nil
}

func (r *statusRepo) Update(_ context.Context, vehicleID string, fn func(*model.StatusSnapshot) error) (*model.StatusSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.statuses[vehicleID]
	if !ok {
		return nil, notFound("status", vehicleID)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.statuses[vehicleID] = next
	return next.Clone(), nil
}

type fenceRepo Store

func (r *fenceRepo) Get(_ context.Context, vehicleID string) (*model.GeoFence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fences[vehicleID]
	if !ok {
		return nil, notFound("geofence", vehicleID)
	}
	out := *f
	return &out, nil
}

func (r *fenceRepo) Upsert(_ context.Context, f *model.GeoFence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *f
	r.fences[f.VehicleID] = &c
	return nil
}

type connectivityRepo Store

func (r *connectivityRepo) Append(_ context.Context, e *model.ConnectivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	r.connectivity[e.VehicleID] = append(r.connectivity[e.VehicleID], &c)
	return nil
}

func (r *connectivityRepo) List(_ context.Context, vehicleID string, limit int) ([]*model.ConnectivityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.connectivity[vehicleID]
	out := make([]*model.ConnectivityLog, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		c := *entries[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
