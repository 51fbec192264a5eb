package core

import (
	"context"
	"errors"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

// ErrNotFound is returned (possibly wrapped) by repositories for a missing key.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when creating a record whose key already exists.
var ErrConflict = errors.New("already exists")

// VehicleRepository reads vehicles and their remote control configuration.
type VehicleRepository interface {
	// Get retrieves a vehicle by its ID.
	Get(ctx context.Context, id string) (*model.Vehicle, error)

	// Create registers a new vehicle in the system.
	Create(ctx context.Context, vehicle *model.Vehicle) error
}

// CommandRepository persists commands. Commands are never deleted.
type CommandRepository interface {
	Create(ctx context.Context, cmd *model.Command) error

	Get(ctx context.Context, id string) (*model.Command, error)

	// ListByVehicle returns the newest commands first, at most limit of them.
	ListByVehicle(ctx context.Context, vehicleID string, limit int) ([]*model.Command, error)

	// Update applies fn to the stored command atomically: concurrent updates of
	// the same command are serialized and fn always sees the latest state. If
	// fn returns an error nothing is written and the error is returned.
	Update(ctx context.Context, id string, fn func(cmd *model.Command) error) (*model.Command, error)
}

// StatusRepository stores one StatusSnapshot per vehicle.
type StatusRepository interface {
	Get(ctx context.Context, vehicleID string) (*model.StatusSnapshot, error)

	// UpsertStatus replaces every status field of the snapshot with s. The
	// stored location is kept. It returns the previous snapshot, nil if none.
	UpsertStatus(ctx context.Context, s *model.StatusSnapshot) (prev *model.StatusSnapshot, err error)

	// UpsertLocation replaces only the location of the snapshot.
	UpsertLocation(ctx context.Context, vehicleID string, loc *model.Location) error

	// Update applies fn to an existing snapshot atomically.
	Update(ctx context.Context, vehicleID string, fn func(s *model.StatusSnapshot) error) (*model.StatusSnapshot, error)
}

type GeoFenceRepository interface {
	Get(ctx context.Context, vehicleID string) (*model.GeoFence, error)
	Upsert(ctx context.Context, fence *model.GeoFence) error
}

type ConnectivityLogRepository interface {
	Append(ctx context.Context, entry *model.ConnectivityLog) error

	// List returns the newest entries first, at most limit of them.
	List(ctx context.Context, vehicleID string, limit int) ([]*model.ConnectivityLog, error)
}

// Repository groups every persistence port. It is implemented by the memory
// and postgres stores.
type Repository interface {
	Vehicle() VehicleRepository
	Command() CommandRepository
	Status() StatusRepository
	GeoFence() GeoFenceRepository
	Connectivity() ConnectivityLogRepository

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
