// Package vehicle serves owner-scoped reads and configuration of vehicles:
// registration, the latest status snapshot, the geofence and the
// connectivity log.
package vehicle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/telehub/internal/pkg/errno"
	"github.com/autopeer-io/telehub/internal/pkg/geo"
	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
	"github.com/autopeer-io/telehub/pkg/log"
)

const defaultConnectivityLimit = 50

type Service struct {
	vehicles     core.VehicleRepository
	statuses     core.StatusRepository
	fences       core.GeoFenceRepository
	connectivity core.ConnectivityLogRepository
}

func New(repo core.Repository) *Service {
	return &Service{
		vehicles:     repo.Vehicle(),
		statuses:     repo.Status(),
		fences:       repo.GeoFence(),
		connectivity: repo.Connectivity(),
	}
}

// Register creates a vehicle owned by userID.
func (s *Service) Register(ctx context.Context, userID string, v *model.Vehicle) (*model.Vehicle, error) {
	if userID == "" || v.ID == "" {
		return nil, errno.ErrValidation.WithMessage("Vehicle id is required.")
	}
	v.OwnerID = userID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	if err := s.vehicles.Create(ctx, v); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, errno.ErrValidation.WithMessage("Vehicle %s already exists.", v.ID)
		}
		return nil, fmt.Errorf("create vehicle: %w", err)
	}
	log.FromContext(ctx).Info("Vehicle registered", "vehicleID", v.ID)
	return v, nil
}

// Get returns the vehicle when userID owns it. Other owners get not-found.
func (s *Service) Get(ctx context.Context, userID, vehicleID string) (*model.Vehicle, error) {
	v, err := s.vehicles.Get(ctx, vehicleID)
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

// Status returns the latest snapshot of an owned vehicle.
func (s *Service) Status(ctx context.Context, userID, vehicleID string) (*model.StatusSnapshot, error) {
	if _, err := s.Get(ctx, userID, vehicleID); err != nil {
		return nil, err
	}
	snap, err := s.statuses.Get(ctx, vehicleID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errno.ErrNotFound.WithMessage("No status reported yet.")
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return snap, nil
}

func (s *Service) GeoFence(ctx context.Context, userID, vehicleID string) (*model.GeoFence, error) {
	if _, err := s.Get(ctx, userID, vehicleID); err != nil {
		return nil, err
	}
	f, err := s.fences.Get(ctx, vehicleID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errno.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get geofence: %w", err)
	}
	return f, nil
}

// SetGeoFence validates and stores the geofence of an owned vehicle.
func (s *Service) SetGeoFence(ctx context.Context, userID string, f *model.GeoFence) error {
	if _, err := s.Get(ctx, userID, f.VehicleID); err != nil {
		return err
	}
	if !(geo.Point{Lat: f.CenterLat, Lng: f.CenterLng}).Valid() {
		return errno.ErrValidation.WithMessage("Geofence center is out of range.")
	}
	if f.RadiusMeters <= 0 {
		return errno.ErrValidation.WithMessage("Geofence radius must be positive.")
	}
	if err := s.fences.Upsert(ctx, f); err != nil {
		return fmt.Errorf("upsert geofence: %w", err)
	}
	return nil
}

// Connectivity returns the newest connectivity edges of an owned vehicle.
func (s *Service) Connectivity(ctx context.Context, userID, vehicleID string, limit int) ([]*model.ConnectivityLog, error) {
	if _, err := s.Get(ctx, userID, vehicleID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultConnectivityLimit {
		limit = defaultConnectivityLimit
	}
	entries, err := s.connectivity.List(ctx, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list connectivity: %w", err)
	}
	return entries, nil
}
