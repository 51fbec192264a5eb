package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

type fenceRepo struct {
	db *sql.DB
}

func (r *fenceRepo) Get(ctx context.Context, vehicleID string) (*model.GeoFence, error) {
	f := model.GeoFence{VehicleID: vehicleID}
	err := r.db.QueryRowContext(ctx,
		`SELECT center_lat, center_lng, radius_meters, enabled, notify FROM geofences WHERE vehicle_id = $1`,
		vehicleID,
	).Scan(&f.CenterLat, &f.CenterLng, &f.RadiusMeters, &f.Enabled, &f.Notify)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("geofence", vehicleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get geofence of %q: %w", vehicleID, err)
	}
	return &f, nil
}

func (r *fenceRepo) Upsert(ctx context.Context, f *model.GeoFence) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO geofences (vehicle_id, center_lat, center_lng, radius_meters, enabled, notify)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (vehicle_id) DO UPDATE SET center_lat = EXCLUDED.center_lat,
		   center_lng = EXCLUDED.center_lng, radius_meters = EXCLUDED.radius_meters,
		   enabled = EXCLUDED.enabled, notify = EXCLUDED.notify`,
		f.VehicleID, f.CenterLat, f.CenterLng, f.RadiusMeters, f.Enabled, f.Notify)
	if err != nil {
		return fmt.Errorf("upsert geofence of %q: %w", f.VehicleID, err)
	}
	return nil
}

type connectivityRepo struct {
	db *sql.DB
}

func (r *connectivityRepo) Append(ctx context.Context, e *model.ConnectivityLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connectivity_logs (vehicle_id, connected, transport, reason, at) VALUES ($1, $2, $3, $4, $5)`,
		e.VehicleID, e.Connected, e.Transport, e.Reason, e.At)
	if err != nil {
		return fmt.Errorf("append connectivity of %q: %w", e.VehicleID, err)
	}
	return nil
}

func (r *connectivityRepo) List(ctx context.Context, vehicleID string, limit int) ([]*model.ConnectivityLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT connected, transport, reason, at FROM connectivity_logs WHERE vehicle_id = $1
		 ORDER BY at DESC, id DESC LIMIT NULLIF($2::int, 0)`, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list connectivity of %q: %w", vehicleID, err)
	}
	defer rows.Close()

	var out []*model.ConnectivityLog
	for rows.Next() {
		e := &model.ConnectivityLog{VehicleID: vehicleID}
		if err := rows.Scan(&e.Connected, &e.Transport, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
