package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

type vehicleRepo struct {
	db *sql.DB
}

func (r *vehicleRepo) Get(ctx context.Context, id string) (*model.Vehicle, error) {
	var (
		v  model.Vehicle
		rc []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, vin, make, model, year, remote_control, created_at
		 FROM vehicles WHERE id = $1`, id,
	).Scan(&v.ID, &v.OwnerID, &v.Name, &v.VIN, &v.Make, &v.Model, &v.Year, &rc, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("vehicle", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle %q: %w", id, err)
	}

	if len(rc) > 0 {
		var cfg remoteControlRow
		if err := json.Unmarshal(rc, &cfg); err != nil {
			return nil, fmt.Errorf("decode remote control of %q: %w", id, err)
		}
		v.RemoteControl = cfg.toModel()
	}
	return &v, nil
}

func (r *vehicleRepo) Create(ctx context.Context, v *model.Vehicle) error {
	var rc []byte
	if v.RemoteControl != nil {
		var err error
		if rc, err = json.Marshal(fromRemoteControl(v.RemoteControl)); err != nil {
			return err
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, owner_id, name, vin, make, model, year, remote_control, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.OwnerID, v.Name, v.VIN, v.Make, v.Model, v.Year, nullJSON(rc), v.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("vehicle %q: %w", v.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create vehicle %q: %w", v.ID, err)
	}
	return nil
}

// remoteControlRow is the stored form of RemoteControlConfig. The model hides
// PINHash from JSON, so it gets its own column shape here.
type remoteControlRow struct {
	RemoteLockEnabled     bool   `json:"remoteLockEnabled"`
	RemoteStartEnabled    bool   `json:"remoteStartEnabled"`
	ClimateControlEnabled bool   `json:"climateControlEnabled"`
	HornLightsEnabled     bool   `json:"hornLightsEnabled"`
	TrunkEnabled          bool   `json:"trunkEnabled"`
	RequirePIN            bool   `json:"requirePin"`
	PINHash               string `json:"pinHash,omitempty"`
	RequireBiometric      bool   `json:"requireBiometric"`
}

func fromRemoteControl(c *model.RemoteControlConfig) remoteControlRow {
	return remoteControlRow{
		RemoteLockEnabled:     c.RemoteLockEnabled,
		RemoteStartEnabled:    c.RemoteStartEnabled,
		ClimateControlEnabled: c.ClimateControlEnabled,
		HornLightsEnabled:     c.HornLightsEnabled,
		TrunkEnabled:          c.TrunkEnabled,
		RequirePIN:            c.RequirePIN,
		PINHash:               c.PINHash,
		RequireBiometric:      c.RequireBiometric,
	}
}

func (r remoteControlRow) toModel() *model.RemoteControlConfig {
	return &model.RemoteControlConfig{
		RemoteLockEnabled:     r.RemoteLockEnabled,
		RemoteStartEnabled:    r.RemoteStartEnabled,
		ClimateControlEnabled: r.ClimateControlEnabled,
		HornLightsEnabled:     r.HornLightsEnabled,
		TrunkEnabled:          r.TrunkEnabled,
		RequirePIN:            r.RequirePIN,
		PINHash:               r.PINHash,
		RequireBiometric:      r.RequireBiometric,
	}
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
