package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/telehub/internal/telehub/core/model"
)

type statusRepo struct {
	db       *sql.DB
	pipeline *LocationPipeline
}

func (r *statusRepo) Get(ctx context.Context, vehicleID string) (*model.StatusSnapshot, error) {
	s, err := getStatus(ctx, r.db, vehicleID, "")
	if err != nil {
		return nil, err
	}
	if loc, ok := r.pipeline.Pending(vehicleID); ok {
		s.Location = loc
	}
	return s, nil
}

// UpsertStatus writes every status field and keeps the location column.
func (r *statusRepo) UpsertStatus(ctx context.Context, s *model.StatusSnapshot) (*model.StatusSnapshot, error) {
	var prev *model.StatusSnapshot
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := getStatus(ctx, tx, s.VehicleID, " FOR UPDATE")
		switch {
		case err == nil:
			prev = cur
		case !isNotFound(err):
			return err
		}

		doc, err := encodeStatus(s)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO vehicle_status (vehicle_id, status, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (vehicle_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			s.VehicleID, doc, s.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert status of %q: %w", s.VehicleID, err)
	}
	if prev != nil {
		if loc, ok := r.pipeline.Pending(s.VehicleID); ok {
			prev.Location = loc
		}
	}
	return prev, nil
}

// UpsertLocation hands the fix to the write-behind pipeline when it runs and
// writes through otherwise.
func (r *statusRepo) UpsertLocation(ctx context.Context, vehicleID string, loc *model.Location) error {
	if r.pipeline.Push(vehicleID, loc) {
		return nil
	}
	return writeLocation(ctx, r.db, vehicleID, loc)
}

func (r *statusRepo) Update(ctx context.Context, vehicleID string, fn func(*model.StatusSnapshot) error) (*model.StatusSnapshot, error) {
	var updated *model.StatusSnapshot
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := getStatus(ctx, tx, vehicleID, " FOR UPDATE")
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}

		doc, err := encodeStatus(cur)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE vehicle_status SET status = $2, updated_at = $3 WHERE vehicle_id = $1`,
			vehicleID, doc, cur.UpdatedAt); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	if loc, ok := r.pipeline.Pending(vehicleID); ok {
		updated.Location = loc
	}
	return updated, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getStatus(ctx context.Context, q querier, vehicleID, lock string) (*model.StatusSnapshot, error) {
	var doc, loc []byte
	err := q.QueryRowContext(ctx,
		`SELECT status, location FROM vehicle_status WHERE vehicle_id = $1`+lock, vehicleID,
	).Scan(&doc, &loc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("status", vehicleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get status of %q: %w", vehicleID, err)
	}

	var s model.StatusSnapshot
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("decode status of %q: %w", vehicleID, err)
	}
	s.VehicleID = vehicleID
	s.Location = nil
	if len(loc) > 0 {
		var l model.Location
		if err := json.Unmarshal(loc, &l); err != nil {
			return nil, fmt.Errorf("decode location of %q: %w", vehicleID, err)
		}
		s.Location = &l
	}
	return &s, nil
}

// encodeStatus serializes s without its location, which has its own column.
func encodeStatus(s *model.StatusSnapshot) (string, error) {
	c := *s
	c.Location = nil
	b, err := json.Marshal(&c)
	return string(b), err
}

func writeLocation(ctx context.Context, q querier, vehicleID string, loc *model.Location) error {
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	empty, _ := json.Marshal(&model.StatusSnapshot{VehicleID: vehicleID})
	_, err = q.ExecContext(ctx,
		`INSERT INTO vehicle_status (vehicle_id, status, location) VALUES ($1, $2, $3)
		 ON CONFLICT (vehicle_id) DO UPDATE SET location = EXCLUDED.location`,
		vehicleID, string(empty), string(b))
	if err != nil {
		return fmt.Errorf("write location of %q: %w", vehicleID, err)
	}
	return nil
}

func (s *Store) writeLocation(ctx context.Context, vehicleID string, loc *model.Location) error {
	return writeLocation(ctx, s.db, vehicleID, loc)
}
