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

const commandColumns = `id, vehicle_id, user_id, action, parameters, status, pin_verified,
	biometric_verified, created_at, sent_at, completed_at, response, error`

type commandRepo struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*model.Command, error) {
	var (
		c                 model.Command
		params, response  []byte
		sentAt, completed sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.VehicleID, &c.UserID, &c.Action, &params, &c.Status, &c.PINVerified,
		&c.BiometricVerified, &c.CreatedAt, &sentAt, &completed, &response, &c.Error); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &c.Response); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentAt = &t
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return &c, nil
}

func encodeCommandJSON(c *model.Command) (params, response any, err error) {
	if len(c.Parameters) > 0 {
		b, err := json.Marshal(c.Parameters)
		if err != nil {
			return nil, nil, err
		}
		params = string(b)
	}
	if len(c.Response) > 0 {
		b, err := json.Marshal(c.Response)
		if err != nil {
			return nil, nil, err
		}
		response = string(b)
	}
	return params, response, nil
}

func (r *commandRepo) Create(ctx context.Context, c *model.Command) error {
	params, response, err := encodeCommandJSON(c)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO commands (`+commandColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.VehicleID, c.UserID, string(c.Action), params, string(c.Status), c.PINVerified,
		c.BiometricVerified, c.CreatedAt, c.SentAt, c.CompletedAt, response, c.Error)
	if isUniqueViolation(err) {
		return fmt.Errorf("command %q: %w", c.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create command %q: %w", c.ID, err)
	}
	return nil
}

func (r *commandRepo) Get(ctx context.Context, id string) (*model.Command, error) {
	c, err := scanCommand(r.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("command", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get command %q: %w", id, err)
	}
	return c, nil
}

func (r *commandRepo) ListByVehicle(ctx context.Context, vehicleID string, limit int) ([]*model.Command, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE vehicle_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT NULLIF($2::int, 0)`, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands of %q: %w", vehicleID, err)
	}
	defer rows.Close()

	var out []*model.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *commandRepo) Update(ctx context.Context, id string, fn func(*model.Command) error) (*model.Command, error) {
	var updated *model.Command
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := scanCommand(tx.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("command", id)
		}
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}

		params, response, err := encodeCommandJSON(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE commands SET parameters = $2, status = $3, sent_at = $4, completed_at = $5,
			 response = $6, error = $7 WHERE id = $1`,
			id, params, string(c.Status), c.SentAt, c.CompletedAt, response, c.Error); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
