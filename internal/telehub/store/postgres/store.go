// Package postgres implements the telehub repositories on PostgreSQL through
// lib/pq. Command updates run in SELECT ... FOR UPDATE transactions so
// concurrent writers of one command are serialized.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/autopeer-io/telehub/internal/telehub/core"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

//go:embed schema.sql
var schema string

var _ core.Repository = (*Store)(nil)

type Store struct {
	db       *sql.DB
	pipeline *LocationPipeline
}

// Open connects to the database described by opts and applies the schema.
// The location pipeline is not started; run Start in the caller's errgroup.
func Open(ctx context.Context, opts *options.StoreOptions) (*Store, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("Connected to postgres", "maxOpenConns", opts.MaxOpenConns)

	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle without touching the schema.
func NewWithDB(db *sql.DB) *Store {
	s := &Store{db: db}
	s.pipeline = NewLocationPipeline(s.writeLocation)
	return s
}

// Start runs the location write-behind pipeline until ctx is done.
func (s *Store) Start(ctx context.Context) error {
	s.pipeline.Start(ctx)
	return nil
}

func (s *Store) Vehicle() core.VehicleRepository              { return &vehicleRepo{db: s.db} }
func (s *Store) Command() core.CommandRepository              { return &commandRepo{db: s.db} }
func (s *Store) Status() core.StatusRepository                { return &statusRepo{db: s.db, pipeline: s.pipeline} }
func (s *Store) GeoFence() core.GeoFenceRepository            { return &fenceRepo{db: s.db} }
func (s *Store) Connectivity() core.ConnectivityLogRepository { return &connectivityRepo{db: s.db} }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
}

// isUniqueViolation reports a primary key or unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// inTx runs fn in a transaction, committing on nil and rolling back otherwise.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
