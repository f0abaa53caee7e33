/*
Package store implements the persistence collaborators of the delivery pipelines and the
account service on PostgreSQL through pgx.
*/
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketchat/internal/app/delivery"
	"marketchat/internal/app/user"
)

// DBTX is the subset of pgx shared by pools, connections and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL repository.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

var (
	_ user.Repository        = (*Store)(nil)
	_ delivery.RoomStore     = (*Store)(nil)
	_ delivery.MessageStore  = (*Store)(nil)
	_ delivery.LocationStore = (*Store)(nil)
	_ delivery.ProfileLookup = (*Store)(nil)
)

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// inTx runs fn inside a transaction on a Store bound to it.
func (s *Store) inTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
