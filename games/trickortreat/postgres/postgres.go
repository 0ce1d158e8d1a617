/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package postgres stores trick or treat sessions in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Seednode/trickortreat/games/trickortreat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 5 * time.Second

//go:embed schema.sql
var schema string

// querier is the part of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements trickortreat.Repository on a pgx pool. Calls made
// outside WithTx run in their own implicit transaction.
type Repository struct {
	*queries
	pool *pgxpool.Pool
}

// New connects to dsn and checks the connection.
func New(ctx context.Context, dsn string) (*Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Repository{
		queries: &queries{db: pool},
		pool:    pool,
	}, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Migrate creates any missing tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(q trickortreat.Queries) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	return mapErr(tx.Commit(ctx))
}

// mapErr translates driver errors into the domain errors the engines check for.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", trickortreat.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", trickortreat.ErrDuplicateAction, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", trickortreat.ErrNotFound, pgErr.ConstraintName)
		}
	}

	return err
}

var (
	_ trickortreat.Repository = (*Repository)(nil)
	_ trickortreat.Queries    = (*queries)(nil)
)
