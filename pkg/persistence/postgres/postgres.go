// Package postgres stores parsed events in PostgreSQL.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements persistence.Store using PostgreSQL via pgx.
type PGStore struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
