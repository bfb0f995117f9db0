// Package postgres is the pgx-backed implementation of the store interfaces.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// querier abstracts the pool and a transaction for queries that run in
// either.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a postgres-backed store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Cultivars returns the cultivar store.
func (s *Store) Cultivars() store.CultivarStore { return (*cultivarStore)(s) }

// Batches returns the batch store.
func (s *Store) Batches() store.BatchStore { return (*batchStore)(s) }

// Harvests returns the harvest store.
func (s *Store) Harvests() store.HarvestStore { return (*harvestStore)(s) }

// Packages returns the package store.
func (s *Store) Packages() store.PackageStore { return (*packageStore)(s) }

// LabTests returns the lab test store.
func (s *Store) LabTests() store.LabTestStore { return (*labTestStore)(s) }

// Waste returns the waste store.
func (s *Store) Waste() store.WasteStore { return (*wasteStore)(s) }

// SyncLog returns the sync log store.
func (s *Store) SyncLog() store.SyncLogStore { return (*syncLogStore)(s) }

// StrainCache returns the external strain cache store.
func (s *Store) StrainCache() store.StrainCacheStore { return (*strainCacheStore)(s) }

// Sites returns the site store.
func (s *Store) Sites() store.SiteStore { return (*siteStore)(s) }

// Rooms returns the room store.
func (s *Store) Rooms() store.RoomStore { return (*roomStore)(s) }

// mapError converts pgx errors to the store's sentinel errors. Uniqueness
// and check violations both surface as ErrConflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return store.ErrConflict
		case "23514": // check_violation
			return store.ErrConflict
		}
	}
	return err
}
