package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type packageStore Store

const packageColumns = `id, site_id, tag, quantity, unit_of_measure,
	source_batch_id, source_harvest_id, status, test_status,
	external_package_id, sync_status, created_at, updated_at`

func scanPackage(row pgx.Row) (*store.Package, error) {
	var p store.Package
	err := row.Scan(&p.ID, &p.SiteID, &p.Tag, &p.Quantity, &p.UnitOfMeasure,
		&p.SourceBatchID, &p.SourceHarvestID, &p.Status, &p.TestStatus,
		&p.ExternalPackageID, &p.SyncStatus, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *packageStore) Get(ctx context.Context, id uuid.UUID) (*store.Package, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE id = $1`, id)
	return scanPackage(row)
}

func (s *packageStore) GetByTag(ctx context.Context, siteID uuid.UUID, tag string) (*store.Package, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE site_id = $1 AND tag = $2`,
		siteID, tag)
	return scanPackage(row)
}

func (s *packageStore) Create(ctx context.Context, p *store.Package) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = store.PackageStatusActive
	}
	if p.TestStatus == "" {
		p.TestStatus = store.TestStatusNotRequired
	}
	if p.SyncStatus == "" {
		p.SyncStatus = store.SyncStatusNotSynced
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO packages (id, site_id, tag, quantity, unit_of_measure,
			source_batch_id, source_harvest_id, status, test_status, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.SiteID, p.Tag, p.Quantity, p.UnitOfMeasure,
		p.SourceBatchID, p.SourceHarvestID, p.Status, p.TestStatus, p.SyncStatus)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *packageStore) ListUnsynced(ctx context.Context, siteID uuid.UUID) ([]*store.Package, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+packageColumns+` FROM packages
		 WHERE site_id = $1 AND sync_status IN ($2, $3)
		 ORDER BY created_at`,
		siteID, store.SyncStatusNotSynced, store.SyncStatusFailed)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapError(rows.Err())
}

func (s *packageStore) TransitionSyncStatus(ctx context.Context, id uuid.UUID, from, to store.SyncStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE packages SET sync_status = $1, updated_at = now()
		WHERE id = $2 AND sync_status = $3`,
		to, id, from)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *packageStore) SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error {
	var current *string
	err := s.pool.QueryRow(ctx,
		`SELECT external_package_id FROM packages WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return mapError(err)
	}
	if current != nil && *current != externalID {
		return fmt.Errorf("%w: package %s", store.ErrAlreadyLinked, id)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE packages
		SET external_package_id = $1, sync_status = $2, updated_at = now()
		WHERE id = $3`,
		externalID, store.SyncStatusSynced, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *packageStore) DecrementQuantity(ctx context.Context, id uuid.UUID, amount float64) error {
	return decrementPackageQuantity(ctx, s.pool, id, amount)
}

// decrementPackageQuantity is shared with the waste store's transactional
// path. Reaching zero moves the package to finished.
func decrementPackageQuantity(ctx context.Context, q querier, id uuid.UUID, amount float64) error {
	tag, err := q.Exec(ctx, `
		UPDATE packages
		SET quantity = quantity - $1,
		    status = CASE WHEN quantity - $1 <= 0 THEN 'finished' ELSE status END,
		    updated_at = now()
		WHERE id = $2 AND quantity - $1 >= 0`,
		amount, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM packages WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientInventory
	}
	return nil
}

func (s *packageStore) SetTestStatus(ctx context.Context, id uuid.UUID, status store.TestStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE packages SET test_status = $1, updated_at = now()
		WHERE id = $2`,
		status, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
