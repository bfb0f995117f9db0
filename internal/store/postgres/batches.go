package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type batchStore Store

const batchColumns = `id, site_id, cultivar_id, name, domain_type, plant_count,
	allocated_count, growth_phase, room_id, external_batch_id, sync_status,
	planted_at, created_at, updated_at`

func scanBatch(row pgx.Row) (*store.Batch, error) {
	var b store.Batch
	err := row.Scan(&b.ID, &b.SiteID, &b.CultivarID, &b.Name, &b.DomainType,
		&b.PlantCount, &b.AllocatedCount, &b.GrowthPhase, &b.RoomID,
		&b.ExternalBatchID, &b.SyncStatus, &b.PlantedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (s *batchStore) Get(ctx context.Context, id uuid.UUID) (*store.Batch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	return scanBatch(row)
}

func (s *batchStore) Create(ctx context.Context, b *store.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.SyncStatus == "" {
		b.SyncStatus = store.SyncStatusNotSynced
	}
	if b.GrowthPhase == "" {
		b.GrowthPhase = store.GrowthPhasePropagation
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO batches (id, site_id, cultivar_id, name, domain_type,
			plant_count, growth_phase, room_id, sync_status, planted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		b.ID, b.SiteID, b.CultivarID, b.Name, b.DomainType,
		b.PlantCount, b.GrowthPhase, b.RoomID, b.SyncStatus, b.PlantedAt)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *batchStore) ListUnsynced(ctx context.Context, siteID uuid.UUID) ([]*store.Batch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM batches
		 WHERE site_id = $1 AND sync_status IN ($2, $3)
		 ORDER BY created_at`,
		siteID, store.SyncStatusNotSynced, store.SyncStatusFailed)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

func (s *batchStore) TransitionSyncStatus(ctx context.Context, id uuid.UUID, from, to store.SyncStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batches SET sync_status = $1, updated_at = now()
		WHERE id = $2 AND sync_status = $3`,
		to, id, from)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *batchStore) SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error {
	var current *string
	err := s.pool.QueryRow(ctx,
		`SELECT external_batch_id FROM batches WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return mapError(err)
	}
	if current != nil && *current != externalID {
		return fmt.Errorf("%w: batch %s", store.ErrAlreadyLinked, id)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE batches
		SET external_batch_id = $1, sync_status = $2, updated_at = now()
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

func (s *batchStore) ClearExternalLink(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batches
		SET external_batch_id = NULL, sync_status = $1, updated_at = now()
		WHERE id = $2`,
		store.SyncStatusNotSynced, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Allocate applies the allocation ceiling in the statement itself, so two
// concurrent allocations can never jointly exceed the plant count.
func (s *batchStore) Allocate(ctx context.Context, id uuid.UUID, n int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batches
		SET allocated_count = allocated_count + $1, updated_at = now()
		WHERE id = $2 AND allocated_count + $1 <= plant_count`,
		n, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a failed guard.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM batches WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientInventory
	}
	return nil
}

func (s *batchStore) SetGrowthPhase(ctx context.Context, id uuid.UUID, phase store.GrowthPhase) error {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !batch.GrowthPhase.CanAdvanceTo(phase) {
		return fmt.Errorf("%w: growth phase %s cannot move to %s",
			store.ErrConflict, batch.GrowthPhase, phase)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE batches SET growth_phase = $1, updated_at = now()
		WHERE id = $2 AND growth_phase = $3`,
		phase, id, batch.GrowthPhase)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: growth phase changed concurrently", store.ErrConflict)
	}
	return nil
}

func (s *batchStore) DecrementPlantCount(ctx context.Context, id uuid.UUID, n int) error {
	return decrementBatchPlantCount(ctx, s.pool, id, n)
}

// decrementBatchPlantCount is shared with the waste store's transactional
// path.
func decrementBatchPlantCount(ctx context.Context, q querier, id uuid.UUID, n int) error {
	tag, err := q.Exec(ctx, `
		UPDATE batches
		SET plant_count = plant_count - $1, updated_at = now()
		WHERE id = $2 AND plant_count - $1 >= allocated_count`,
		n, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM batches WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientInventory
	}
	return nil
}
