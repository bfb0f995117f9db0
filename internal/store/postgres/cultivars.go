package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type cultivarStore Store

const cultivarColumns = `id, organization_id, name, strain_type, external_strain_id, sync_status, created_at, updated_at`

func scanCultivar(row pgx.Row) (*store.Cultivar, error) {
	var c store.Cultivar
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.StrainType,
		&c.ExternalStrainID, &c.SyncStatus, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (s *cultivarStore) Get(ctx context.Context, id uuid.UUID) (*store.Cultivar, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cultivarColumns+` FROM cultivars WHERE id = $1`, id)
	return scanCultivar(row)
}

func (s *cultivarStore) GetByName(ctx context.Context, orgID uuid.UUID, name string) (*store.Cultivar, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cultivarColumns+` FROM cultivars WHERE organization_id = $1 AND name = $2`,
		orgID, name)
	return scanCultivar(row)
}

func (s *cultivarStore) Create(ctx context.Context, c *store.Cultivar) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.SyncStatus == "" {
		c.SyncStatus = store.SyncStatusNotSynced
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cultivars (id, organization_id, name, strain_type, sync_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.OrganizationID, c.Name, c.StrainType, c.SyncStatus)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *cultivarStore) ListUnsynced(ctx context.Context, orgID uuid.UUID) ([]*store.Cultivar, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cultivarColumns+` FROM cultivars
		 WHERE organization_id = $1 AND sync_status IN ($2, $3)
		 ORDER BY created_at`,
		orgID, store.SyncStatusNotSynced, store.SyncStatusFailed)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.Cultivar
	for rows.Next() {
		c, err := scanCultivar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapError(rows.Err())
}

func (s *cultivarStore) TransitionSyncStatus(ctx context.Context, id uuid.UUID, from, to store.SyncStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cultivars SET sync_status = $1, updated_at = now()
		WHERE id = $2 AND sync_status = $3`,
		to, id, from)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *cultivarStore) SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error {
	var current *string
	err := s.pool.QueryRow(ctx,
		`SELECT external_strain_id FROM cultivars WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return mapError(err)
	}
	if current != nil && *current != externalID {
		return fmt.Errorf("%w: cultivar %s", store.ErrAlreadyLinked, id)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE cultivars
		SET external_strain_id = $1, sync_status = $2, updated_at = now()
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

func (s *cultivarStore) ClearExternalLink(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cultivars
		SET external_strain_id = NULL, sync_status = $1, updated_at = now()
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
