package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type strainCacheStore Store

// Upsert is keyed on (site_id, external_strain_id) and idempotent, so
// concurrent cache refreshes need no coordination.
func (s *strainCacheStore) Upsert(ctx context.Context, e *store.ExternalStrainCacheEntry) error {
	attrs := e.Attributes
	if len(attrs) == 0 {
		attrs = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_strain_cache (site_id, external_strain_id, name,
			attributes, last_synced_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (site_id, external_strain_id) DO UPDATE
		SET name = EXCLUDED.name,
		    attributes = EXCLUDED.attributes,
		    last_synced_at = now()`,
		e.SiteID, e.ExternalStrainID, e.Name, attrs)
	return mapError(err)
}

func (s *strainCacheStore) GetByName(ctx context.Context, siteID uuid.UUID, name string) (*store.ExternalStrainCacheEntry, error) {
	var e store.ExternalStrainCacheEntry
	err := s.pool.QueryRow(ctx, `
		SELECT site_id, external_strain_id, name, attributes, last_synced_at
		FROM external_strain_cache
		WHERE site_id = $1 AND name = $2`, siteID, name).
		Scan(&e.SiteID, &e.ExternalStrainID, &e.Name, &e.Attributes, &e.LastSyncedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

func (s *strainCacheStore) List(ctx context.Context, siteID uuid.UUID) ([]*store.ExternalStrainCacheEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT site_id, external_strain_id, name, attributes, last_synced_at
		FROM external_strain_cache
		WHERE site_id = $1
		ORDER BY name`, siteID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.ExternalStrainCacheEntry
	for rows.Next() {
		var e store.ExternalStrainCacheEntry
		err := rows.Scan(&e.SiteID, &e.ExternalStrainID, &e.Name,
			&e.Attributes, &e.LastSyncedAt)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, &e)
	}
	return out, mapError(rows.Err())
}
