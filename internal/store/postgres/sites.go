package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type siteStore Store

const siteColumns = `id, organization_id, name, license_number, vendor_key,
	user_key, sandbox, sync_enabled, default_location_name, created_at,
	updated_at`

func scanSite(row pgx.Row) (*store.Site, error) {
	var s store.Site
	err := row.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.LicenseNumber,
		&s.VendorKey, &s.UserKey, &s.Sandbox, &s.SyncEnabled,
		&s.DefaultLocationName, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (s *siteStore) Get(ctx context.Context, id uuid.UUID) (*store.Site, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	return scanSite(row)
}

func (s *siteStore) ListSyncEnabled(ctx context.Context, orgID uuid.UUID) ([]*store.Site, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+siteColumns+` FROM sites
		 WHERE organization_id = $1 AND sync_enabled
		 ORDER BY name`,
		orgID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, mapError(rows.Err())
}

func (s *siteStore) SetSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sites SET sync_enabled = $1, updated_at = now()
		WHERE id = $2`,
		enabled, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type roomStore Store

func (s *roomStore) Get(ctx context.Context, id uuid.UUID) (*store.Room, error) {
	var r store.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id, site_id, name, external_location_name
		FROM rooms WHERE id = $1`, id).
		Scan(&r.ID, &r.SiteID, &r.Name, &r.ExternalLocationName)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}
