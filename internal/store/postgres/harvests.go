package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type harvestStore Store

const harvestColumns = `id, site_id, batch_id, name, wet_weight, dry_weight,
	plant_count, external_harvest_id, packaged, harvested_at, created_at`

func scanHarvest(row pgx.Row) (*store.Harvest, error) {
	var h store.Harvest
	err := row.Scan(&h.ID, &h.SiteID, &h.BatchID, &h.Name, &h.WetWeight,
		&h.DryWeight, &h.PlantCount, &h.ExternalHarvestID, &h.Packaged,
		&h.HarvestedAt, &h.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &h, nil
}

func (s *harvestStore) Get(ctx context.Context, id uuid.UUID) (*store.Harvest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+harvestColumns+` FROM harvests WHERE id = $1`, id)
	return scanHarvest(row)
}

func (s *harvestStore) Create(ctx context.Context, h *store.Harvest) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO harvests (id, site_id, batch_id, name, wet_weight,
			dry_weight, plant_count, harvested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		h.ID, h.SiteID, h.BatchID, h.Name, h.WetWeight,
		h.DryWeight, h.PlantCount, h.HarvestedAt)
	if err := row.Scan(&h.CreatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *harvestStore) ListUnmapped(ctx context.Context, siteID uuid.UUID) ([]*store.Harvest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+harvestColumns+` FROM harvests
		 WHERE site_id = $1 AND external_harvest_id IS NULL AND NOT packaged
		 ORDER BY harvested_at`,
		siteID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.Harvest
	for rows.Next() {
		h, err := scanHarvest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, mapError(rows.Err())
}

func (s *harvestStore) SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error {
	var packaged bool
	var current *string
	err := s.pool.QueryRow(ctx,
		`SELECT packaged, external_harvest_id FROM harvests WHERE id = $1`, id).
		Scan(&packaged, &current)
	if err != nil {
		return mapError(err)
	}
	if packaged {
		return fmt.Errorf("%w: harvest %s is packaged", store.ErrImmutable, id)
	}
	if current != nil && *current != externalID {
		return fmt.Errorf("%w: harvest %s", store.ErrAlreadyLinked, id)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE harvests SET external_harvest_id = $1
		WHERE id = $2 AND NOT packaged`,
		externalID, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: harvest %s is packaged", store.ErrImmutable, id)
	}
	return nil
}
