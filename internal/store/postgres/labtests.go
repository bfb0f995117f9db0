package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type labTestStore Store

const labTestColumns = `id, site_id, package_id, lab_name, test_date, results,
	status, external_test_id, created_at, updated_at`

func scanLabTest(row pgx.Row) (*store.LabTest, error) {
	var t store.LabTest
	err := row.Scan(&t.ID, &t.SiteID, &t.PackageID, &t.LabName, &t.TestDate,
		&t.Results, &t.Status, &t.ExternalTestID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func (s *labTestStore) Get(ctx context.Context, id uuid.UUID) (*store.LabTest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+labTestColumns+` FROM lab_tests WHERE id = $1`, id)
	return scanLabTest(row)
}

func (s *labTestStore) Create(ctx context.Context, t *store.LabTest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = store.LabTestStatusPending
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO lab_tests (id, site_id, package_id, lab_name, test_date,
			results, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		t.ID, t.SiteID, t.PackageID, t.LabName, t.TestDate, t.Results, t.Status)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *labTestStore) ListPending(ctx context.Context, siteID uuid.UUID) ([]*store.LabTest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+labTestColumns+` FROM lab_tests
		 WHERE site_id = $1 AND status = $2
		 ORDER BY created_at`,
		siteID, store.LabTestStatusPending)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.LabTest
	for rows.Next() {
		t, err := scanLabTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

func (s *labTestStore) SetStatus(ctx context.Context, id uuid.UUID, status store.LabTestStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE lab_tests SET status = $1, updated_at = now()
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

func (s *labTestStore) SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error {
	var current *string
	err := s.pool.QueryRow(ctx,
		`SELECT external_test_id FROM lab_tests WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return mapError(err)
	}
	if current != nil && *current != externalID {
		return fmt.Errorf("%w: lab test %s", store.ErrAlreadyLinked, id)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE lab_tests SET external_test_id = $1, updated_at = now()
		WHERE id = $2`,
		externalID, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
