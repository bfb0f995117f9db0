package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type syncLogStore Store

// Append inserts one audit row. The sync log is append-only: this store
// deliberately exposes no update or delete.
func (s *syncLogStore) Append(ctx context.Context, e *store.SyncLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	detail := e.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_log (id, organization_id, site_id, sync_type,
			direction, status, detail, error_message, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING timestamp`,
		e.ID, e.OrganizationID, e.SiteID, e.SyncType,
		e.Direction, e.Status, detail, e.ErrorMessage, e.PerformedBy)
	if err := row.Scan(&e.Timestamp); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *syncLogStore) List(ctx context.Context, filter store.SyncLogFilter) ([]*store.SyncLogEntry, error) {
	query := `SELECT id, organization_id, site_id, sync_type, direction,
		status, detail, error_message, performed_by, timestamp
		FROM sync_log WHERE organization_id = $1`
	args := []any{filter.OrganizationID}

	if filter.SiteID != nil {
		args = append(args, *filter.SiteID)
		query += fmt.Sprintf(" AND site_id = $%d", len(args))
	}
	if filter.SyncType != nil {
		args = append(args, *filter.SyncType)
		query += fmt.Sprintf(" AND sync_type = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.SyncLogEntry
	for rows.Next() {
		var e store.SyncLogEntry
		err := rows.Scan(&e.ID, &e.OrganizationID, &e.SiteID, &e.SyncType,
			&e.Direction, &e.Status, &e.Detail, &e.ErrorMessage,
			&e.PerformedBy, &e.Timestamp)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, &e)
	}
	return out, mapError(rows.Err())
}
