package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

type wasteStore Store

const wasteColumns = `id, site_id, source_type, source_id, weight, unit,
	reason, rendering_method, destruction_date, witness, evidence,
	external_transaction_id, reconcile_status, reconcile_attempts, created_at`

func scanWasteLog(row pgx.Row) (*store.WasteLog, error) {
	var w store.WasteLog
	err := row.Scan(&w.ID, &w.SiteID, &w.SourceType, &w.SourceID, &w.Weight,
		&w.Unit, &w.Reason, &w.RenderingMethod, &w.DestructionDate,
		&w.Witness, &w.Evidence, &w.ExternalTransactionID,
		&w.ReconcileStatus, &w.ReconcileAttempts, &w.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &w, nil
}

func (s *wasteStore) Get(ctx context.Context, id uuid.UUID) (*store.WasteLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+wasteColumns+` FROM waste_logs WHERE id = $1`, id)
	return scanWasteLog(row)
}

// CreateWithDecrement inserts the log row and applies the source decrement in
// one transaction, so the row and the decrement are inseparable.
func (s *wasteStore) CreateWithDecrement(ctx context.Context, w *store.WasteLog) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.ReconcileStatus == "" {
		w.ReconcileStatus = store.WasteReconcilePending
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx)

	switch w.SourceType {
	case store.WasteSourcePlantBatch:
		n, err := store.PlantCountFromWeight(w.Weight)
		if err != nil {
			return err
		}
		if err := decrementBatchPlantCount(ctx, tx, w.SourceID, n); err != nil {
			return err
		}
	case store.WasteSourcePackage:
		if err := decrementPackageQuantity(ctx, tx, w.SourceID, w.Weight); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown waste source type %q", store.ErrConflict, w.SourceType)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO waste_logs (id, site_id, source_type, source_id, weight,
			unit, reason, rendering_method, destruction_date, witness,
			evidence, reconcile_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		w.ID, w.SiteID, w.SourceType, w.SourceID, w.Weight,
		w.Unit, w.Reason, w.RenderingMethod, w.DestructionDate, w.Witness,
		w.Evidence, w.ReconcileStatus)
	if err := row.Scan(&w.CreatedAt); err != nil {
		return mapError(err)
	}

	return mapError(tx.Commit(ctx))
}

func (s *wasteStore) ListPending(ctx context.Context, siteID uuid.UUID) ([]*store.WasteLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+wasteColumns+` FROM waste_logs
		 WHERE site_id = $1 AND reconcile_status = $2
		 ORDER BY created_at`,
		siteID, store.WasteReconcilePending)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*store.WasteLog
	for rows.Next() {
		w, err := scanWasteLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, mapError(rows.Err())
}

func (s *wasteStore) CompleteReconciliation(ctx context.Context, id uuid.UUID, externalTxnID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE waste_logs
		SET external_transaction_id = $1, reconcile_status = $2
		WHERE id = $3`,
		externalTxnID, store.WasteReconcileComplete, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *wasteStore) RecordReconcileFailure(ctx context.Context, id uuid.UUID, maxAttempts int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE waste_logs
		SET reconcile_attempts = reconcile_attempts + 1,
		    reconcile_status = CASE
		        WHEN reconcile_attempts + 1 >= $1 THEN $2::text
		        ELSE reconcile_status
		    END
		WHERE id = $3`,
		maxAttempts, store.WasteReconcileManualReview, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
