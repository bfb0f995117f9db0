package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// WasteRequest describes one destruction event.
type WasteRequest struct {
	SourceID uuid.UUID
	ActorID  uuid.UUID

	Weight          float64
	Unit            string
	Reason          string
	RenderingMethod string
	DestructionDate time.Time
	Witness         string
	Evidence        []string
}

// validate rejects incomplete requests before any local or external write.
func (r *WasteRequest) validate() error {
	if r.Weight <= 0 {
		return validationf("weight", "destruction weight must be positive")
	}
	if r.Unit == "" {
		return validationf("unit", "a unit of weight is required")
	}
	if r.Reason == "" {
		return validationf("reason", "a waste reason is required")
	}
	if r.RenderingMethod == "" {
		return validationf("renderingMethod", "a rendering method is required")
	}
	if r.DestructionDate.IsZero() {
		return validationf("destructionDate", "a destruction date is required")
	}
	if r.Witness == "" {
		return validationf("witness", "a witness is required for destruction events")
	}
	return nil
}

// DestroyPlantBatchWaste records the destruction of plants from a batch.
func (e *Engine) DestroyPlantBatchWaste(ctx context.Context, req WasteRequest) *Result {
	result := newResult()

	batch, err := e.store.Batches().Get(ctx, req.SourceID)
	if err != nil {
		result.addErrorf("unknown batch %s", req.SourceID)
		return result
	}
	sc, err := e.siteContext(ctx, batch.SiteID, req.ActorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	e.destroyWaste(ctx, sc, store.WasteSourcePlantBatch, req, batch.Name, result)
	return result
}

// DestroyPackageWaste records the destruction of product from a package.
func (e *Engine) DestroyPackageWaste(ctx context.Context, req WasteRequest) *Result {
	result := newResult()

	pkg, err := e.store.Packages().Get(ctx, req.SourceID)
	if err != nil {
		result.addErrorf("unknown package %s", req.SourceID)
		return result
	}
	sc, err := e.siteContext(ctx, pkg.SiteID, req.ActorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	e.destroyWaste(ctx, sc, store.WasteSourcePackage, req, pkg.Tag, result)
	return result
}

// destroyWaste is the shared destruction sequence: validate, then create the
// local waste log and apply the inventory decrement atomically, then attempt
// the external destruction transaction.
//
// When the external attempt fails, the local decrement stays: the material
// has physically been destroyed, and reversing inventory to match a
// bookkeeping failure would itself be a compliance violation. The row is left
// pending_external_sync for the reconciliation pass.
func (e *Engine) destroyWaste(
	ctx context.Context,
	sc *siteContext,
	sourceType store.WasteSourceType,
	req WasteRequest,
	sourceName string,
	result *Result,
) {
	if err := req.validate(); err != nil {
		result.addErrorf("%v", err)
		return
	}
	if sourceType == store.WasteSourcePlantBatch {
		if _, err := store.PlantCountFromWeight(req.Weight); err != nil {
			result.addErrorf("%v", validationf("weight",
				"plant batch destruction weight must be a whole number of plants, got %v", req.Weight))
			return
		}
	}

	wasteLog := &store.WasteLog{
		SiteID:          sc.site.ID,
		SourceType:      sourceType,
		SourceID:        req.SourceID,
		Weight:          req.Weight,
		Unit:            req.Unit,
		Reason:          req.Reason,
		RenderingMethod: req.RenderingMethod,
		DestructionDate: req.DestructionDate,
		Witness:         req.Witness,
		Evidence:        req.Evidence,
		ReconcileStatus: store.WasteReconcilePending,
	}
	if err := e.store.Waste().CreateWithDecrement(ctx, wasteLog); err != nil {
		if errors.Is(err, store.ErrInsufficientInventory) {
			result.addErrorf("%v", invariantf(
				"destruction weight %.2f exceeds remaining inventory of %s %q",
				req.Weight, sourceType, sourceName))
			return
		}
		result.addErrorf("recording waste log: %v", err)
		return
	}
	result.addCreated(wasteLog.ID.String())

	txn, err := sc.client.Waste.Destroy(ctx, ledger.WasteDestroyRequest{
		SourceType:      string(sourceType),
		SourceName:      sourceName,
		Weight:          req.Weight,
		UnitOfWeight:    req.Unit,
		WasteReason:     req.Reason,
		RenderingMethod: req.RenderingMethod,
		ActualDate:      ledger.FormatDate(req.DestructionDate),
	})
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeWaste, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "waste_log", EntityID: wasteLog.ID.String(), Action: actionFailed,
				Note: "local decrement applied, external destruction pending"},
			err.Error())
		result.Success = false
		result.addWarningf("pending_external_sync: destruction recorded locally for %s %q but the external transaction failed: %v",
			sourceType, sourceName, err)
		return
	}

	if err := e.store.Waste().CompleteReconciliation(ctx, wasteLog.ID, txn.TransactionID); err != nil {
		result.addErrorf("attaching external transaction id: %v", err)
		return
	}
	e.audit(ctx, sc, store.SyncTypeWaste, store.DirectionInternalToExternal, store.OutcomeSuccess,
		auditDetail{Entity: "waste_log", EntityID: wasteLog.ID.String(), Action: actionCreated,
			ExternalID: txn.TransactionID},
		"")
}

// ReconcilePendingWaste retries the external destruction transaction for
// every waste row still marked pending_external_sync. Rows that keep failing
// are escalated to manual review after the configured number of attempts;
// the successful path attaches the external transaction id.
func (e *Engine) ReconcilePendingWaste(ctx context.Context, siteID, actorID uuid.UUID) *Result {
	result := newResult()

	sc, err := e.siteContext(ctx, siteID, actorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	pending, err := e.store.Waste().ListPending(ctx, sc.site.ID)
	if err != nil {
		result.addErrorf("listing pending waste rows: %v", err)
		return result
	}

	for _, row := range pending {
		sourceName, nameErr := e.wasteSourceName(ctx, row)
		if nameErr != nil {
			result.addErrorf("waste log %s: %v", row.ID, nameErr)
			continue
		}

		txn, destroyErr := sc.client.Waste.Destroy(ctx, ledger.WasteDestroyRequest{
			SourceType:      string(row.SourceType),
			SourceName:      sourceName,
			Weight:          row.Weight,
			UnitOfWeight:    row.Unit,
			WasteReason:     row.Reason,
			RenderingMethod: row.RenderingMethod,
			ActualDate:      ledger.FormatDate(row.DestructionDate),
		})
		if destroyErr != nil {
			e.handleLedgerError(ctx, sc, destroyErr)
			e.audit(ctx, sc, store.SyncTypeWaste, store.DirectionInternalToExternal, store.OutcomeFailed,
				auditDetail{Entity: "waste_log", EntityID: row.ID.String(), Action: actionFailed,
					Note: "reconciliation attempt"},
				destroyErr.Error())
			if recErr := e.store.Waste().RecordReconcileFailure(ctx, row.ID, e.maxReconcileAttempts); recErr != nil {
				result.addErrorf("waste log %s: recording reconcile failure: %v", row.ID, recErr)
				continue
			}
			updated, getErr := e.store.Waste().Get(ctx, row.ID)
			if getErr == nil && updated.ReconcileStatus == store.WasteReconcileManualReview {
				result.addWarningf("waste log %s escalated to manual review after %d failed attempts",
					row.ID, updated.ReconcileAttempts)
			} else {
				result.addWarningf("waste log %s still pending external sync: %v", row.ID, destroyErr)
			}
			result.Success = false
			continue
		}

		if err := e.store.Waste().CompleteReconciliation(ctx, row.ID, txn.TransactionID); err != nil {
			result.addErrorf("waste log %s: attaching external transaction id: %v", row.ID, err)
			continue
		}
		e.audit(ctx, sc, store.SyncTypeWaste, store.DirectionInternalToExternal, store.OutcomeSuccess,
			auditDetail{Entity: "waste_log", EntityID: row.ID.String(), Action: actionUpdated,
				ExternalID: txn.TransactionID, Note: "reconciliation completed"},
			"")
		result.Updated++
	}

	return result
}

// wasteSourceName resolves the external name of a waste row's source.
func (e *Engine) wasteSourceName(ctx context.Context, row *store.WasteLog) (string, error) {
	switch row.SourceType {
	case store.WasteSourcePlantBatch:
		batch, err := e.store.Batches().Get(ctx, row.SourceID)
		if err != nil {
			return "", err
		}
		return batch.Name, nil
	case store.WasteSourcePackage:
		pkg, err := e.store.Packages().Get(ctx, row.SourceID)
		if err != nil {
			return "", err
		}
		return pkg.Tag, nil
	default:
		return "", validationf("sourceType", "unknown waste source type %q", row.SourceType)
	}
}
