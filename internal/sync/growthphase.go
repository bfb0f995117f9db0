package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// GrowthPhaseRequest advances a batch through the cultivation lifecycle.
type GrowthPhaseRequest struct {
	BatchID  uuid.UUID
	ActorID  uuid.UUID
	NewPhase store.GrowthPhase

	// PlantCount, when positive on a transition to Vegetative or Flowering,
	// additionally creates that many externally tagged individual plants,
	// starting at StartingTag and incrementing.
	PlantCount  int
	StartingTag string

	// GrowthDate defaults to today.
	GrowthDate time.Time

	LocationOverride string
}

// ChangeGrowthPhase advances a batch's growth phase. Phases are monotonic:
// Propagation -> Vegetative -> Flowering -> Harvested, no regression. The
// optional individual-plant push requires the batch to already be externally
// linked and fails closed, leaving local state untouched.
func (e *Engine) ChangeGrowthPhase(ctx context.Context, req GrowthPhaseRequest) *Result {
	result := newResult()

	batch, err := e.store.Batches().Get(ctx, req.BatchID)
	if err != nil {
		result.addErrorf("unknown batch %s", req.BatchID)
		return result
	}
	sc, err := e.siteContext(ctx, batch.SiteID, req.ActorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	if err := e.changeGrowthPhase(ctx, sc, batch, req, result); err != nil {
		result.addErrorf("%v", err)
	}
	return result
}

func (e *Engine) changeGrowthPhase(
	ctx context.Context,
	sc *siteContext,
	batch *store.Batch,
	req GrowthPhaseRequest,
	result *Result,
) error {
	// All validation happens before any external call.
	if !req.NewPhase.Valid() {
		return validationf("newPhase", "unknown growth phase %q", req.NewPhase)
	}
	if !batch.GrowthPhase.CanAdvanceTo(req.NewPhase) {
		return invariantf("batch %q cannot move from %s to %s: phases only advance",
			batch.Name, batch.GrowthPhase, req.NewPhase)
	}

	pushPlants := req.PlantCount > 0 &&
		(req.NewPhase == store.GrowthPhaseVegetative || req.NewPhase == store.GrowthPhaseFlowering)

	if pushPlants {
		if batch.ExternalBatchID == nil {
			return invariantf("batch %q is not externally linked; push the batch before creating tagged plants",
				batch.Name)
		}
		if req.StartingTag == "" {
			return validationf("startingTag", "a starting plant tag is required to create individual plants")
		}
		if req.PlantCount > batch.RemainingPlantCount() {
			return invariantf("requested %d plants but batch %q has only %d unallocated",
				req.PlantCount, batch.Name, batch.RemainingPlantCount())
		}

		loc, err := e.resolveLocation(ctx, batch, sc.site, req.LocationOverride)
		if err != nil {
			return err
		}
		if loc.RequiresManualInput {
			return validationf("location", "no external location configured for batch %q", batch.Name)
		}

		growthDate := req.GrowthDate
		if growthDate.IsZero() {
			growthDate = time.Now()
		}

		err = sc.client.PlantBatches.ChangeGrowthPhase(ctx, ledger.GrowthPhaseChangeRequest{
			Name:        batch.Name,
			Count:       req.PlantCount,
			StartingTag: req.StartingTag,
			GrowthPhase: string(req.NewPhase),
			NewLocation: loc.LocationName,
			GrowthDate:  ledger.FormatDate(growthDate),
		})
		if err != nil {
			e.handleLedgerError(ctx, sc, err)
			e.audit(ctx, sc, store.SyncTypeBatches, store.DirectionInternalToExternal, store.OutcomeFailed,
				auditDetail{Entity: "batch", EntityID: batch.ID.String(), Action: actionFailed,
					Note: "growth phase " + string(req.NewPhase)},
				err.Error())
			return err
		}

		if err := e.store.Batches().Allocate(ctx, batch.ID, req.PlantCount); err != nil {
			// The external plants now exist; report the divergence instead
			// of hiding it.
			e.audit(ctx, sc, store.SyncTypeBatches, store.DirectionInternalToExternal, store.OutcomeFailed,
				auditDetail{Entity: "batch", EntityID: batch.ID.String(), Action: actionFailed,
					Note: "external plants created but local allocation failed"},
				err.Error())
			return errors.New("external plants were created but the local allocation could not be recorded: " + err.Error())
		}
	}

	if err := e.store.Batches().SetGrowthPhase(ctx, batch.ID, req.NewPhase); err != nil {
		result.addErrorf("batch %q: recording phase change: %v", batch.Name, err)
		return nil
	}

	detail := auditDetail{
		Entity:   "batch",
		EntityID: batch.ID.String(),
		Action:   actionUpdated,
		Note:     "growth phase " + string(batch.GrowthPhase) + " -> " + string(req.NewPhase),
	}
	if pushPlants {
		detail.Note += ", " + req.StartingTag + " plant tags assigned"
		e.audit(ctx, sc, store.SyncTypeBatches, store.DirectionInternalToExternal, store.OutcomeSuccess, detail, "")
	}
	result.Updated++
	return nil
}
