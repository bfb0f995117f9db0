package sync

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// batchTarget adapts a plant batch to the create-or-link resolver. The
// ledger keys plant batches on name.
type batchTarget struct {
	engine   *Engine
	sc       *siteContext
	batch    *store.Batch
	strain   string
	location string
}

func (t *batchTarget) Key() string { return t.batch.Name }

func (t *batchTarget) Status(ctx context.Context) (store.SyncStatus, error) {
	b, err := t.engine.store.Batches().Get(ctx, t.batch.ID)
	if err != nil {
		return "", err
	}
	return b.SyncStatus, nil
}

func (t *batchTarget) ExternalID(ctx context.Context) (*string, error) {
	b, err := t.engine.store.Batches().Get(ctx, t.batch.ID)
	if err != nil {
		return nil, err
	}
	return b.ExternalBatchID, nil
}

func (t *batchTarget) Transition(ctx context.Context, from, to store.SyncStatus) (bool, error) {
	return t.engine.store.Batches().TransitionSyncStatus(ctx, t.batch.ID, from, to)
}

func (t *batchTarget) Find(ctx context.Context) (*string, error) {
	pb, err := t.sc.client.PlantBatches.FindByName(ctx, t.batch.Name)
	if err != nil {
		return nil, err
	}
	if pb == nil {
		return nil, nil
	}
	id := strconv.FormatInt(pb.ID, 10)
	return &id, nil
}

func (t *batchTarget) Create(ctx context.Context) error {
	return t.sc.client.PlantBatches.Create(ctx, ledger.PlantBatchCreateRequest{
		Name:        t.batch.Name,
		Type:        t.batch.DomainType,
		Count:       t.batch.PlantCount,
		Strain:      t.strain,
		Location:    t.location,
		PlantedDate: ledger.FormatDate(t.batch.PlantedAt),
	})
}

func (t *batchTarget) Link(ctx context.Context, externalID string) error {
	return t.engine.store.Batches().SetExternalLink(ctx, t.batch.ID, externalID)
}

func (t *batchTarget) MarkFailed(ctx context.Context) error {
	_, err := t.engine.store.Batches().TransitionSyncStatus(
		ctx, t.batch.ID, store.SyncStatusSyncing, store.SyncStatusFailed)
	return err
}

// PushBatchRequest asks for one batch to be pushed to the external ledger.
type PushBatchRequest struct {
	BatchID uuid.UUID
	ActorID uuid.UUID

	// LocationOverride, when set, takes precedence over the batch's room
	// and the site default in the location fallback chain.
	LocationOverride string
}

// PushBatch pushes one plant batch to the external ledger with
// create-or-link semantics. The batch's location is resolved through the
// fallback chain first; a chain miss aborts the push before any external
// call.
func (e *Engine) PushBatch(ctx context.Context, req PushBatchRequest) *Result {
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

	e.pushBatch(ctx, sc, batch, req.LocationOverride, result)
	return result
}

// pushBatch runs location resolution plus create-or-link for one batch.
func (e *Engine) pushBatch(
	ctx context.Context,
	sc *siteContext,
	batch *store.Batch,
	locationOverride string,
	result *Result,
) {
	cultivar, err := e.store.Cultivars().Get(ctx, batch.CultivarID)
	if err != nil {
		result.addErrorf("batch %q: unknown cultivar %s", batch.Name, batch.CultivarID)
		return
	}

	loc, err := e.resolveLocation(ctx, batch, sc.site, locationOverride)
	if err != nil {
		result.addErrorf("batch %q: resolving location: %v", batch.Name, err)
		return
	}
	if loc.RequiresManualInput {
		result.addErrorf("batch %q: no external location configured; manual location input required", batch.Name)
		return
	}

	target := &batchTarget{engine: e, sc: sc, batch: batch, strain: cultivar.Name, location: loc.LocationName}
	outcome, err := e.createOrLink(ctx, target)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeBatches, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "batch", EntityID: batch.ID.String(), Action: actionFailed},
			err.Error())
		result.addErrorf("batch %q: %v", batch.Name, err)
		return
	}

	detail := auditDetail{
		Entity:     "batch",
		EntityID:   batch.ID.String(),
		ExternalID: outcome.ExternalID,
		Note:       "location: " + loc.LocationName + " (" + string(loc.Source) + ")",
	}
	switch outcome.Action {
	case linkActionCreated:
		detail.Action = actionCreated
		result.addCreated(batch.ID.String())
	case linkActionLinked:
		detail.Action = actionLinked
		result.Updated++
	case linkActionAlready:
		detail.Action = actionLinked
		detail.Note = "already linked"
	}
	e.audit(ctx, sc, store.SyncTypeBatches, store.DirectionInternalToExternal, store.OutcomeSuccess, detail, "")
}

// syncBatches pushes every unsynced batch for the site. This pass is pure
// push and selects work by sync status, not by the incremental window: an
// unsynced batch stays due regardless of when the ledger last changed, so
// the status listing subsumes the window here.
func (e *Engine) syncBatches(ctx context.Context, sc *siteContext, _ Options) *Result {
	result := newResult()

	batches, err := e.store.Batches().ListUnsynced(ctx, sc.site.ID)
	if err != nil {
		result.addErrorf("listing unsynced batches: %v", err)
		return result
	}
	for _, batch := range batches {
		e.pushBatch(ctx, sc, batch, "", result)
	}
	return result
}
