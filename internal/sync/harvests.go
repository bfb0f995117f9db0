package sync

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// MapHarvest links one local harvest to its external counterpart by exact
// name. Harvests are created in the external ledger as a side effect of the
// batch's harvest growth-phase change, so the local side only ever links,
// never creates.
func (e *Engine) MapHarvest(ctx context.Context, harvestID, actorID uuid.UUID) *Result {
	result := newResult()

	harvest, err := e.store.Harvests().Get(ctx, harvestID)
	if err != nil {
		result.addErrorf("unknown harvest %s", harvestID)
		return result
	}
	sc, err := e.siteContext(ctx, harvest.SiteID, actorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	e.mapHarvest(ctx, sc, harvest, result)
	return result
}

// syncHarvests links every unmapped harvest for the site.
func (e *Engine) syncHarvests(ctx context.Context, sc *siteContext, result *Result) {
	unmapped, err := e.store.Harvests().ListUnmapped(ctx, sc.site.ID)
	if err != nil {
		result.addErrorf("listing unmapped harvests: %v", err)
		return
	}
	for _, harvest := range unmapped {
		e.mapHarvest(ctx, sc, harvest, result)
	}
}

func (e *Engine) mapHarvest(ctx context.Context, sc *siteContext, harvest *store.Harvest, result *Result) {
	if harvest.ExternalHarvestID != nil {
		result.addWarningf("harvest %q is already mapped to external harvest %s",
			harvest.Name, *harvest.ExternalHarvestID)
		return
	}
	if harvest.Packaged {
		result.addErrorf("%v", invariantf(
			"harvest %q has been packaged and is immutable", harvest.Name))
		return
	}

	external, err := sc.client.Harvests.FindByName(ctx, harvest.Name)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeHarvests, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "harvest", EntityID: harvest.ID.String(), Action: actionFailed},
			err.Error())
		result.addErrorf("querying external harvests for %q: %v", harvest.Name, err)
		return
	}
	if external == nil {
		result.addWarningf("no external harvest named %q exists yet; it appears after the batch's harvest phase change propagates",
			harvest.Name)
		return
	}

	externalID := strconv.FormatInt(external.ID, 10)
	if err := e.store.Harvests().SetExternalLink(ctx, harvest.ID, externalID); err != nil {
		if errors.Is(err, store.ErrImmutable) {
			result.addErrorf("%v", invariantf(
				"harvest %q was packaged while mapping was in flight", harvest.Name))
			return
		}
		result.addErrorf("linking harvest %q: %v", harvest.Name, err)
		return
	}

	e.audit(ctx, sc, store.SyncTypeHarvests, store.DirectionInternalToExternal, store.OutcomeSuccess,
		auditDetail{Entity: "harvest", EntityID: harvest.ID.String(), Action: actionLinked, ExternalID: externalID},
		"")
	result.Updated++
}
