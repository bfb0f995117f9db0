package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// cultivarTarget adapts a cultivar to the create-or-link resolver. The
// ledger keys strains on name.
type cultivarTarget struct {
	engine   *Engine
	sc       *siteContext
	cultivar *store.Cultivar
}

func (t *cultivarTarget) Key() string { return t.cultivar.Name }

func (t *cultivarTarget) Status(ctx context.Context) (store.SyncStatus, error) {
	c, err := t.engine.store.Cultivars().Get(ctx, t.cultivar.ID)
	if err != nil {
		return "", err
	}
	return c.SyncStatus, nil
}

func (t *cultivarTarget) ExternalID(ctx context.Context) (*string, error) {
	c, err := t.engine.store.Cultivars().Get(ctx, t.cultivar.ID)
	if err != nil {
		return nil, err
	}
	return c.ExternalStrainID, nil
}

func (t *cultivarTarget) Transition(ctx context.Context, from, to store.SyncStatus) (bool, error) {
	return t.engine.store.Cultivars().TransitionSyncStatus(ctx, t.cultivar.ID, from, to)
}

func (t *cultivarTarget) Find(ctx context.Context) (*string, error) {
	strain, err := t.sc.client.Strains.FindByName(ctx, t.cultivar.Name)
	if err != nil {
		return nil, err
	}
	if strain == nil {
		return nil, nil
	}
	id := strconv.FormatInt(strain.ID, 10)
	return &id, nil
}

func (t *cultivarTarget) Create(ctx context.Context) error {
	req := ledger.StrainCreateRequest{
		Name:          t.cultivar.Name,
		TestingStatus: "None",
	}
	// The ledger wants an indica/sativa split; derive a coarse one from the
	// internal strain type.
	switch t.cultivar.StrainType {
	case "indica":
		req.IndicaPercentage = 100
	case "sativa":
		req.SativaPercentage = 100
	default:
		req.IndicaPercentage = 50
		req.SativaPercentage = 50
	}
	return t.sc.client.Strains.Create(ctx, req)
}

func (t *cultivarTarget) Link(ctx context.Context, externalID string) error {
	return t.engine.store.Cultivars().SetExternalLink(ctx, t.cultivar.ID, externalID)
}

func (t *cultivarTarget) MarkFailed(ctx context.Context) error {
	_, err := t.engine.store.Cultivars().TransitionSyncStatus(
		ctx, t.cultivar.ID, store.SyncStatusSyncing, store.SyncStatusFailed)
	return err
}

// PushCultivar resolves one cultivar against the external ledger with
// create-or-link semantics and writes one audit row for the attempt.
func (e *Engine) PushCultivar(ctx context.Context, siteID, cultivarID, actorID uuid.UUID) *Result {
	result := newResult()

	sc, err := e.siteContext(ctx, siteID, actorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}
	cultivar, err := e.store.Cultivars().Get(ctx, cultivarID)
	if err != nil {
		result.addErrorf("unknown cultivar %s", cultivarID)
		return result
	}

	e.pushCultivar(ctx, sc, cultivar, result)
	return result
}

// pushCultivar runs the create-or-link resolution for one cultivar and
// records the outcome on result.
func (e *Engine) pushCultivar(ctx context.Context, sc *siteContext, cultivar *store.Cultivar, result *Result) {
	target := &cultivarTarget{engine: e, sc: sc, cultivar: cultivar}
	outcome, err := e.createOrLink(ctx, target)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeStrains, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "cultivar", EntityID: cultivar.ID.String(), Action: actionFailed},
			err.Error())
		result.addErrorf("cultivar %q: %v", cultivar.Name, err)
		return
	}

	detail := auditDetail{
		Entity:     "cultivar",
		EntityID:   cultivar.ID.String(),
		ExternalID: outcome.ExternalID,
	}
	switch outcome.Action {
	case linkActionCreated:
		detail.Action = actionCreated
		result.addCreated(cultivar.ID.String())
	case linkActionLinked:
		detail.Action = actionLinked
		result.Updated++
	case linkActionAlready:
		// Nothing changed; still one audit row per attempt.
		detail.Action = actionLinked
		detail.Note = "already linked"
	}
	e.audit(ctx, sc, store.SyncTypeStrains, store.DirectionInternalToExternal, store.OutcomeSuccess, detail, "")
}

// syncStrains pushes every unsynced cultivar in the site's organization and
// then refreshes the external strain cache. The push side lists by sync
// status rather than the incremental window: an unsynced cultivar stays due
// regardless of when the ledger last changed. The window bounds the cache
// refresh pull.
func (e *Engine) syncStrains(ctx context.Context, sc *siteContext, opts Options) *Result {
	result := newResult()

	cultivars, err := e.store.Cultivars().ListUnsynced(ctx, sc.site.OrganizationID)
	if err != nil {
		result.addErrorf("listing unsynced cultivars: %v", err)
		return result
	}
	for _, cultivar := range cultivars {
		e.pushCultivar(ctx, sc, cultivar, result)
	}

	if err := e.refreshStrainCache(ctx, sc, opts.window()); err != nil {
		// Cache staleness is tolerated; report it without failing the run.
		result.addWarningf("strain cache refresh failed: %v", err)
	}
	return result
}

// refreshStrainCache overwrites the local snapshot of the ledger's active
// strains. Upsert by natural key makes concurrent refreshes idempotent, so a
// windowed refresh updates only the strains modified inside the window.
func (e *Engine) refreshStrainCache(ctx context.Context, sc *siteContext, window ledger.ListWindow) error {
	strains, err := sc.client.Strains.ListActive(ctx, window)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeStrains, store.DirectionExternalToInternal, store.OutcomeFailed,
			auditDetail{Entity: "strain_cache", Action: actionFailed}, err.Error())
		return err
	}

	now := time.Now()
	for _, strain := range strains {
		attrs, err := json.Marshal(strain)
		if err != nil {
			return err
		}
		entry := &store.ExternalStrainCacheEntry{
			SiteID:           sc.site.ID,
			ExternalStrainID: strconv.FormatInt(strain.ID, 10),
			Name:             strain.Name,
			Attributes:       attrs,
			LastSyncedAt:     now,
		}
		if err := e.store.StrainCache().Upsert(ctx, entry); err != nil {
			return err
		}
	}

	e.audit(ctx, sc, store.SyncTypeStrains, store.DirectionExternalToInternal, store.OutcomeSuccess,
		auditDetail{Entity: "strain_cache", Action: actionUpdated,
			Note: strconv.Itoa(len(strains)) + " strains cached"}, "")
	return nil
}
