package sync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// packageTarget adapts a package to the create-or-link resolver. The ledger
// keys packages on their tag label.
type packageTarget struct {
	engine *Engine
	sc     *siteContext
	pkg    *store.Package
	create ledger.PackageCreateRequest
}

func (t *packageTarget) Key() string { return t.pkg.Tag }

func (t *packageTarget) Status(ctx context.Context) (store.SyncStatus, error) {
	p, err := t.engine.store.Packages().Get(ctx, t.pkg.ID)
	if err != nil {
		return "", err
	}
	return p.SyncStatus, nil
}

func (t *packageTarget) ExternalID(ctx context.Context) (*string, error) {
	p, err := t.engine.store.Packages().Get(ctx, t.pkg.ID)
	if err != nil {
		return nil, err
	}
	return p.ExternalPackageID, nil
}

func (t *packageTarget) Transition(ctx context.Context, from, to store.SyncStatus) (bool, error) {
	return t.engine.store.Packages().TransitionSyncStatus(ctx, t.pkg.ID, from, to)
}

func (t *packageTarget) Find(ctx context.Context) (*string, error) {
	pkg, err := t.sc.client.Packages.FindByLabel(ctx, t.pkg.Tag)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, nil
	}
	id := strconv.FormatInt(pkg.ID, 10)
	return &id, nil
}

func (t *packageTarget) Create(ctx context.Context) error {
	return t.sc.client.Packages.Create(ctx, t.create)
}

func (t *packageTarget) Link(ctx context.Context, externalID string) error {
	return t.engine.store.Packages().SetExternalLink(ctx, t.pkg.ID, externalID)
}

func (t *packageTarget) MarkFailed(ctx context.Context) error {
	_, err := t.engine.store.Packages().TransitionSyncStatus(
		ctx, t.pkg.ID, store.SyncStatusSyncing, store.SyncStatusFailed)
	return err
}

// PackageRequest creates a package from a batch.
type PackageRequest struct {
	BatchID uuid.UUID
	ActorID uuid.UUID

	// Tag is the pre-assigned external package tag.
	Tag string

	// Item is the ledger product item the package holds.
	Item string

	// PlantCount is how many plants the package consumes from the batch.
	PlantCount int

	Quantity      float64
	UnitOfMeasure string

	LocationOverride string
	ActualDate       time.Time
	Note             string
}

// CreatePackageFromBatch packages plants out of a batch, decrementing the
// batch's available allocation. Over-allocation is rejected before any
// external call and before any local mutation.
func (e *Engine) CreatePackageFromBatch(ctx context.Context, req PackageRequest) *Result {
	return e.createPackage(ctx, req, true)
}

// CreatePackageFromMother packages cuttings from a mother (propagation
// stock) batch. The source batch's plant count is not decremented: the
// mothers remain in place. The allocation ceiling still applies.
func (e *Engine) CreatePackageFromMother(ctx context.Context, req PackageRequest) *Result {
	return e.createPackage(ctx, req, false)
}

func (e *Engine) createPackage(ctx context.Context, req PackageRequest, consumePlants bool) *Result {
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

	if err := e.createPackageFromBatch(ctx, sc, batch, req, consumePlants, result); err != nil {
		result.addErrorf("%v", err)
	}
	return result
}

func (e *Engine) createPackageFromBatch(
	ctx context.Context,
	sc *siteContext,
	batch *store.Batch,
	req PackageRequest,
	consumePlants bool,
	result *Result,
) error {
	// Fail fast on input and invariants; no external call is made past a
	// rejection here.
	if req.Tag == "" {
		return validationf("tag", "a package tag is required")
	}
	if req.Item == "" {
		return validationf("item", "a product item is required")
	}
	if req.PlantCount <= 0 {
		return validationf("plantCount", "plant count must be positive")
	}
	if req.Quantity <= 0 {
		return validationf("quantity", "quantity must be positive")
	}
	if req.UnitOfMeasure == "" {
		return validationf("unitOfMeasure", "a unit of measure is required")
	}
	if req.PlantCount > batch.RemainingPlantCount() {
		return invariantf("requested %d plants but batch %q has only %d unallocated",
			req.PlantCount, batch.Name, batch.RemainingPlantCount())
	}
	if batch.ExternalBatchID == nil {
		return invariantf("batch %q is not externally linked; push the batch before packaging", batch.Name)
	}

	loc, err := e.resolveLocation(ctx, batch, sc.site, req.LocationOverride)
	if err != nil {
		return err
	}
	if loc.RequiresManualInput {
		return validationf("location", "no external location configured for batch %q", batch.Name)
	}

	actualDate := req.ActualDate
	if actualDate.IsZero() {
		actualDate = time.Now()
	}

	// Local creation comes first: the package exists as inventory whether
	// or not the external push lands, and a failed push is reported as
	// partial state rather than rolled back.
	pkg := &store.Package{
		SiteID:        batch.SiteID,
		Tag:           req.Tag,
		Quantity:      req.Quantity,
		UnitOfMeasure: req.UnitOfMeasure,
		SourceBatchID: &batch.ID,
	}
	if err := e.store.Packages().Create(ctx, pkg); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return validationf("tag", "package tag %q already exists at this site", req.Tag)
		}
		return err
	}
	if consumePlants {
		if err := e.store.Batches().Allocate(ctx, batch.ID, req.PlantCount); err != nil {
			if errors.Is(err, store.ErrInsufficientInventory) {
				// A concurrent packaging consumed the remaining plants
				// between the ceiling check and the allocation.
				return invariantf("package %q was created locally but allocating %d plants from batch %q failed: a concurrent packaging took the remaining inventory; resolve the package manually",
					req.Tag, req.PlantCount, batch.Name)
			}
			return err
		}
	}
	result.addCreated(pkg.ID.String())

	target := &packageTarget{
		engine: e,
		sc:     sc,
		pkg:    pkg,
		create: ledger.PackageCreateRequest{
			Tag:           req.Tag,
			Item:          req.Item,
			Quantity:      req.Quantity,
			UnitOfMeasure: req.UnitOfMeasure,
			Location:      loc.LocationName,
			PlantBatch:    batch.Name,
			Count:         req.PlantCount,
			ActualDate:    ledger.FormatDate(actualDate),
			Note:          req.Note,
		},
	}
	outcome, err := e.createOrLink(ctx, target)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypePackages, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "package", EntityID: pkg.ID.String(), Action: actionFailed},
			err.Error())
		result.addErrorf("package %q was created locally but the external push failed: %v", req.Tag, err)
		return nil
	}

	detail := auditDetail{
		Entity:     "package",
		EntityID:   pkg.ID.String(),
		ExternalID: outcome.ExternalID,
		Action:     actionCreated,
	}
	if outcome.Action != linkActionCreated {
		detail.Action = actionLinked
	}
	e.audit(ctx, sc, store.SyncTypePackages, store.DirectionInternalToExternal, store.OutcomeSuccess, detail, "")
	return nil
}

// syncPackages retries linkage for packages whose external push previously
// failed. The full create payload is not retained, so this pass only links
// against packages that already exist externally under the same tag; a miss
// stays sync_failed and is reported for manual re-submission.
func (e *Engine) syncPackages(ctx context.Context, sc *siteContext, result *Result) {
	unsynced, err := e.store.Packages().ListUnsynced(ctx, sc.site.ID)
	if err != nil {
		result.addErrorf("listing unsynced packages: %v", err)
		return
	}
	for _, pkg := range unsynced {
		e.relinkPackage(ctx, sc, pkg, result)
	}
}

func (e *Engine) relinkPackage(ctx context.Context, sc *siteContext, pkg *store.Package, result *Result) {
	ok, err := e.store.Packages().TransitionSyncStatus(ctx, pkg.ID, pkg.SyncStatus, store.SyncStatusSyncing)
	if err != nil {
		result.addErrorf("package %q: %v", pkg.Tag, err)
		return
	}
	if !ok {
		// Another worker holds the package; it will report its own outcome.
		return
	}

	external, err := sc.client.Packages.FindByLabel(ctx, pkg.Tag)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		if _, terr := e.store.Packages().TransitionSyncStatus(ctx, pkg.ID, store.SyncStatusSyncing, store.SyncStatusFailed); terr != nil {
			result.addErrorf("package %q: %v", pkg.Tag, terr)
		}
		e.audit(ctx, sc, store.SyncTypePackages, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "package", EntityID: pkg.ID.String(), Action: actionFailed},
			err.Error())
		result.addErrorf("querying external packages for %q: %v", pkg.Tag, err)
		return
	}
	if external == nil {
		if _, terr := e.store.Packages().TransitionSyncStatus(ctx, pkg.ID, store.SyncStatusSyncing, store.SyncStatusFailed); terr != nil {
			result.addErrorf("package %q: %v", pkg.Tag, terr)
		}
		result.addWarningf("package %q does not exist externally; re-submit it from its source batch", pkg.Tag)
		return
	}

	externalID := strconv.FormatInt(external.ID, 10)
	if err := e.store.Packages().SetExternalLink(ctx, pkg.ID, externalID); err != nil {
		result.addErrorf("linking package %q: %v", pkg.Tag, err)
		return
	}
	e.audit(ctx, sc, store.SyncTypePackages, store.DirectionInternalToExternal, store.OutcomeSuccess,
		auditDetail{Entity: "package", EntityID: pkg.ID.String(), Action: actionLinked, ExternalID: externalID},
		"")
	result.Updated++
}
