package sync

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// RunSync executes one sync pass for one site. It is the single entry point
// for triggered syncs: the request type selects the entity pass, at most one
// sync per (site, type) runs at a time, and every failure mode, panics
// included, is converted into a non-nil Result. A raw error never reaches
// the trigger.
func (e *Engine) RunSync(ctx context.Context, req Request) (result *Result) {
	result = newResult()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Sync pass panicked",
				"sync_type", req.Type, "site_id", req.SiteID,
				"panic", r, "stack", string(debug.Stack()))
			result.addErrorf("internal error during %s sync", req.Type)
			e.auditPanic(ctx, req, r)
		}
	}()

	if !req.Type.Valid() {
		result.addErrorf("%v", validationf("type", "unknown sync type %q", req.Type))
		return result
	}
	if !e.acquire(req.SiteID, req.Type) {
		result.addErrorf("%v", ErrSyncInProgress)
		return result
	}
	defer e.release(req.SiteID, req.Type)

	sc, err := e.siteContext(ctx, req.SiteID, req.ActorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	e.log.Info("Starting sync pass",
		"sync_type", req.Type, "site", sc.site.Name, "site_id", sc.site.ID)

	switch req.Type {
	case store.SyncTypeStrains:
		result.merge(e.syncStrains(ctx, sc, req.Options))
	case store.SyncTypeBatches:
		result.merge(e.syncBatches(ctx, sc, req.Options))
	case store.SyncTypeHarvests:
		e.syncHarvests(ctx, sc, result)
	case store.SyncTypePackages:
		e.syncPackages(ctx, sc, result)
	case store.SyncTypeLabTests:
		e.syncLabTests(ctx, sc, result)
	case store.SyncTypeWaste:
		result.merge(e.ReconcilePendingWaste(ctx, req.SiteID, req.ActorID))
	case store.SyncTypeTransfers:
		e.syncTransfers(ctx, sc, req.Options, result)
	}

	e.log.Info("Sync pass finished",
		"sync_type", req.Type, "site_id", sc.site.ID,
		"success", result.Success, "created", result.Created,
		"updated", result.Updated, "errors", len(result.Errors))
	return result
}

// RunAll fans a set of sync passes out across every sync-enabled site of an
// organization. Sites run concurrently; passes within a site run in order so
// that entity dependencies (strains before batches before packages) hold.
func (e *Engine) RunAll(ctx context.Context, orgID, actorID uuid.UUID, types []store.SyncType) map[uuid.UUID]*Result {
	results := make(map[uuid.UUID]*Result)

	sites, err := e.store.Sites().ListSyncEnabled(ctx, orgID)
	if err != nil {
		r := newResult()
		r.addErrorf("listing sync-enabled sites: %v", err)
		results[orgID] = r
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, site := range sites {
		g.Go(func() error {
			siteResult := newResult()
			for _, t := range types {
				siteResult.merge(e.RunSync(gctx, Request{
					Type:           t,
					SiteID:         site.ID,
					OrganizationID: orgID,
					ActorID:        actorID,
				}))
			}
			mu.Lock()
			results[site.ID] = siteResult
			mu.Unlock()
			return nil
		})
	}
	// Workers report through their Result, never an error.
	_ = g.Wait()

	return results
}

func (e *Engine) acquire(siteID uuid.UUID, t store.SyncType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := inflightKey{siteID: siteID, syncType: t}
	if _, running := e.inflight[key]; running {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(siteID uuid.UUID, t store.SyncType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, inflightKey{siteID: siteID, syncType: t})
}
