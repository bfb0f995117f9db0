package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

func seedCultivar(t *testing.T, st *Store, orgID uuid.UUID, name string) *store.Cultivar {
	t.Helper()
	c := &store.Cultivar{OrganizationID: orgID, Name: name, StrainType: "hybrid"}
	require.NoError(t, st.Cultivars().Create(context.Background(), c))
	return c
}

func seedBatch(t *testing.T, st *Store, siteID uuid.UUID, name string, count int) *store.Batch {
	t.Helper()
	b := &store.Batch{
		SiteID:     siteID,
		CultivarID: uuid.New(),
		Name:       name,
		DomainType: "Clone",
		PlantCount: count,
		PlantedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.Batches().Create(context.Background(), b))
	return b
}

func seedPackage(t *testing.T, st *Store, siteID uuid.UUID, tag string, qty float64) *store.Package {
	t.Helper()
	p := &store.Package{SiteID: siteID, Tag: tag, Quantity: qty, UnitOfMeasure: "Grams"}
	require.NoError(t, st.Packages().Create(context.Background(), p))
	return p
}

func TestCultivarCreateDefaultsAndDuplicateName(t *testing.T) {
	t.Parallel()
	st := New()
	orgID := uuid.New()

	c := seedCultivar(t, st, orgID, "Blue Dream")
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, store.SyncStatusNotSynced, c.SyncStatus)

	dup := &store.Cultivar{OrganizationID: orgID, Name: "Blue Dream"}
	assert.ErrorIs(t, st.Cultivars().Create(context.Background(), dup), store.ErrConflict)

	// The same name under another organization is fine.
	other := &store.Cultivar{OrganizationID: uuid.New(), Name: "Blue Dream"}
	assert.NoError(t, st.Cultivars().Create(context.Background(), other))
}

func TestCultivarTransitionSyncStatusIsCompareAndSwap(t *testing.T) {
	t.Parallel()
	st := New()
	c := seedCultivar(t, st, uuid.New(), "Blue Dream")
	ctx := context.Background()

	ok, err := st.Cultivars().TransitionSyncStatus(ctx, c.ID, store.SyncStatusNotSynced, store.SyncStatusSyncing)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second caller loses the race: "from" no longer matches.
	ok, err = st.Cultivars().TransitionSyncStatus(ctx, c.ID, store.SyncStatusNotSynced, store.SyncStatusSyncing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.Cultivars().TransitionSyncStatus(ctx, uuid.New(), store.SyncStatusNotSynced, store.SyncStatusSyncing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCultivarExternalLinkIsSticky(t *testing.T) {
	t.Parallel()
	st := New()
	c := seedCultivar(t, st, uuid.New(), "Blue Dream")
	ctx := context.Background()

	require.NoError(t, st.Cultivars().SetExternalLink(ctx, c.ID, "42"))
	got, err := st.Cultivars().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusSynced, got.SyncStatus)

	// Relinking to the same id is idempotent; a different id is refused.
	assert.NoError(t, st.Cultivars().SetExternalLink(ctx, c.ID, "42"))
	assert.ErrorIs(t, st.Cultivars().SetExternalLink(ctx, c.ID, "43"), store.ErrAlreadyLinked)

	require.NoError(t, st.Cultivars().ClearExternalLink(ctx, c.ID))
	got, err = st.Cultivars().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ExternalStrainID)
	assert.Equal(t, store.SyncStatusNotSynced, got.SyncStatus)
}

func TestBatchCreateDefaultsToPropagation(t *testing.T) {
	t.Parallel()
	st := New()
	b := seedBatch(t, st, uuid.New(), "BD-2026-03-A", 50)
	assert.Equal(t, store.GrowthPhasePropagation, b.GrowthPhase)
	assert.Equal(t, store.SyncStatusNotSynced, b.SyncStatus)
}

func TestBatchAllocateEnforcesCeiling(t *testing.T) {
	t.Parallel()
	st := New()
	b := seedBatch(t, st, uuid.New(), "BD-2026-03-A", 50)
	ctx := context.Background()

	require.NoError(t, st.Batches().Allocate(ctx, b.ID, 30))
	require.NoError(t, st.Batches().Allocate(ctx, b.ID, 20))
	assert.ErrorIs(t, st.Batches().Allocate(ctx, b.ID, 1), store.ErrInsufficientInventory)
	assert.ErrorIs(t, st.Batches().Allocate(ctx, b.ID, -5), store.ErrInsufficientInventory)

	got, err := st.Batches().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingPlantCount())
}

func TestBatchDecrementPlantCountRespectsAllocation(t *testing.T) {
	t.Parallel()
	st := New()
	b := seedBatch(t, st, uuid.New(), "BD-2026-03-A", 50)
	ctx := context.Background()

	require.NoError(t, st.Batches().Allocate(ctx, b.ID, 40))

	// Destroying 20 would leave fewer plants than are already allocated.
	assert.ErrorIs(t, st.Batches().DecrementPlantCount(ctx, b.ID, 20), store.ErrInsufficientInventory)
	require.NoError(t, st.Batches().DecrementPlantCount(ctx, b.ID, 10))

	got, err := st.Batches().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.PlantCount)
}

func TestPackageDecrementQuantityFinishesAtZero(t *testing.T) {
	t.Parallel()
	st := New()
	siteID := uuid.New()
	p := seedPackage(t, st, siteID, "1A4FF0300000022000000001", 100)
	ctx := context.Background()

	require.NoError(t, st.Packages().DecrementQuantity(ctx, p.ID, 60))
	got, err := st.Packages().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.Quantity)
	assert.Equal(t, store.PackageStatusActive, got.Status)

	assert.ErrorIs(t, st.Packages().DecrementQuantity(ctx, p.ID, 41), store.ErrInsufficientInventory)

	require.NoError(t, st.Packages().DecrementQuantity(ctx, p.ID, 40))
	got, err = st.Packages().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Quantity)
	assert.Equal(t, store.PackageStatusFinished, got.Status)
}

func TestWasteCreateWithDecrementIsAtomic(t *testing.T) {
	t.Parallel()
	st := New()
	siteID := uuid.New()
	p := seedPackage(t, st, siteID, "1A4FF0300000022000000001", 100)
	ctx := context.Background()

	overdraw := &store.WasteLog{
		SiteID:     siteID,
		SourceType: store.WasteSourcePackage,
		SourceID:   p.ID,
		Weight:     150,
		Unit:       "Grams",
	}
	assert.ErrorIs(t, st.Waste().CreateWithDecrement(ctx, overdraw), store.ErrInsufficientInventory)

	// A failed decrement must leave no log row behind.
	pending, err := st.Waste().ListPending(ctx, siteID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	ok := &store.WasteLog{
		SiteID:     siteID,
		SourceType: store.WasteSourcePackage,
		SourceID:   p.ID,
		Weight:     40,
		Unit:       "Grams",
	}
	require.NoError(t, st.Waste().CreateWithDecrement(ctx, ok))

	got, err := st.Packages().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.Quantity)
	pending, err = st.Waste().ListPending(ctx, siteID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.WasteReconcilePending, pending[0].ReconcileStatus)
}

func TestWasteCreateWithDecrementRejectsFractionalPlantCount(t *testing.T) {
	t.Parallel()
	st := New()
	siteID := uuid.New()
	b := seedBatch(t, st, siteID, "Blue Dream 2026-05", 10)
	ctx := context.Background()

	fractional := &store.WasteLog{
		SiteID:     siteID,
		SourceType: store.WasteSourcePlantBatch,
		SourceID:   b.ID,
		Weight:     0.9,
		Unit:       "Plants",
	}
	assert.ErrorIs(t, st.Waste().CreateWithDecrement(ctx, fractional), store.ErrFractionalPlantCount)

	// Rejected weights leave neither a log row nor a decrement behind.
	got, err := st.Batches().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.PlantCount)
	pending, err := st.Waste().ListPending(ctx, siteID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	whole := &store.WasteLog{
		SiteID:     siteID,
		SourceType: store.WasteSourcePlantBatch,
		SourceID:   b.ID,
		Weight:     3,
		Unit:       "Plants",
	}
	require.NoError(t, st.Waste().CreateWithDecrement(ctx, whole))
	got, err = st.Batches().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.PlantCount)
}

func TestHarvestLinkRefusedOncePackaged(t *testing.T) {
	t.Parallel()
	st := New()
	ctx := context.Background()
	h := &store.Harvest{
		SiteID:   uuid.New(),
		BatchID:  uuid.New(),
		Name:     "BD-2026-07-H1",
		Packaged: true,
	}
	require.NoError(t, st.Harvests().Create(ctx, h))

	assert.ErrorIs(t, st.Harvests().SetExternalLink(ctx, h.ID, "7"), store.ErrImmutable)
}

func TestSyncLogListFilters(t *testing.T) {
	t.Parallel()
	st := New()
	ctx := context.Background()
	orgID := uuid.New()
	siteA := uuid.New()
	siteB := uuid.New()

	appendEntry := func(siteID uuid.UUID, syncType store.SyncType, status store.SyncOutcome, ts time.Time) {
		require.NoError(t, st.SyncLog().Append(ctx, &store.SyncLogEntry{
			OrganizationID: orgID,
			SiteID:         siteID,
			SyncType:       syncType,
			Direction:      store.DirectionInternalToExternal,
			Status:         status,
			Timestamp:      ts,
		}))
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	appendEntry(siteA, store.SyncTypeStrains, store.OutcomeSuccess, base)
	appendEntry(siteA, store.SyncTypeBatches, store.OutcomeFailed, base.Add(time.Hour))
	appendEntry(siteB, store.SyncTypeStrains, store.OutcomeSuccess, base.Add(2*time.Hour))

	all, err := st.SyncLog().List(ctx, store.SyncLogFilter{OrganizationID: orgID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bySite, err := st.SyncLog().List(ctx, store.SyncLogFilter{OrganizationID: orgID, SiteID: &siteA})
	require.NoError(t, err)
	assert.Len(t, bySite, 2)

	failed := store.OutcomeFailed
	byStatus, err := st.SyncLog().List(ctx, store.SyncLogFilter{OrganizationID: orgID, Status: &failed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, store.SyncTypeBatches, byStatus[0].SyncType)

	since := base.Add(90 * time.Minute)
	recent, err := st.SyncLog().List(ctx, store.SyncLogFilter{OrganizationID: orgID, Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, siteB, recent[0].SiteID)

	limited, err := st.SyncLog().List(ctx, store.SyncLogFilter{OrganizationID: orgID, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	otherOrg, err := st.SyncLog().List(ctx, store.SyncLogFilter{OrganizationID: uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, otherOrg)
}

func TestStrainCacheUpsertAndLookup(t *testing.T) {
	t.Parallel()
	st := New()
	ctx := context.Background()
	siteID := uuid.New()

	entry := &store.ExternalStrainCacheEntry{
		SiteID:           siteID,
		ExternalStrainID: "42",
		Name:             "Blue Dream",
	}
	require.NoError(t, st.StrainCache().Upsert(ctx, entry))

	// Upserting the same external id replaces the row instead of duplicating.
	entry.Name = "Blue Dream #2"
	require.NoError(t, st.StrainCache().Upsert(ctx, entry))

	all, err := st.StrainCache().List(ctx, siteID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Blue Dream #2", all[0].Name)

	got, err := st.StrainCache().GetByName(ctx, siteID, "Blue Dream #2")
	require.NoError(t, err)
	assert.Equal(t, "42", got.ExternalStrainID)

	_, err = st.StrainCache().GetByName(ctx, siteID, "Sour Diesel")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSiteSetSyncEnabled(t *testing.T) {
	t.Parallel()
	st := New()
	ctx := context.Background()
	orgID := uuid.New()
	site := &store.Site{ID: uuid.New(), OrganizationID: orgID, Name: "North", SyncEnabled: true}
	st.AddSite(site)

	enabled, err := st.Sites().ListSyncEnabled(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	require.NoError(t, st.Sites().SetSyncEnabled(ctx, site.ID, false))
	enabled, err = st.Sites().ListSyncEnabled(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	assert.ErrorIs(t, st.Sites().SetSyncEnabled(ctx, uuid.New(), true), store.ErrNotFound)
}
