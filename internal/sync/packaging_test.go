package sync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
	"github.com/cultivarhq/trace-sync-server/internal/store/memory"
)

const testPackageTag = "1A4FF0300000022000000001"

func (env *testEnv) packageRequest() PackageRequest {
	return PackageRequest{
		Tag:           testPackageTag,
		Item:          "Clones - BD",
		PlantCount:    10,
		Quantity:      10,
		UnitOfMeasure: "Each",
		ActualDate:    time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreatePackageFromBatchConsumesPlants(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	batch := env.seedLinkedBatch(t, "BD-2026-03-A", 50)

	req := env.packageRequest()
	req.BatchID = batch.ID
	req.ActorID = env.actor
	result := env.engine.CreatePackageFromBatch(context.Background(), req)
	require.True(t, result.Success, "errors: %v", result.Errors)
	require.Len(t, result.CreatedIDs, 1)

	b, err := env.store.Batches().Get(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, b.AllocatedCount)

	pkg, err := env.store.Packages().GetByTag(context.Background(), env.site.ID, testPackageTag)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusSynced, pkg.SyncStatus)
	assert.NotNil(t, pkg.ExternalPackageID)
	require.NotNil(t, pkg.SourceBatchID)
	assert.Equal(t, batch.ID, *pkg.SourceBatchID)
}

func TestCreatePackageFromMotherLeavesPlantCountAlone(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	batch := env.seedLinkedBatch(t, "BD-2026-03-A", 50)

	req := env.packageRequest()
	req.BatchID = batch.ID
	req.ActorID = env.actor
	result := env.engine.CreatePackageFromMother(context.Background(), req)
	require.True(t, result.Success, "errors: %v", result.Errors)

	b, err := env.store.Batches().Get(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AllocatedCount, "mother plants stay in place")
	assert.Equal(t, 1, env.ledger.calls("/packages/v1/create"))
}

func TestCreatePackageValidationFailsBeforeAnyMutation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*PackageRequest)
		wantErr string
	}{
		{"missing_tag", func(r *PackageRequest) { r.Tag = "" }, "package tag is required"},
		{"missing_item", func(r *PackageRequest) { r.Item = "" }, "product item is required"},
		{"zero_plant_count", func(r *PackageRequest) { r.PlantCount = 0 }, "plant count must be positive"},
		{"negative_quantity", func(r *PackageRequest) { r.Quantity = -1 }, "quantity must be positive"},
		{"missing_unit", func(r *PackageRequest) { r.UnitOfMeasure = "" }, "unit of measure is required"},
		{"over_allocation", func(r *PackageRequest) { r.PlantCount = 51 }, "only 50 unallocated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			batch := env.seedLinkedBatch(t, "BD-2026-03-A", 50)

			req := env.packageRequest()
			req.BatchID = batch.ID
			req.ActorID = env.actor
			tt.mutate(&req)

			result := env.engine.CreatePackageFromBatch(context.Background(), req)
			assert.False(t, result.Success)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)

			// Nothing moved: no package row, no allocation, no external call.
			_, err := env.store.Packages().GetByTag(context.Background(), env.site.ID, testPackageTag)
			assert.ErrorIs(t, err, store.ErrNotFound)
			b, err := env.store.Batches().Get(context.Background(), batch.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, b.AllocatedCount)
			assert.Equal(t, 0, env.ledger.calls("/packages/v1/create"))
		})
	}
}

func TestCreatePackageRequiresLinkedBatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	batch := env.seedBatch(t, "BD-2026-03-A", 50)

	req := env.packageRequest()
	req.BatchID = batch.ID
	req.ActorID = env.actor
	result := env.engine.CreatePackageFromBatch(context.Background(), req)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "push the batch before packaging")
}

func TestCreatePackageRejectsDuplicateTag(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	batch := env.seedLinkedBatch(t, "BD-2026-03-A", 50)
	env.seedPackage(t, "1A4FF0300000022000000001", 10)

	req := env.packageRequest()
	req.BatchID = batch.ID
	req.ActorID = env.actor
	result := env.engine.CreatePackageFromBatch(context.Background(), req)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "already exists at this site")
}

func TestCreatePackageSurvivesExternalFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	batch := env.seedLinkedBatch(t, "BD-2026-03-A", 50)
	env.ledger.failWith("/packages/v1/active", http.StatusInternalServerError)
	env.ledger.failWith("/packages/v1/create", http.StatusInternalServerError)

	req := env.packageRequest()
	req.BatchID = batch.ID
	req.ActorID = env.actor
	result := env.engine.CreatePackageFromBatch(context.Background(), req)

	// The local package exists and the plants are consumed; the failed push
	// is reported, not rolled back.
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "created locally but the external push failed")

	pkg, err := env.store.Packages().GetByTag(context.Background(), env.site.ID, testPackageTag)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusFailed, pkg.SyncStatus)
	b, err := env.store.Batches().Get(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, b.AllocatedCount)
}

// allocRefusingStore simulates a concurrent packaging taking the remaining
// plants between the ceiling check and the allocation.
type allocRefusingStore struct {
	store.Store
}

func (s *allocRefusingStore) Batches() store.BatchStore {
	return &allocRefusingBatches{BatchStore: s.Store.Batches()}
}

type allocRefusingBatches struct {
	store.BatchStore
}

func (b *allocRefusingBatches) Allocate(context.Context, uuid.UUID, int) error {
	return store.ErrInsufficientInventory
}

func TestCreatePackageLostAllocationRaceIsReportedAsPartialState(t *testing.T) {
	t.Parallel()
	fl := newFakeLedger(t)
	st := memory.New()
	orgID := uuid.New()
	site := &store.Site{
		ID: uuid.New(), OrganizationID: orgID, Name: "North Greenhouse",
		LicenseNumber: "C11-0000123-LIC", VendorKey: "vk", UserKey: "uk",
		SyncEnabled: true, DefaultLocationName: "Veg Room A",
	}
	st.AddSite(site)
	engine := NewEngine(&allocRefusingStore{Store: st},
		WithClientFactory(func(creds ledger.Credentials) *ledger.Client {
			return ledger.New(creds, ledger.WithBaseURL(fl.srv.URL), ledger.WithMaxTries(1))
		}),
		WithLinkWait(300*time.Millisecond, 5*time.Millisecond))

	cultivar := &store.Cultivar{OrganizationID: orgID, Name: "BD Genetics", StrainType: "hybrid"}
	require.NoError(t, st.Cultivars().Create(context.Background(), cultivar))
	batch := &store.Batch{
		SiteID: site.ID, CultivarID: cultivar.ID, Name: "BD-2026-03-R",
		DomainType: "Clone", PlantCount: 50,
		PlantedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.Batches().Create(context.Background(), batch))
	fl.addPlantBatch(batch.Name)
	push := engine.PushBatch(context.Background(), PushBatchRequest{BatchID: batch.ID, ActorID: uuid.New()})
	require.True(t, push.Success, "linking batch: %v", push.Errors)

	req := PackageRequest{
		BatchID: batch.ID, ActorID: uuid.New(),
		Tag: testPackageTag, Item: "Clones - BD",
		PlantCount: 10, Quantity: 10, UnitOfMeasure: "Each",
		ActualDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
	}
	result := engine.CreatePackageFromBatch(context.Background(), req)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "created locally")
	assert.Contains(t, result.Errors[0], "concurrent packaging")

	// The partial state is real: the local package row exists and needs an
	// operator, so the error must say so instead of leaking a raw store
	// sentinel.
	pkg, err := st.Packages().GetByTag(context.Background(), site.ID, testPackageTag)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, *pkg.SourceBatchID)
}

func TestSyncPackagesRelinksFailedPackages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	batch := env.seedLinkedBatch(t, "BD-2026-03-A", 50)
	env.ledger.failWith("/packages/v1/active", http.StatusInternalServerError)

	req := env.packageRequest()
	req.BatchID = batch.ID
	req.ActorID = env.actor
	result := env.engine.CreatePackageFromBatch(context.Background(), req)
	require.False(t, result.Success)

	// The package turns out to exist externally after all; relink it.
	env.ledger.clearFailure("/packages/v1/active")
	env.ledger.addPackage(testPackageTag)
	result = env.engine.RunSync(context.Background(), Request{
		Type:           store.SyncTypePackages,
		SiteID:         env.site.ID,
		OrganizationID: env.orgID,
		ActorID:        env.actor,
	})
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Updated)

	pkg, err := env.store.Packages().GetByTag(context.Background(), env.site.ID, testPackageTag)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusSynced, pkg.SyncStatus)
}

func TestSyncPackagesWarnsWhenPackageMissingExternally(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedPackage(t, "1A4FF0300000022000000009", 5)

	result := env.engine.RunSync(context.Background(), Request{
		Type:           store.SyncTypePackages,
		SiteID:         env.site.ID,
		OrganizationID: env.orgID,
		ActorID:        env.actor,
	})
	require.True(t, result.Success, "errors: %v", result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "does not exist externally")

	p, err := env.store.Packages().Get(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusFailed, p.SyncStatus)
}
