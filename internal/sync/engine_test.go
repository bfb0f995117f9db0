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

// testEnv wires an engine to a memory store and a fake external ledger.
type testEnv struct {
	store  *memory.Store
	ledger *fakeLedger
	engine *Engine
	site   *store.Site
	orgID  uuid.UUID
	actor  uuid.UUID
}

func newTestEnv(t *testing.T, opts ...EngineOption) *testEnv {
	t.Helper()

	fl := newFakeLedger(t)
	st := memory.New()
	orgID := uuid.New()
	site := &store.Site{
		ID:                  uuid.New(),
		OrganizationID:      orgID,
		Name:                "North Greenhouse",
		LicenseNumber:       "C11-0000123-LIC",
		VendorKey:           "vendor-key",
		UserKey:             "user-key",
		Sandbox:             true,
		SyncEnabled:         true,
		DefaultLocationName: "Veg Room A",
	}
	st.AddSite(site)

	base := []EngineOption{
		WithClientFactory(func(creds ledger.Credentials) *ledger.Client {
			return ledger.New(creds,
				ledger.WithBaseURL(fl.srv.URL),
				ledger.WithMaxTries(1))
		}),
		WithLinkWait(300*time.Millisecond, 5*time.Millisecond),
	}
	return &testEnv{
		store:  st,
		ledger: fl,
		engine: NewEngine(st, append(base, opts...)...),
		site:   site,
		orgID:  orgID,
		actor:  uuid.New(),
	}
}

func (env *testEnv) seedCultivar(t *testing.T, name string) *store.Cultivar {
	t.Helper()
	c := &store.Cultivar{
		OrganizationID: env.orgID,
		Name:           name,
		StrainType:     "hybrid",
	}
	require.NoError(t, env.store.Cultivars().Create(context.Background(), c))
	return c
}

func (env *testEnv) seedBatch(t *testing.T, name string, plantCount int) *store.Batch {
	t.Helper()
	cultivar := env.seedCultivar(t, name+" Genetics")
	b := &store.Batch{
		SiteID:     env.site.ID,
		CultivarID: cultivar.ID,
		Name:       name,
		DomainType: "Clone",
		PlantCount: plantCount,
		PlantedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.store.Batches().Create(context.Background(), b))
	return b
}

// seedLinkedBatch seeds a batch that is already linked in the fake ledger.
func (env *testEnv) seedLinkedBatch(t *testing.T, name string, plantCount int) *store.Batch {
	t.Helper()
	b := env.seedBatch(t, name, plantCount)
	env.ledger.addPlantBatch(name)
	result := env.engine.PushBatch(context.Background(), PushBatchRequest{
		BatchID: b.ID, ActorID: env.actor,
	})
	require.True(t, result.Success, "linking seed batch: %v", result.Errors)

	linked, err := env.store.Batches().Get(context.Background(), b.ID)
	require.NoError(t, err)
	return linked
}

func (env *testEnv) seedPackage(t *testing.T, tag string, quantity float64) *store.Package {
	t.Helper()
	p := &store.Package{
		SiteID:        env.site.ID,
		Tag:           tag,
		Quantity:      quantity,
		UnitOfMeasure: "Grams",
	}
	require.NoError(t, env.store.Packages().Create(context.Background(), p))
	return p
}

func (env *testEnv) auditEntries(t *testing.T) []*store.SyncLogEntry {
	t.Helper()
	entries, err := env.store.SyncLog().List(context.Background(), store.SyncLogFilter{
		OrganizationID: env.orgID,
	})
	require.NoError(t, err)
	return entries
}

func TestSiteContextRejectsUnknownSite(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	result := env.engine.PushCultivar(context.Background(), uuid.New(), uuid.New(), env.actor)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unknown site")
}

func TestSiteContextRejectsSyncDisabledSite(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	cultivar := env.seedCultivar(t, "Blue Dream")
	require.NoError(t, env.store.Sites().SetSyncEnabled(context.Background(), env.site.ID, false))

	result := env.engine.PushCultivar(context.Background(), env.site.ID, cultivar.ID, env.actor)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "sync is disabled")
}

func TestSiteContextRejectsMissingCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	bare := &store.Site{
		ID:             uuid.New(),
		OrganizationID: env.orgID,
		Name:           "Unconfigured Site",
		SyncEnabled:    true,
	}
	env.store.AddSite(bare)
	cultivar := env.seedCultivar(t, "Gelato")

	result := env.engine.PushCultivar(context.Background(), bare.ID, cultivar.ID, env.actor)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "vendor key is required")
}

func TestAuthFailureDisablesSiteSync(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	cultivar := env.seedCultivar(t, "Blue Dream")
	env.ledger.failWith("/strains/v1/active", http.StatusUnauthorized)

	result := env.engine.PushCultivar(context.Background(), env.site.ID, cultivar.ID, env.actor)
	assert.False(t, result.Success)

	site, err := env.store.Sites().Get(context.Background(), env.site.ID)
	require.NoError(t, err)
	assert.False(t, site.SyncEnabled, "auth failure must disable sync for the site")

	// The cultivar is left in a restartable state, not stuck in syncing.
	c, err := env.store.Cultivars().Get(context.Background(), cultivar.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusFailed, c.SyncStatus)
}

func TestValidationFailureDoesNotDisableSiteSync(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	cultivar := env.seedCultivar(t, "Blue Dream")
	env.ledger.failWith("/strains/v1/active", http.StatusBadRequest)

	result := env.engine.PushCultivar(context.Background(), env.site.ID, cultivar.ID, env.actor)
	assert.False(t, result.Success)

	site, err := env.store.Sites().Get(context.Background(), env.site.ID)
	require.NoError(t, err)
	assert.True(t, site.SyncEnabled)
}

func TestEveryAttemptWritesOneAuditRow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	cultivar := env.seedCultivar(t, "Blue Dream")

	// Success, repeat (already linked), then a failure.
	env.engine.PushCultivar(context.Background(), env.site.ID, cultivar.ID, env.actor)
	env.engine.PushCultivar(context.Background(), env.site.ID, cultivar.ID, env.actor)

	other := env.seedCultivar(t, "Gelato")
	env.ledger.failWith("/strains/v1/active", http.StatusInternalServerError)
	env.engine.PushCultivar(context.Background(), env.site.ID, other.ID, env.actor)

	entries := env.auditEntries(t)
	require.Len(t, entries, 3)

	var failed int
	for _, e := range entries {
		assert.Equal(t, env.site.ID, e.SiteID)
		assert.Equal(t, store.SyncTypeStrains, e.SyncType)
		assert.Equal(t, env.actor, e.PerformedBy)
		if e.Status == store.OutcomeFailed {
			failed++
			assert.NotEmpty(t, e.ErrorMessage)
		}
	}
	assert.Equal(t, 1, failed)
}
