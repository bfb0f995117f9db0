package sync

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

func (env *testEnv) seedLinkedPackage(t *testing.T, tag string, quantity float64) *store.Package {
	t.Helper()
	p := env.seedPackage(t, tag, quantity)
	env.ledger.addPackage(tag)
	require.NoError(t, env.store.Packages().SetExternalLink(context.Background(), p.ID, "901"))
	linked, err := env.store.Packages().Get(context.Background(), p.ID)
	require.NoError(t, err)
	return linked
}

func (env *testEnv) labTestRequest(pkg *store.Package, passed bool) LabTestRequest {
	return LabTestRequest{
		PackageID: pkg.ID,
		ActorID:   env.actor,
		LabName:   "Summit Analytical",
		TestDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Results: []LabTestResultInput{
			{TestTypeName: "Pesticides", Quantity: 0.01, Passed: true},
			{TestTypeName: "Microbials", Quantity: 0.0, Passed: passed},
		},
	}
}

func TestCreateLabTestSubmitsAndResolvesPass(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)

	result := env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, true))
	require.True(t, result.Success, "errors: %v", result.Errors)
	require.Len(t, result.CreatedIDs, 1)
	assert.Equal(t, 1, env.ledger.calls("/labtests/v1/record"))

	p, err := env.store.Packages().Get(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TestStatusPassed, p.TestStatus)
}

func TestCreateLabTestFailingAnalyteFailsPackage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)

	result := env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, false))
	require.True(t, result.Success, "errors: %v", result.Errors)

	p, err := env.store.Packages().Get(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TestStatusFailed, p.TestStatus)
}

func TestCreateLabTestRequiresLinkedPackage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedPackage(t, "1A4FF0300000022000000001", 100)

	result := env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, true))
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not linked to the external ledger")
	assert.Equal(t, 0, env.ledger.calls("/labtests/v1/record"))
}

func TestCreateLabTestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*LabTestRequest)
		wantErr string
	}{
		{"missing_lab", func(r *LabTestRequest) { r.LabName = "" }, "lab facility name is required"},
		{"missing_date", func(r *LabTestRequest) { r.TestDate = time.Time{} }, "test date is required"},
		{"no_results", func(r *LabTestRequest) { r.Results = nil }, "at least one analyte result"},
		{
			"unnamed_result",
			func(r *LabTestRequest) { r.Results[1].TestTypeName = "" },
			"result 1 is missing a test type name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)

			req := env.labTestRequest(pkg, true)
			tt.mutate(&req)
			result := env.engine.CreateLabTest(context.Background(), req)
			assert.False(t, result.Success)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestCreateLabTestExternalFailureLeavesPackagePending(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)
	env.ledger.failWith("/labtests/v1/record", http.StatusInternalServerError)

	result := env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, true))
	assert.False(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "external submission failed")

	p, err := env.store.Packages().Get(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TestStatusPending, p.TestStatus)

	pending, err := env.store.LabTests().ListPending(context.Background(), env.site.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSyncLabTestsResolvesPendingFromExternalResults(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)
	env.ledger.failWith("/labtests/v1/record", http.StatusInternalServerError)
	require.False(t, env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, true)).Success)

	// The lab reported straight to the regulator; pull the recorded outcome.
	env.ledger.addLabTestRecord(pkg.Tag, false)
	result := env.engine.RunSync(context.Background(), Request{
		Type:           store.SyncTypeLabTests,
		SiteID:         env.site.ID,
		OrganizationID: env.orgID,
		ActorID:        env.actor,
	})
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Updated)

	pending, err := env.store.LabTests().ListPending(context.Background(), env.site.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	p, err := env.store.Packages().Get(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TestStatusFailed, p.TestStatus)
}

func TestLinkPackageToTestRejectsCrossSitePair(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)
	env.ledger.failWith("/labtests/v1/record", http.StatusInternalServerError)
	require.False(t, env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, true)).Success)
	env.ledger.clearFailure("/labtests/v1/record")

	tests, err := env.store.LabTests().ListPending(context.Background(), env.site.ID)
	require.NoError(t, err)
	require.Len(t, tests, 1)

	otherSite := &store.Site{
		ID: uuid.New(), OrganizationID: env.orgID, Name: "South Warehouse",
		LicenseNumber: "C11-0000999-LIC", VendorKey: "vk", UserKey: "uk",
		SyncEnabled: true,
	}
	env.store.AddSite(otherSite)
	stray := &store.Package{SiteID: otherSite.ID, Tag: "1A4FF0300000022000000777", Quantity: 1, UnitOfMeasure: "Grams"}
	require.NoError(t, env.store.Packages().Create(context.Background(), stray))

	result := env.engine.LinkPackageToTest(context.Background(), stray.ID, tests[0].ID, env.actor)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "different sites")
}

func TestLinkPackageToTestAdoptsExternalOutcome(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	pkg := env.seedLinkedPackage(t, "1A4FF0300000022000000001", 100)
	env.ledger.failWith("/labtests/v1/record", http.StatusInternalServerError)
	require.False(t, env.engine.CreateLabTest(context.Background(), env.labTestRequest(pkg, true)).Success)
	env.ledger.clearFailure("/labtests/v1/record")

	tests, err := env.store.LabTests().ListPending(context.Background(), env.site.ID)
	require.NoError(t, err)
	require.Len(t, tests, 1)

	env.ledger.addLabTestRecord(pkg.Tag, true)
	result := env.engine.LinkPackageToTest(context.Background(), pkg.ID, tests[0].ID, env.actor)
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Updated)

	resolved, err := env.store.LabTests().Get(context.Background(), tests[0].ID)
	require.NoError(t, err)
	assert.Equal(t, store.LabTestStatusPassed, resolved.Status)
	assert.NotNil(t, resolved.ExternalTestID)
}
