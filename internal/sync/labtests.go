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

// LabTestResultInput is one analyte row of a submitted certificate of
// analysis.
type LabTestResultInput struct {
	TestTypeName string  `json:"testTypeName"`
	Quantity     float64 `json:"quantity"`
	Passed       bool    `json:"passed"`
	Notes        string  `json:"notes,omitempty"`
}

// LabTestRequest creates a certificate-of-analysis record and submits it
// against a package.
type LabTestRequest struct {
	PackageID uuid.UUID
	ActorID   uuid.UUID
	LabName   string
	TestDate  time.Time
	Results   []LabTestResultInput
}

func (r *LabTestRequest) validate() error {
	if r.LabName == "" {
		return validationf("labName", "a lab facility name is required")
	}
	if r.TestDate.IsZero() {
		return validationf("testDate", "a test date is required")
	}
	if len(r.Results) == 0 {
		return validationf("results", "at least one analyte result is required")
	}
	for i, res := range r.Results {
		if res.TestTypeName == "" {
			return validationf("results", "result %d is missing a test type name", i)
		}
	}
	return nil
}

// overallStatus folds the analyte rows into a single disposition.
func (r *LabTestRequest) overallStatus() store.LabTestStatus {
	for _, res := range r.Results {
		if !res.Passed {
			return store.LabTestStatusFailed
		}
	}
	return store.LabTestStatusPassed
}

// CreateLabTest records a certificate of analysis locally and submits it to
// the external ledger against the package's tag. The package's test
// disposition follows the resolved overall result; while the external
// submission is outstanding the package stays pending.
func (e *Engine) CreateLabTest(ctx context.Context, req LabTestRequest) *Result {
	result := newResult()

	if err := req.validate(); err != nil {
		result.addErrorf("%v", err)
		return result
	}

	pkg, err := e.store.Packages().Get(ctx, req.PackageID)
	if err != nil {
		result.addErrorf("unknown package %s", req.PackageID)
		return result
	}
	sc, err := e.siteContext(ctx, pkg.SiteID, req.ActorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}
	if pkg.ExternalPackageID == nil {
		result.addErrorf("%v", invariantf(
			"package %q is not linked to the external ledger; lab tests can only be recorded against linked packages", pkg.Tag))
		return result
	}

	rawResults, err := json.Marshal(req.Results)
	if err != nil {
		result.addErrorf("encoding analyte results: %v", err)
		return result
	}
	test := &store.LabTest{
		SiteID:    pkg.SiteID,
		PackageID: pkg.ID,
		LabName:   req.LabName,
		TestDate:  req.TestDate,
		Results:   rawResults,
		Status:    store.LabTestStatusPending,
	}
	if err := e.store.LabTests().Create(ctx, test); err != nil {
		result.addErrorf("recording lab test: %v", err)
		return result
	}
	result.addCreated(test.ID.String())

	if err := e.store.Packages().SetTestStatus(ctx, pkg.ID, store.TestStatusPending); err != nil {
		result.addErrorf("marking package test status pending: %v", err)
		return result
	}

	ledgerResults := make([]ledger.LabTestResult, 0, len(req.Results))
	for _, res := range req.Results {
		ledgerResults = append(ledgerResults, ledger.LabTestResult{
			TestTypeName: res.TestTypeName,
			Quantity:     res.Quantity,
			Passed:       res.Passed,
			Notes:        res.Notes,
		})
	}
	err = sc.client.LabTests.Record(ctx, ledger.LabTestCreateRequest{
		Label:       pkg.Tag,
		ResultDate:  ledger.FormatDate(req.TestDate),
		LabFacility: req.LabName,
		Results:     ledgerResults,
	})
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeLabTests, store.DirectionInternalToExternal, store.OutcomeFailed,
			auditDetail{Entity: "lab_test", EntityID: test.ID.String(), Action: actionFailed},
			err.Error())
		result.Success = false
		result.addWarningf("lab test recorded locally but the external submission failed: %v", err)
		return result
	}

	status := req.overallStatus()
	if err := e.store.LabTests().SetStatus(ctx, test.ID, status); err != nil {
		result.addErrorf("resolving lab test status: %v", err)
		return result
	}
	pkgStatus := store.TestStatusPassed
	if status == store.LabTestStatusFailed {
		pkgStatus = store.TestStatusFailed
	}
	if err := e.store.Packages().SetTestStatus(ctx, pkg.ID, pkgStatus); err != nil {
		result.addErrorf("updating package test disposition: %v", err)
		return result
	}

	e.audit(ctx, sc, store.SyncTypeLabTests, store.DirectionInternalToExternal, store.OutcomeSuccess,
		auditDetail{Entity: "lab_test", EntityID: test.ID.String(), Action: actionCreated},
		"")
	return result
}

// LinkPackageToTest pulls the external lab test records for a package's tag
// and resolves the local test and package dispositions from the external
// outcome. This is the external_to_internal half of lab test sync, used when
// the lab submits results directly to the regulator.
func (e *Engine) LinkPackageToTest(ctx context.Context, packageID, testID, actorID uuid.UUID) *Result {
	result := newResult()

	pkg, err := e.store.Packages().Get(ctx, packageID)
	if err != nil {
		result.addErrorf("unknown package %s", packageID)
		return result
	}
	test, err := e.store.LabTests().Get(ctx, testID)
	if err != nil {
		result.addErrorf("unknown lab test %s", testID)
		return result
	}
	if pkg.SiteID != test.SiteID {
		result.addErrorf("%v", invariantf("package and lab test belong to different sites"))
		return result
	}
	sc, err := e.siteContext(ctx, pkg.SiteID, actorID)
	if err != nil {
		result.addErrorf("%v", err)
		return result
	}

	e.resolveTestFromExternal(ctx, sc, pkg, test, result)
	return result
}

// syncLabTests resolves every pending certificate of analysis from the
// external ledger's recorded results.
func (e *Engine) syncLabTests(ctx context.Context, sc *siteContext, result *Result) {
	pending, err := e.store.LabTests().ListPending(ctx, sc.site.ID)
	if err != nil {
		result.addErrorf("listing pending lab tests: %v", err)
		return
	}
	for _, test := range pending {
		pkg, err := e.store.Packages().Get(ctx, test.PackageID)
		if err != nil {
			result.addWarningf("lab test %s references unknown package %s", test.ID, test.PackageID)
			continue
		}
		e.resolveTestFromExternal(ctx, sc, pkg, test, result)
	}
}

// resolveTestFromExternal pulls the external lab test records for the
// package's tag and drives the local test and package dispositions from the
// external outcome.
func (e *Engine) resolveTestFromExternal(
	ctx context.Context,
	sc *siteContext,
	pkg *store.Package,
	test *store.LabTest,
	result *Result,
) {
	records, err := sc.client.LabTests.ListByPackage(ctx, pkg.Tag)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeLabTests, store.DirectionExternalToInternal, store.OutcomeFailed,
			auditDetail{Entity: "lab_test", EntityID: test.ID.String(), Action: actionFailed},
			err.Error())
		result.addErrorf("querying external lab tests for %q: %v", pkg.Tag, err)
		return
	}
	if len(records) == 0 {
		result.addWarningf("no external lab test records exist yet for package %q", pkg.Tag)
		return
	}

	// The external ledger reports one overall disposition per record; any
	// failing record fails the package.
	passed := true
	var externalID string
	for _, rec := range records {
		if !rec.OverallPassed {
			passed = false
		}
		externalID = strconv.FormatInt(rec.ID, 10)
	}

	status := store.LabTestStatusPassed
	pkgStatus := store.TestStatusPassed
	if !passed {
		status = store.LabTestStatusFailed
		pkgStatus = store.TestStatusFailed
	}
	if err := e.store.LabTests().SetExternalLink(ctx, test.ID, externalID); err != nil {
		result.addErrorf("linking lab test: %v", err)
		return
	}
	if err := e.store.LabTests().SetStatus(ctx, test.ID, status); err != nil {
		result.addErrorf("resolving lab test status: %v", err)
		return
	}
	if err := e.store.Packages().SetTestStatus(ctx, pkg.ID, pkgStatus); err != nil {
		result.addErrorf("updating package test disposition: %v", err)
		return
	}

	e.audit(ctx, sc, store.SyncTypeLabTests, store.DirectionExternalToInternal, store.OutcomeSuccess,
		auditDetail{Entity: "lab_test", EntityID: test.ID.String(), Action: actionLinked, ExternalID: externalID},
		"")
	result.Updated++
	return
}
