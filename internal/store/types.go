// Package store defines the domain model and persistence interfaces for the
// traceability engine. Implementations live in the postgres and memory
// subpackages.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks an entity's relationship to the external regulatory
// ledger. It doubles as the concurrency mutex for create-or-link: only one
// caller may hold "syncing" at a time, enforced by compare-and-swap.
type SyncStatus string

const (
	// SyncStatusNotSynced means the entity has never been pushed externally.
	SyncStatusNotSynced SyncStatus = "not_synced"

	// SyncStatusSyncing means a push is currently in flight.
	SyncStatusSyncing SyncStatus = "syncing"

	// SyncStatusSynced means the entity is linked to an external record.
	SyncStatusSynced SyncStatus = "synced"

	// SyncStatusFailed means the last push attempt failed terminally.
	// The entity remains usable; not-synced is a valid steady state.
	SyncStatusFailed SyncStatus = "sync_failed"
)

// GrowthPhase is the cultivation phase of a batch. Phases only ever advance.
type GrowthPhase string

const (
	// GrowthPhasePropagation is the initial clone/seedling phase.
	GrowthPhasePropagation GrowthPhase = "Propagation"

	// GrowthPhaseVegetative is the vegetative growth phase.
	GrowthPhaseVegetative GrowthPhase = "Vegetative"

	// GrowthPhaseFlowering is the flowering phase.
	GrowthPhaseFlowering GrowthPhase = "Flowering"

	// GrowthPhaseHarvested is the terminal phase.
	GrowthPhaseHarvested GrowthPhase = "Harvested"
)

// phaseOrder maps each phase to its position in the lifecycle.
var phaseOrder = map[GrowthPhase]int{
	GrowthPhasePropagation: 0,
	GrowthPhaseVegetative:  1,
	GrowthPhaseFlowering:   2,
	GrowthPhaseHarvested:   3,
}

// Valid reports whether p is a known growth phase.
func (p GrowthPhase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// CanAdvanceTo reports whether a batch in phase p may transition to next.
// Regressions and unknown phases are rejected.
func (p GrowthPhase) CanAdvanceTo(next GrowthPhase) bool {
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// SyncType identifies which entity family a sync run covers.
type SyncType string

const (
	// SyncTypeStrains syncs cultivars and the external strain cache.
	SyncTypeStrains SyncType = "strains"

	// SyncTypeBatches syncs plant batches.
	SyncTypeBatches SyncType = "batches"

	// SyncTypeHarvests syncs harvest mappings.
	SyncTypeHarvests SyncType = "harvests"

	// SyncTypePackages syncs packages.
	SyncTypePackages SyncType = "packages"

	// SyncTypeLabTests syncs lab test records.
	SyncTypeLabTests SyncType = "labtests"

	// SyncTypeWaste reconciles pending waste destructions.
	SyncTypeWaste SyncType = "waste"

	// SyncTypeTransfers syncs transfer manifests.
	SyncTypeTransfers SyncType = "transfers"
)

// Valid reports whether t is a known sync type.
func (t SyncType) Valid() bool {
	switch t {
	case SyncTypeStrains, SyncTypeBatches, SyncTypeHarvests, SyncTypePackages,
		SyncTypeLabTests, SyncTypeWaste, SyncTypeTransfers:
		return true
	}
	return false
}

// SyncDirection records which system initiated the data flow for an audit row.
type SyncDirection string

const (
	// DirectionInternalToExternal is a push to the regulatory ledger.
	DirectionInternalToExternal SyncDirection = "internal_to_external"

	// DirectionExternalToInternal is a pull from the regulatory ledger.
	DirectionExternalToInternal SyncDirection = "external_to_internal"
)

// SyncOutcome is the terminal status of one sync attempt.
type SyncOutcome string

const (
	// OutcomeSuccess means the attempt completed without error.
	OutcomeSuccess SyncOutcome = "success"

	// OutcomeFailed means the attempt ended in a classified failure.
	OutcomeFailed SyncOutcome = "failed"
)

// Cultivar is an internal genetic/strain record.
type Cultivar struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	Name             string
	StrainType       string
	ExternalStrainID *string
	SyncStatus       SyncStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Batch is a cohort of plants under cultivation at one site.
type Batch struct {
	ID              uuid.UUID
	SiteID          uuid.UUID
	CultivarID      uuid.UUID
	Name            string
	DomainType      string
	PlantCount      int
	AllocatedCount  int
	GrowthPhase     GrowthPhase
	RoomID          *uuid.UUID
	ExternalBatchID *string
	SyncStatus      SyncStatus
	PlantedAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RemainingPlantCount is the number of plants not yet allocated to packages
// or individual plant pushes.
func (b *Batch) RemainingPlantCount() int {
	return b.PlantCount - b.AllocatedCount
}

// Harvest is the drying/curing output of a batch. Immutable once packaged.
type Harvest struct {
	ID                uuid.UUID
	SiteID            uuid.UUID
	BatchID           uuid.UUID
	Name              string
	WetWeight         float64
	DryWeight         float64
	PlantCount        int
	ExternalHarvestID *string
	Packaged          bool
	HarvestedAt       time.Time
	CreatedAt         time.Time
}

// PackageStatus is the inventory lifecycle status of a package.
type PackageStatus string

const (
	// PackageStatusActive means the package holds sellable inventory.
	PackageStatusActive PackageStatus = "active"

	// PackageStatusFinished means the package quantity reached zero.
	PackageStatusFinished PackageStatus = "finished"

	// PackageStatusDestroyed means the package was destroyed as waste.
	PackageStatusDestroyed PackageStatus = "destroyed"
)

// TestStatus is the lab-test disposition of a package or batch.
type TestStatus string

const (
	// TestStatusNotRequired means no test is linked.
	TestStatusNotRequired TestStatus = "not_required"

	// TestStatusPending means a linked test has not resolved yet.
	TestStatusPending TestStatus = "pending"

	// TestStatusPassed means the linked test passed.
	TestStatusPassed TestStatus = "passed"

	// TestStatusFailed means the linked test failed.
	TestStatusFailed TestStatus = "failed"
)

// Package is a physical, externally tagged unit of product. Quantity never
// increases after creation.
type Package struct {
	ID                uuid.UUID
	SiteID            uuid.UUID
	Tag               string
	Quantity          float64
	UnitOfMeasure     string
	SourceBatchID     *uuid.UUID
	SourceHarvestID   *uuid.UUID
	Status            PackageStatus
	TestStatus        TestStatus
	ExternalPackageID *string
	SyncStatus        SyncStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LabTestStatus is the state of a certificate-of-analysis record.
type LabTestStatus string

const (
	// LabTestStatusPending means results have been uploaded but not resolved.
	LabTestStatusPending LabTestStatus = "pending"

	// LabTestStatusPassed means the test passed.
	LabTestStatusPassed LabTestStatus = "passed"

	// LabTestStatusFailed means the test failed.
	LabTestStatusFailed LabTestStatus = "failed"

	// LabTestStatusRemediation means the product requires remediation.
	LabTestStatusRemediation LabTestStatus = "remediation"
)

// LabTest is a certificate-of-analysis record.
type LabTest struct {
	ID             uuid.UUID
	SiteID         uuid.UUID
	PackageID      uuid.UUID
	LabName        string
	TestDate       time.Time
	Results        json.RawMessage
	Status         LabTestStatus
	ExternalTestID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WasteSourceType identifies what kind of inventory a destruction drew from.
type WasteSourceType string

const (
	// WasteSourcePlantBatch destroys plants from a batch.
	WasteSourcePlantBatch WasteSourceType = "plant_batch"

	// WasteSourcePackage destroys product from a package.
	WasteSourcePackage WasteSourceType = "package"
)

// WasteReconcileStatus tracks whether the external destruction transaction
// has been recorded for a waste log row.
type WasteReconcileStatus string

const (
	// WasteReconcileComplete means the external transaction id is attached.
	WasteReconcileComplete WasteReconcileStatus = "complete"

	// WasteReconcilePending means the external push failed and the row is
	// queued for the reconciliation pass. The local inventory decrement is
	// never rolled back: the material is physically gone.
	WasteReconcilePending WasteReconcileStatus = "pending_external_sync"

	// WasteReconcileManualReview means reconciliation retries were exhausted
	// and an operator must resolve the row.
	WasteReconcileManualReview WasteReconcileStatus = "manual_review"
)

// WasteLog is one destruction event. Immutable apart from reconciliation
// fields.
type WasteLog struct {
	ID                    uuid.UUID
	SiteID                uuid.UUID
	SourceType            WasteSourceType
	SourceID              uuid.UUID
	Weight                float64
	Unit                  string
	Reason                string
	RenderingMethod       string
	DestructionDate       time.Time
	Witness               string
	Evidence              []string
	ExternalTransactionID *string
	ReconcileStatus       WasteReconcileStatus
	ReconcileAttempts     int
	CreatedAt             time.Time
}

// SyncLogEntry is one append-only audit record of a sync attempt. Rows are
// never updated or deleted; this log is the regulatory evidence trail.
type SyncLogEntry struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	SiteID         uuid.UUID
	SyncType       SyncType
	Direction      SyncDirection
	Status         SyncOutcome
	Detail         json.RawMessage
	ErrorMessage   string
	PerformedBy    uuid.UUID
	Timestamp      time.Time
}

// ExternalStrainCacheEntry is a locally cached snapshot of one external
// strain, refreshed by the periodic strain-list sync. Stale entries are
// tolerated and not purged automatically.
type ExternalStrainCacheEntry struct {
	SiteID           uuid.UUID
	ExternalStrainID string
	Name             string
	Attributes       json.RawMessage
	LastSyncedAt     time.Time
}

// Site holds per-site external ledger credentials and sync configuration.
type Site struct {
	ID                  uuid.UUID
	OrganizationID      uuid.UUID
	Name                string
	LicenseNumber       string
	VendorKey           string
	UserKey             string
	Sandbox             bool
	SyncEnabled         bool
	DefaultLocationName string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Room is a physical cultivation space within a site. A room may carry the
// name of the external facility location it maps to.
type Room struct {
	ID                   uuid.UUID
	SiteID               uuid.UUID
	Name                 string
	ExternalLocationName string
}
