package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared by all store implementations. Callers distinguish
// them with errors.Is.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict means a uniqueness or check constraint rejected the write.
	ErrConflict = errors.New("store: constraint violation")

	// ErrAlreadyLinked means an external id is already set and may not be
	// silently overwritten. Changing a link requires an explicit unlink.
	ErrAlreadyLinked = errors.New("store: external id already set")

	// ErrInsufficientInventory means a decrement or allocation would take a
	// quantity below zero.
	ErrInsufficientInventory = errors.New("store: insufficient inventory")

	// ErrImmutable means the row may no longer be modified, such as a
	// harvest that has already been packaged.
	ErrImmutable = errors.New("store: record is immutable")

	// ErrFractionalPlantCount means a plant-batch waste weight was not a
	// whole number of plants.
	ErrFractionalPlantCount = errors.New("store: plant batch waste requires a whole number of plants")
)

// PlantCountFromWeight converts a plant-batch waste weight into the plant
// count to decrement. Plant batches are counted in whole plants, so every
// implementation applies the same rule: fractional weights are rejected
// rather than rounded.
func PlantCountFromWeight(weight float64) (int, error) {
	n := int(weight)
	if float64(n) != weight {
		return 0, ErrFractionalPlantCount
	}
	return n, nil
}

// CultivarStore persists cultivar (strain) records.
type CultivarStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Cultivar, error)
	GetByName(ctx context.Context, orgID uuid.UUID, name string) (*Cultivar, error)
	Create(ctx context.Context, c *Cultivar) error
	ListUnsynced(ctx context.Context, orgID uuid.UUID) ([]*Cultivar, error)

	// TransitionSyncStatus performs a compare-and-swap on the stored sync
	// status. It returns false when the row is not currently in from,
	// meaning another caller won the race.
	TransitionSyncStatus(ctx context.Context, id uuid.UUID, from, to SyncStatus) (bool, error)

	// SetExternalLink records the external strain id and marks the cultivar
	// synced. Returns ErrAlreadyLinked if a different id is already set.
	SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error

	// ClearExternalLink explicitly unlinks the cultivar, resetting it to
	// not_synced.
	ClearExternalLink(ctx context.Context, id uuid.UUID) error
}

// BatchStore persists plant batches.
type BatchStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)
	Create(ctx context.Context, b *Batch) error
	ListUnsynced(ctx context.Context, siteID uuid.UUID) ([]*Batch, error)

	TransitionSyncStatus(ctx context.Context, id uuid.UUID, from, to SyncStatus) (bool, error)
	SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error
	ClearExternalLink(ctx context.Context, id uuid.UUID) error

	// Allocate reserves n plants from the batch for packaging or individual
	// plant creation. The guard allocated+n <= plant_count is applied in the
	// same statement; ErrInsufficientInventory is returned when it fails.
	Allocate(ctx context.Context, id uuid.UUID, n int) error

	// SetGrowthPhase advances the batch phase. Implementations reject
	// regressions with ErrConflict.
	SetGrowthPhase(ctx context.Context, id uuid.UUID, phase GrowthPhase) error

	// DecrementPlantCount reduces the live plant count, used by plant-batch
	// waste destruction.
	DecrementPlantCount(ctx context.Context, id uuid.UUID, n int) error
}

// HarvestStore persists harvests.
type HarvestStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Harvest, error)
	Create(ctx context.Context, h *Harvest) error
	ListUnmapped(ctx context.Context, siteID uuid.UUID) ([]*Harvest, error)

	// SetExternalLink attaches the external harvest id. Harvests that have
	// been packaged are immutable and return ErrImmutable.
	SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error
}

// PackageStore persists packages.
type PackageStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Package, error)
	GetByTag(ctx context.Context, siteID uuid.UUID, tag string) (*Package, error)
	Create(ctx context.Context, p *Package) error
	ListUnsynced(ctx context.Context, siteID uuid.UUID) ([]*Package, error)

	TransitionSyncStatus(ctx context.Context, id uuid.UUID, from, to SyncStatus) (bool, error)
	SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error

	// DecrementQuantity reduces package inventory, rejecting decrements
	// below zero with ErrInsufficientInventory. When the quantity reaches
	// zero the status moves to finished.
	DecrementQuantity(ctx context.Context, id uuid.UUID, amount float64) error

	// SetTestStatus updates the package's lab-test disposition.
	SetTestStatus(ctx context.Context, id uuid.UUID, status TestStatus) error
}

// LabTestStore persists certificate-of-analysis records.
type LabTestStore interface {
	Get(ctx context.Context, id uuid.UUID) (*LabTest, error)
	Create(ctx context.Context, t *LabTest) error
	ListPending(ctx context.Context, siteID uuid.UUID) ([]*LabTest, error)
	SetStatus(ctx context.Context, id uuid.UUID, status LabTestStatus) error
	SetExternalLink(ctx context.Context, id uuid.UUID, externalID string) error
}

// WasteStore persists destruction events.
type WasteStore interface {
	Get(ctx context.Context, id uuid.UUID) (*WasteLog, error)

	// CreateWithDecrement inserts the waste log row and applies the
	// inventory decrement to the source (batch plant count or package
	// quantity) in a single transaction. There is never a state where the
	// log exists without the decrement or vice versa.
	CreateWithDecrement(ctx context.Context, w *WasteLog) error

	// ListPending returns rows still awaiting their external destruction
	// transaction.
	ListPending(ctx context.Context, siteID uuid.UUID) ([]*WasteLog, error)

	// CompleteReconciliation attaches the external transaction id and marks
	// the row complete.
	CompleteReconciliation(ctx context.Context, id uuid.UUID, externalTxnID string) error

	// RecordReconcileFailure increments the attempt counter and, once
	// maxAttempts is reached, escalates the row to manual_review.
	RecordReconcileFailure(ctx context.Context, id uuid.UUID, maxAttempts int) error
}

// SyncLogStore is the append-only audit sink. There is deliberately no
// update or delete method.
type SyncLogStore interface {
	Append(ctx context.Context, e *SyncLogEntry) error
	List(ctx context.Context, filter SyncLogFilter) ([]*SyncLogEntry, error)
}

// SyncLogFilter narrows a sync log listing.
type SyncLogFilter struct {
	OrganizationID uuid.UUID
	SiteID         *uuid.UUID
	SyncType       *SyncType
	Status         *SyncOutcome
	Since          *time.Time
	Limit          int
}

// StrainCacheStore persists cached snapshots of external strains. Upsert is
// keyed on (siteID, externalStrainID) and is idempotent by construction, so
// concurrent refreshes need no locking.
type StrainCacheStore interface {
	Upsert(ctx context.Context, e *ExternalStrainCacheEntry) error
	GetByName(ctx context.Context, siteID uuid.UUID, name string) (*ExternalStrainCacheEntry, error)
	List(ctx context.Context, siteID uuid.UUID) ([]*ExternalStrainCacheEntry, error)
}

// SiteStore persists sites and their external ledger credentials.
type SiteStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Site, error)
	ListSyncEnabled(ctx context.Context, orgID uuid.UUID) ([]*Site, error)

	// SetSyncEnabled flips the per-site sync flag. The orchestrator turns it
	// off when the external ledger rejects the site's credentials.
	SetSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// RoomStore persists rooms.
type RoomStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Room, error)
}

// Store aggregates all persistence interfaces behind one dependency for the
// sync engine.
type Store interface {
	Cultivars() CultivarStore
	Batches() BatchStore
	Harvests() HarvestStore
	Packages() PackageStore
	LabTests() LabTestStore
	Waste() WasteStore
	SyncLog() SyncLogStore
	StrainCache() StrainCacheStore
	Sites() SiteStore
	Rooms() RoomStore
}
