// Package memory provides an in-memory Store implementation. It backs unit
// tests and the dev-mode server; the postgres package is the production
// implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// Store is an in-memory implementation of store.Store. All methods are safe
// for concurrent use; one mutex guards the whole dataset, which is fine at
// test scale.
type Store struct {
	mu sync.Mutex

	cultivars   map[uuid.UUID]*store.Cultivar
	batches     map[uuid.UUID]*store.Batch
	harvests    map[uuid.UUID]*store.Harvest
	packages    map[uuid.UUID]*store.Package
	labTests    map[uuid.UUID]*store.LabTest
	wasteLogs   map[uuid.UUID]*store.WasteLog
	syncLog     []*store.SyncLogEntry
	strainCache map[strainCacheKey]*store.ExternalStrainCacheEntry
	sites       map[uuid.UUID]*store.Site
	rooms       map[uuid.UUID]*store.Room
}

type strainCacheKey struct {
	siteID     uuid.UUID
	externalID string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		cultivars:   make(map[uuid.UUID]*store.Cultivar),
		batches:     make(map[uuid.UUID]*store.Batch),
		harvests:    make(map[uuid.UUID]*store.Harvest),
		packages:    make(map[uuid.UUID]*store.Package),
		labTests:    make(map[uuid.UUID]*store.LabTest),
		wasteLogs:   make(map[uuid.UUID]*store.WasteLog),
		strainCache: make(map[strainCacheKey]*store.ExternalStrainCacheEntry),
		sites:       make(map[uuid.UUID]*store.Site),
		rooms:       make(map[uuid.UUID]*store.Room),
	}
}

var _ store.Store = (*Store)(nil)

// Cultivars implements store.Store.
func (s *Store) Cultivars() store.CultivarStore { return (*cultivarStore)(s) }

// Batches implements store.Store.
func (s *Store) Batches() store.BatchStore { return (*batchStore)(s) }

// Harvests implements store.Store.
func (s *Store) Harvests() store.HarvestStore { return (*harvestStore)(s) }

// Packages implements store.Store.
func (s *Store) Packages() store.PackageStore { return (*packageStore)(s) }

// LabTests implements store.Store.
func (s *Store) LabTests() store.LabTestStore { return (*labTestStore)(s) }

// Waste implements store.Store.
func (s *Store) Waste() store.WasteStore { return (*wasteStore)(s) }

// SyncLog implements store.Store.
func (s *Store) SyncLog() store.SyncLogStore { return (*syncLogStore)(s) }

// StrainCache implements store.Store.
func (s *Store) StrainCache() store.StrainCacheStore { return (*strainCacheStore)(s) }

// Sites implements store.Store.
func (s *Store) Sites() store.SiteStore { return (*siteStore)(s) }

// Rooms implements store.Store.
func (s *Store) Rooms() store.RoomStore { return (*roomStore)(s) }

// Seed helpers used by tests and dev mode.

// AddSite inserts a site.
func (s *Store) AddSite(site *store.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *site
	s.sites[site.ID] = &cp
}

// AddRoom inserts a room.
func (s *Store) AddRoom(room *store.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
}

type cultivarStore Store

func (s *cultivarStore) Get(_ context.Context, id uuid.UUID) (*store.Cultivar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cultivars[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *cultivarStore) GetByName(_ context.Context, orgID uuid.UUID, name string) (*store.Cultivar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cultivars {
		if c.OrganizationID == orgID && c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *cultivarStore) Create(_ context.Context, c *store.Cultivar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cultivars {
		if existing.OrganizationID == c.OrganizationID && existing.Name == c.Name {
			return store.ErrConflict
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.SyncStatus == "" {
		c.SyncStatus = store.SyncStatusNotSynced
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	s.cultivars[c.ID] = &cp
	return nil
}

func (s *cultivarStore) ListUnsynced(_ context.Context, orgID uuid.UUID) ([]*store.Cultivar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Cultivar
	for _, c := range s.cultivars {
		if c.OrganizationID == orgID &&
			(c.SyncStatus == store.SyncStatusNotSynced || c.SyncStatus == store.SyncStatusFailed) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *cultivarStore) TransitionSyncStatus(_ context.Context, id uuid.UUID, from, to store.SyncStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cultivars[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if c.SyncStatus != from {
		return false, nil
	}
	c.SyncStatus = to
	c.UpdatedAt = time.Now()
	return true, nil
}

func (s *cultivarStore) SetExternalLink(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cultivars[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.ExternalStrainID != nil && *c.ExternalStrainID != externalID {
		return store.ErrAlreadyLinked
	}
	c.ExternalStrainID = &externalID
	c.SyncStatus = store.SyncStatusSynced
	c.UpdatedAt = time.Now()
	return nil
}

func (s *cultivarStore) ClearExternalLink(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cultivars[id]
	if !ok {
		return store.ErrNotFound
	}
	c.ExternalStrainID = nil
	c.SyncStatus = store.SyncStatusNotSynced
	c.UpdatedAt = time.Now()
	return nil
}

type batchStore Store

func (s *batchStore) Get(_ context.Context, id uuid.UUID) (*store.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *batchStore) Create(_ context.Context, b *store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.SyncStatus == "" {
		b.SyncStatus = store.SyncStatusNotSynced
	}
	if b.GrowthPhase == "" {
		b.GrowthPhase = store.GrowthPhasePropagation
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *batchStore) ListUnsynced(_ context.Context, siteID uuid.UUID) ([]*store.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Batch
	for _, b := range s.batches {
		if b.SiteID == siteID &&
			(b.SyncStatus == store.SyncStatusNotSynced || b.SyncStatus == store.SyncStatusFailed) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *batchStore) TransitionSyncStatus(_ context.Context, id uuid.UUID, from, to store.SyncStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if b.SyncStatus != from {
		return false, nil
	}
	b.SyncStatus = to
	b.UpdatedAt = time.Now()
	return true, nil
}

func (s *batchStore) SetExternalLink(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	if b.ExternalBatchID != nil && *b.ExternalBatchID != externalID {
		return store.ErrAlreadyLinked
	}
	b.ExternalBatchID = &externalID
	b.SyncStatus = store.SyncStatusSynced
	b.UpdatedAt = time.Now()
	return nil
}

func (s *batchStore) ClearExternalLink(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	b.ExternalBatchID = nil
	b.SyncStatus = store.SyncStatusNotSynced
	b.UpdatedAt = time.Now()
	return nil
}

func (s *batchStore) Allocate(_ context.Context, id uuid.UUID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	if n < 0 || b.AllocatedCount+n > b.PlantCount {
		return store.ErrInsufficientInventory
	}
	b.AllocatedCount += n
	b.UpdatedAt = time.Now()
	return nil
}

func (s *batchStore) SetGrowthPhase(_ context.Context, id uuid.UUID, phase store.GrowthPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	if !b.GrowthPhase.CanAdvanceTo(phase) {
		return store.ErrConflict
	}
	b.GrowthPhase = phase
	b.UpdatedAt = time.Now()
	return nil
}

func (s *batchStore) DecrementPlantCount(_ context.Context, id uuid.UUID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementPlantCountLocked(id, n)
}

// decrementPlantCountLocked requires s.mu to be held.
func (s *batchStore) decrementPlantCountLocked(id uuid.UUID, n int) error {
	b, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	if n < 0 || b.PlantCount-n < 0 || b.PlantCount-n < b.AllocatedCount {
		return store.ErrInsufficientInventory
	}
	b.PlantCount -= n
	b.UpdatedAt = time.Now()
	return nil
}

type harvestStore Store

func (s *harvestStore) Get(_ context.Context, id uuid.UUID) (*store.Harvest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.harvests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *harvestStore) Create(_ context.Context, h *store.Harvest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = time.Now()
	cp := *h
	s.harvests[h.ID] = &cp
	return nil
}

func (s *harvestStore) ListUnmapped(_ context.Context, siteID uuid.UUID) ([]*store.Harvest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Harvest
	for _, h := range s.harvests {
		if h.SiteID == siteID && h.ExternalHarvestID == nil {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *harvestStore) SetExternalLink(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.harvests[id]
	if !ok {
		return store.ErrNotFound
	}
	if h.Packaged {
		return store.ErrImmutable
	}
	if h.ExternalHarvestID != nil && *h.ExternalHarvestID != externalID {
		return store.ErrAlreadyLinked
	}
	h.ExternalHarvestID = &externalID
	return nil
}

type packageStore Store

func (s *packageStore) Get(_ context.Context, id uuid.UUID) (*store.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *packageStore) GetByTag(_ context.Context, siteID uuid.UUID, tag string) (*store.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packages {
		if p.SiteID == siteID && p.Tag == tag {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *packageStore) Create(_ context.Context, p *store.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.packages {
		if existing.SiteID == p.SiteID && existing.Tag == p.Tag {
			return store.ErrConflict
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = store.PackageStatusActive
	}
	if p.TestStatus == "" {
		p.TestStatus = store.TestStatusNotRequired
	}
	if p.SyncStatus == "" {
		p.SyncStatus = store.SyncStatusNotSynced
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.packages[p.ID] = &cp
	return nil
}

func (s *packageStore) ListUnsynced(_ context.Context, siteID uuid.UUID) ([]*store.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Package
	for _, p := range s.packages {
		if p.SiteID == siteID &&
			(p.SyncStatus == store.SyncStatusNotSynced || p.SyncStatus == store.SyncStatusFailed) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *packageStore) TransitionSyncStatus(_ context.Context, id uuid.UUID, from, to store.SyncStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.SyncStatus != from {
		return false, nil
	}
	p.SyncStatus = to
	p.UpdatedAt = time.Now()
	return true, nil
}

func (s *packageStore) SetExternalLink(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.ExternalPackageID != nil && *p.ExternalPackageID != externalID {
		return store.ErrAlreadyLinked
	}
	p.ExternalPackageID = &externalID
	p.SyncStatus = store.SyncStatusSynced
	p.UpdatedAt = time.Now()
	return nil
}

func (s *packageStore) DecrementQuantity(_ context.Context, id uuid.UUID, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementQuantityLocked(id, amount)
}

// decrementQuantityLocked requires s.mu to be held.
func (s *packageStore) decrementQuantityLocked(id uuid.UUID, amount float64) error {
	p, ok := s.packages[id]
	if !ok {
		return store.ErrNotFound
	}
	if amount < 0 || p.Quantity-amount < 0 {
		return store.ErrInsufficientInventory
	}
	p.Quantity -= amount
	if p.Quantity == 0 {
		p.Status = store.PackageStatusFinished
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (s *packageStore) SetTestStatus(_ context.Context, id uuid.UUID, status store.TestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return store.ErrNotFound
	}
	p.TestStatus = status
	p.UpdatedAt = time.Now()
	return nil
}

type labTestStore Store

func (s *labTestStore) Get(_ context.Context, id uuid.UUID) (*store.LabTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.labTests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *labTestStore) Create(_ context.Context, t *store.LabTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = store.LabTestStatusPending
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.labTests[t.ID] = &cp
	return nil
}

func (s *labTestStore) ListPending(_ context.Context, siteID uuid.UUID) ([]*store.LabTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.LabTest
	for _, t := range s.labTests {
		if t.SiteID == siteID && t.Status == store.LabTestStatusPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *labTestStore) SetStatus(_ context.Context, id uuid.UUID, status store.LabTestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.labTests[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (s *labTestStore) SetExternalLink(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.labTests[id]
	if !ok {
		return store.ErrNotFound
	}
	if t.ExternalTestID != nil && *t.ExternalTestID != externalID {
		return store.ErrAlreadyLinked
	}
	t.ExternalTestID = &externalID
	t.UpdatedAt = time.Now()
	return nil
}

type wasteStore Store

func (s *wasteStore) Get(_ context.Context, id uuid.UUID) (*store.WasteLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wasteLogs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *wasteStore) CreateWithDecrement(_ context.Context, w *store.WasteLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Apply the decrement first so a failed decrement leaves no log row.
	// Both mutations happen under the same lock, so no intermediate state
	// is observable.
	switch w.SourceType {
	case store.WasteSourcePlantBatch:
		n, err := store.PlantCountFromWeight(w.Weight)
		if err != nil {
			return err
		}
		if err := (*batchStore)(s).decrementPlantCountLocked(w.SourceID, n); err != nil {
			return err
		}
	case store.WasteSourcePackage:
		if err := (*packageStore)(s).decrementQuantityLocked(w.SourceID, w.Weight); err != nil {
			return err
		}
	default:
		return store.ErrConflict
	}

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.ReconcileStatus == "" {
		w.ReconcileStatus = store.WasteReconcilePending
	}
	w.CreatedAt = time.Now()
	cp := *w
	cp.Evidence = append([]string(nil), w.Evidence...)
	s.wasteLogs[w.ID] = &cp
	return nil
}

func (s *wasteStore) ListPending(_ context.Context, siteID uuid.UUID) ([]*store.WasteLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.WasteLog
	for _, w := range s.wasteLogs {
		if w.SiteID == siteID && w.ReconcileStatus == store.WasteReconcilePending {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *wasteStore) CompleteReconciliation(_ context.Context, id uuid.UUID, externalTxnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wasteLogs[id]
	if !ok {
		return store.ErrNotFound
	}
	if w.ExternalTransactionID != nil && *w.ExternalTransactionID != externalTxnID {
		return store.ErrAlreadyLinked
	}
	w.ExternalTransactionID = &externalTxnID
	w.ReconcileStatus = store.WasteReconcileComplete
	return nil
}

func (s *wasteStore) RecordReconcileFailure(_ context.Context, id uuid.UUID, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wasteLogs[id]
	if !ok {
		return store.ErrNotFound
	}
	w.ReconcileAttempts++
	if w.ReconcileAttempts >= maxAttempts {
		w.ReconcileStatus = store.WasteReconcileManualReview
	}
	return nil
}

type syncLogStore Store

func (s *syncLogStore) Append(_ context.Context, e *store.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	cp := *e
	cp.Detail = append([]byte(nil), e.Detail...)
	s.syncLog = append(s.syncLog, &cp)
	return nil
}

func (s *syncLogStore) List(_ context.Context, filter store.SyncLogFilter) ([]*store.SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.SyncLogEntry
	for _, e := range s.syncLog {
		if filter.OrganizationID != uuid.Nil && e.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.SiteID != nil && e.SiteID != *filter.SiteID {
			continue
		}
		if filter.SyncType != nil && e.SyncType != *filter.SyncType {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

type strainCacheStore Store

func (s *strainCacheStore) Upsert(_ context.Context, e *store.ExternalStrainCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.Attributes = append([]byte(nil), e.Attributes...)
	s.strainCache[strainCacheKey{siteID: e.SiteID, externalID: e.ExternalStrainID}] = &cp
	return nil
}

func (s *strainCacheStore) GetByName(_ context.Context, siteID uuid.UUID, name string) (*store.ExternalStrainCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.strainCache {
		if e.SiteID == siteID && e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *strainCacheStore) List(_ context.Context, siteID uuid.UUID) ([]*store.ExternalStrainCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.ExternalStrainCacheEntry
	for _, e := range s.strainCache {
		if e.SiteID == siteID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type siteStore Store

func (s *siteStore) Get(_ context.Context, id uuid.UUID) (*store.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *site
	return &cp, nil
}

func (s *siteStore) ListSyncEnabled(_ context.Context, orgID uuid.UUID) ([]*store.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Site
	for _, site := range s.sites {
		if site.OrganizationID == orgID && site.SyncEnabled {
			cp := *site
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *siteStore) SetSyncEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return store.ErrNotFound
	}
	site.SyncEnabled = enabled
	site.UpdatedAt = time.Now()
	return nil
}

type roomStore Store

func (s *roomStore) Get(_ context.Context, id uuid.UUID) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *room
	return &cp, nil
}
