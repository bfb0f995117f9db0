// Package v0 provides the REST API handlers for the trace sync engine.
package v0

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/store"
	"github.com/cultivarhq/trace-sync-server/internal/sync"
	"github.com/cultivarhq/trace-sync-server/internal/versions"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	engine *sync.Engine
	store  store.Store
}

// NewRoutes creates a new Routes instance with the provided engine and store
func NewRoutes(engine *sync.Engine, st store.Store) *Routes {
	return &Routes{
		engine: engine,
		store:  st,
	}
}

// Router creates a new router for the sync API
func Router(engine *sync.Engine, st store.Store) http.Handler {
	routes := NewRoutes(engine, st)

	r := chi.NewRouter()

	r.Post("/sync", routes.runAll)
	r.Post("/sync/{type}", routes.runSync)

	r.Post("/cultivars/{cultivarID}/push", routes.pushCultivar)

	r.Post("/batches/{batchID}/push", routes.pushBatch)
	r.Post("/batches/{batchID}/growth-phase", routes.changeGrowthPhase)
	r.Post("/batches/{batchID}/packages", routes.createPackageFromBatch)
	r.Post("/batches/{batchID}/mother-packages", routes.createPackageFromMother)
	r.Post("/batches/{batchID}/waste", routes.destroyBatchWaste)

	r.Post("/harvests/{harvestID}/map", routes.mapHarvest)

	r.Post("/packages/{packageID}/waste", routes.destroyPackageWaste)
	r.Post("/packages/{packageID}/lab-tests/{testID}/link", routes.linkPackageToTest)

	r.Post("/lab-tests", routes.createLabTest)
	r.Post("/waste/reconcile", routes.reconcileWaste)

	r.Get("/sync-log", routes.listSyncLog)

	return r
}

type syncRequestBody struct {
	SiteID         uuid.UUID `json:"siteId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	ActorID        uuid.UUID `json:"actorId"`
}

// runSync handles POST /api/v0/sync/{type}
func (rr *Routes) runSync(w http.ResponseWriter, r *http.Request) {
	var body syncRequestBody
	if !rr.decode(w, r, &body) {
		return
	}
	result := rr.engine.RunSync(r.Context(), sync.Request{
		Type:           store.SyncType(chi.URLParam(r, "type")),
		SiteID:         body.SiteID,
		OrganizationID: body.OrganizationID,
		ActorID:        body.ActorID,
	})
	rr.writeResult(w, result)
}

type runAllBody struct {
	OrganizationID uuid.UUID        `json:"organizationId"`
	ActorID        uuid.UUID        `json:"actorId"`
	Types          []store.SyncType `json:"types"`
}

// runAll handles POST /api/v0/sync
func (rr *Routes) runAll(w http.ResponseWriter, r *http.Request) {
	var body runAllBody
	if !rr.decode(w, r, &body) {
		return
	}
	if len(body.Types) == 0 {
		body.Types = []store.SyncType{
			store.SyncTypeStrains, store.SyncTypeBatches, store.SyncTypeHarvests,
			store.SyncTypePackages, store.SyncTypeLabTests, store.SyncTypeWaste,
			store.SyncTypeTransfers,
		}
	}
	results := rr.engine.RunAll(r.Context(), body.OrganizationID, body.ActorID, body.Types)
	rr.writeJSONResponse(w, results)
}

type pushCultivarBody struct {
	SiteID  uuid.UUID `json:"siteId"`
	ActorID uuid.UUID `json:"actorId"`
}

// pushCultivar handles POST /api/v0/cultivars/{cultivarID}/push
func (rr *Routes) pushCultivar(w http.ResponseWriter, r *http.Request) {
	cultivarID, ok := rr.uuidParam(w, r, "cultivarID")
	if !ok {
		return
	}
	var body pushCultivarBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.PushCultivar(r.Context(), body.SiteID, cultivarID, body.ActorID))
}

type pushBatchBody struct {
	ActorID          uuid.UUID `json:"actorId"`
	LocationOverride string    `json:"locationOverride,omitempty"`
}

// pushBatch handles POST /api/v0/batches/{batchID}/push
func (rr *Routes) pushBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := rr.uuidParam(w, r, "batchID")
	if !ok {
		return
	}
	var body pushBatchBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.PushBatch(r.Context(), sync.PushBatchRequest{
		BatchID:          batchID,
		ActorID:          body.ActorID,
		LocationOverride: body.LocationOverride,
	}))
}

type growthPhaseBody struct {
	ActorID          uuid.UUID         `json:"actorId"`
	NewPhase         store.GrowthPhase `json:"newPhase"`
	PlantCount       int               `json:"plantCount,omitempty"`
	StartingTag      string            `json:"startingTag,omitempty"`
	GrowthDate       time.Time         `json:"growthDate"`
	LocationOverride string            `json:"locationOverride,omitempty"`
}

// changeGrowthPhase handles POST /api/v0/batches/{batchID}/growth-phase
func (rr *Routes) changeGrowthPhase(w http.ResponseWriter, r *http.Request) {
	batchID, ok := rr.uuidParam(w, r, "batchID")
	if !ok {
		return
	}
	var body growthPhaseBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.ChangeGrowthPhase(r.Context(), sync.GrowthPhaseRequest{
		BatchID:          batchID,
		ActorID:          body.ActorID,
		NewPhase:         body.NewPhase,
		PlantCount:       body.PlantCount,
		StartingTag:      body.StartingTag,
		GrowthDate:       body.GrowthDate,
		LocationOverride: body.LocationOverride,
	}))
}

type packageBody struct {
	ActorID          uuid.UUID `json:"actorId"`
	Tag              string    `json:"tag"`
	Item             string    `json:"item"`
	PlantCount       int       `json:"plantCount"`
	Quantity         float64   `json:"quantity"`
	UnitOfMeasure    string    `json:"unitOfMeasure"`
	LocationOverride string    `json:"locationOverride,omitempty"`
	ActualDate       time.Time `json:"actualDate"`
	Note             string    `json:"note,omitempty"`
}

func (b *packageBody) toRequest(batchID uuid.UUID) sync.PackageRequest {
	return sync.PackageRequest{
		BatchID:          batchID,
		ActorID:          b.ActorID,
		Tag:              b.Tag,
		Item:             b.Item,
		PlantCount:       b.PlantCount,
		Quantity:         b.Quantity,
		UnitOfMeasure:    b.UnitOfMeasure,
		LocationOverride: b.LocationOverride,
		ActualDate:       b.ActualDate,
		Note:             b.Note,
	}
}

// createPackageFromBatch handles POST /api/v0/batches/{batchID}/packages
func (rr *Routes) createPackageFromBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := rr.uuidParam(w, r, "batchID")
	if !ok {
		return
	}
	var body packageBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.CreatePackageFromBatch(r.Context(), body.toRequest(batchID)))
}

// createPackageFromMother handles POST /api/v0/batches/{batchID}/mother-packages
func (rr *Routes) createPackageFromMother(w http.ResponseWriter, r *http.Request) {
	batchID, ok := rr.uuidParam(w, r, "batchID")
	if !ok {
		return
	}
	var body packageBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.CreatePackageFromMother(r.Context(), body.toRequest(batchID)))
}

type wasteBody struct {
	ActorID         uuid.UUID `json:"actorId"`
	Weight          float64   `json:"weight"`
	Unit            string    `json:"unit"`
	Reason          string    `json:"reason"`
	RenderingMethod string    `json:"renderingMethod"`
	DestructionDate time.Time `json:"destructionDate"`
	Witness         string    `json:"witness"`
	Evidence        []string  `json:"evidence,omitempty"`
}

func (b *wasteBody) toRequest(sourceID uuid.UUID) sync.WasteRequest {
	return sync.WasteRequest{
		SourceID:        sourceID,
		ActorID:         b.ActorID,
		Weight:          b.Weight,
		Unit:            b.Unit,
		Reason:          b.Reason,
		RenderingMethod: b.RenderingMethod,
		DestructionDate: b.DestructionDate,
		Witness:         b.Witness,
		Evidence:        b.Evidence,
	}
}

// destroyBatchWaste handles POST /api/v0/batches/{batchID}/waste
func (rr *Routes) destroyBatchWaste(w http.ResponseWriter, r *http.Request) {
	batchID, ok := rr.uuidParam(w, r, "batchID")
	if !ok {
		return
	}
	var body wasteBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.DestroyPlantBatchWaste(r.Context(), body.toRequest(batchID)))
}

// destroyPackageWaste handles POST /api/v0/packages/{packageID}/waste
func (rr *Routes) destroyPackageWaste(w http.ResponseWriter, r *http.Request) {
	packageID, ok := rr.uuidParam(w, r, "packageID")
	if !ok {
		return
	}
	var body wasteBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.DestroyPackageWaste(r.Context(), body.toRequest(packageID)))
}

// mapHarvest handles POST /api/v0/harvests/{harvestID}/map
func (rr *Routes) mapHarvest(w http.ResponseWriter, r *http.Request) {
	harvestID, ok := rr.uuidParam(w, r, "harvestID")
	if !ok {
		return
	}
	var body struct {
		ActorID uuid.UUID `json:"actorId"`
	}
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.MapHarvest(r.Context(), harvestID, body.ActorID))
}

type labTestBody struct {
	PackageID uuid.UUID                 `json:"packageId"`
	ActorID   uuid.UUID                 `json:"actorId"`
	LabName   string                    `json:"labName"`
	TestDate  time.Time                 `json:"testDate"`
	Results   []sync.LabTestResultInput `json:"results"`
}

// createLabTest handles POST /api/v0/lab-tests
func (rr *Routes) createLabTest(w http.ResponseWriter, r *http.Request) {
	var body labTestBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.CreateLabTest(r.Context(), sync.LabTestRequest{
		PackageID: body.PackageID,
		ActorID:   body.ActorID,
		LabName:   body.LabName,
		TestDate:  body.TestDate,
		Results:   body.Results,
	}))
}

// linkPackageToTest handles POST /api/v0/packages/{packageID}/lab-tests/{testID}/link
func (rr *Routes) linkPackageToTest(w http.ResponseWriter, r *http.Request) {
	packageID, ok := rr.uuidParam(w, r, "packageID")
	if !ok {
		return
	}
	testID, ok := rr.uuidParam(w, r, "testID")
	if !ok {
		return
	}
	var body struct {
		ActorID uuid.UUID `json:"actorId"`
	}
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.LinkPackageToTest(r.Context(), packageID, testID, body.ActorID))
}

// reconcileWaste handles POST /api/v0/waste/reconcile
func (rr *Routes) reconcileWaste(w http.ResponseWriter, r *http.Request) {
	var body syncRequestBody
	if !rr.decode(w, r, &body) {
		return
	}
	rr.writeResult(w, rr.engine.ReconcilePendingWaste(r.Context(), body.SiteID, body.ActorID))
}

// listSyncLog handles GET /api/v0/sync-log
func (rr *Routes) listSyncLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orgID, err := uuid.Parse(q.Get("organizationId"))
	if err != nil {
		rr.writeErrorResponse(w, "organizationId query parameter is required", http.StatusBadRequest)
		return
	}
	filter := store.SyncLogFilter{OrganizationID: orgID, Limit: 100}

	if v := q.Get("siteId"); v != "" {
		siteID, err := uuid.Parse(v)
		if err != nil {
			rr.writeErrorResponse(w, "invalid siteId", http.StatusBadRequest)
			return
		}
		filter.SiteID = &siteID
	}
	if v := q.Get("type"); v != "" {
		syncType := store.SyncType(v)
		if !syncType.Valid() {
			rr.writeErrorResponse(w, "invalid sync type", http.StatusBadRequest)
			return
		}
		filter.SyncType = &syncType
	}
	if v := q.Get("status"); v != "" {
		status := store.SyncOutcome(v)
		filter.Status = &status
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rr.writeErrorResponse(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			rr.writeErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	entries, err := rr.store.SyncLog().List(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to list sync log", "error", err)
		rr.writeErrorResponse(w, "Failed to list sync log", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, entries)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(st store.Store) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(st))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests. Readiness means the
// store answers queries.
func readinessHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := st.SyncLog().List(r.Context(), store.SyncLogFilter{Limit: 1})
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if encodeErr := json.NewEncoder(w).Encode(ErrorResponse{
				Error: "store not ready: " + err.Error(),
			}); encodeErr != nil {
				slog.Error("Failed to encode readiness error response", "error", encodeErr)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// decode parses the JSON request body, writing a 400 on failure.
func (rr *Routes) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rr.writeErrorResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// uuidParam parses a UUID URL parameter, writing a 400 on failure.
func (rr *Routes) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		rr.writeErrorResponse(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeResult writes an operation result. The engine reports failures inside
// the result payload, not with transport errors.
func (rr *Routes) writeResult(w http.ResponseWriter, result *sync.Result) {
	rr.writeJSONResponse(w, result)
}

// writeJSONResponse writes a JSON response with the given data
func (rr *Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
