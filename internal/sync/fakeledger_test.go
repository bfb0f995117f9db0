package sync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
)

// fakeLedger is a stateful in-process stand-in for the external regulatory
// ledger. It mimics the ledger's defining quirks: create endpoints do not
// return the generated id, duplicates answer 409, and destruction returns
// its transaction synchronously.
type fakeLedger struct {
	srv *httptest.Server

	mu           sync.Mutex
	nextID       int64
	strains      []ledger.Strain
	plantBatches []ledger.PlantBatch
	packages     []ledger.Package
	harvests     []ledger.Harvest
	labTests     map[string][]ledger.LabTestRecord
	incoming     []ledger.Transfer
	outgoing     []ledger.Transfer
	txnSeq       int

	// failures maps a request path to a status code to answer with instead
	// of the normal behavior. clearFailure restores it.
	failures map[string]int

	// callCounts tracks how often each path was hit; lastQueries keeps the
	// most recent query string per path.
	callCounts  map[string]int
	lastQueries map[string]url.Values

	phaseChanges []ledger.GrowthPhaseChangeRequest
	destroys     []ledger.WasteDestroyRequest
}

func newFakeLedger(t *testing.T) *fakeLedger {
	t.Helper()
	f := &fakeLedger{
		labTests:    make(map[string][]ledger.LabTestRecord),
		failures:    make(map[string]int),
		callCounts:  make(map[string]int),
		lastQueries: make(map[string]url.Values),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLedger) failWith(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = status
}

func (f *fakeLedger) clearFailure(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, path)
}

func (f *fakeLedger) calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCounts[path]
}

func (f *fakeLedger) lastQuery(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQueries[path]
}

func (f *fakeLedger) id() int64 {
	f.nextID++
	return f.nextID
}

// addStrain seeds an existing external strain and returns its id.
func (f *fakeLedger) addStrain(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.strains = append(f.strains, ledger.Strain{ID: id, Name: name})
	return id
}

func (f *fakeLedger) addPlantBatch(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.plantBatches = append(f.plantBatches, ledger.PlantBatch{ID: id, Name: name})
	return id
}

func (f *fakeLedger) addPackage(label string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.packages = append(f.packages, ledger.Package{ID: id, Label: label})
	return id
}

func (f *fakeLedger) addHarvest(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.harvests = append(f.harvests, ledger.Harvest{ID: id, Name: name})
	return id
}

func (f *fakeLedger) addLabTestRecord(label string, passed bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.labTests[label] = append(f.labTests[label], ledger.LabTestRecord{
		ID: id, Label: label, TestTypeName: "Full Panel", OverallPassed: passed,
	})
	return id
}

func (f *fakeLedger) addTransfer(incoming bool, manifest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := ledger.Transfer{ID: f.id(), ManifestNumber: manifest, DeliveryCount: 1}
	if incoming {
		f.incoming = append(f.incoming, tr)
	} else {
		f.outgoing = append(f.outgoing, tr)
	}
}

func (f *fakeLedger) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.callCounts[r.URL.Path]++
	f.lastQueries[r.URL.Path] = r.URL.Query()
	if status, ok := f.failures[r.URL.Path]; ok {
		f.mu.Unlock()
		writeLedgerError(w, status, "injected failure")
		return
	}
	f.mu.Unlock()

	switch r.URL.Path {
	case "/strains/v1/active":
		f.respondList(w, func() any { return f.strains })
	case "/strains/v1/create":
		f.handleStrainCreate(w, r)
	case "/plantbatches/v1/active":
		f.respondList(w, func() any { return f.plantBatches })
	case "/plantbatches/v1/createplantings":
		f.handlePlantBatchCreate(w, r)
	case "/plantbatches/v1/changegrowthphase":
		f.handleGrowthPhaseChange(w, r)
	case "/packages/v1/active":
		f.respondList(w, func() any { return f.packages })
	case "/packages/v1/create":
		f.handlePackageCreate(w, r)
	case "/harvests/v1/active":
		f.respondList(w, func() any { return f.harvests })
	case "/labtests/v1/record":
		f.handleLabTestRecord(w, r)
	case "/labtests/v1/results":
		f.handleLabTestResults(w, r)
	case "/waste/v1/destroy":
		f.handleWasteDestroy(w, r)
	case "/transfers/v1/incoming":
		f.respondList(w, func() any { return f.incoming })
	case "/transfers/v1/outgoing":
		f.respondList(w, func() any { return f.outgoing })
	default:
		writeLedgerError(w, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
	}
}

func (f *fakeLedger) respondList(w http.ResponseWriter, data func() any) {
	f.mu.Lock()
	payload, err := json.Marshal(data())
	f.mu.Unlock()
	if err != nil {
		writeLedgerError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if string(payload) == "null" {
		payload = []byte("[]")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (f *fakeLedger) handleStrainCreate(w http.ResponseWriter, r *http.Request) {
	var reqs []ledger.StrainCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range reqs {
		for _, s := range f.strains {
			if s.Name == req.Name {
				writeLedgerError(w, http.StatusConflict, "strain already exists: "+req.Name)
				return
			}
		}
		f.strains = append(f.strains, ledger.Strain{
			ID:               f.id(),
			Name:             req.Name,
			TestingStatus:    req.TestingStatus,
			IndicaPercentage: req.IndicaPercentage,
			SativaPercentage: req.SativaPercentage,
		})
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeLedger) handlePlantBatchCreate(w http.ResponseWriter, r *http.Request) {
	var reqs []ledger.PlantBatchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range reqs {
		for _, b := range f.plantBatches {
			if b.Name == req.Name {
				writeLedgerError(w, http.StatusConflict, "plant batch already exists: "+req.Name)
				return
			}
		}
		f.plantBatches = append(f.plantBatches, ledger.PlantBatch{
			ID:       f.id(),
			Name:     req.Name,
			Type:     req.Type,
			Count:    req.Count,
			Location: req.Location,
		})
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeLedger) handleGrowthPhaseChange(w http.ResponseWriter, r *http.Request) {
	var reqs []ledger.GrowthPhaseChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phaseChanges = append(f.phaseChanges, reqs...)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeLedger) handlePackageCreate(w http.ResponseWriter, r *http.Request) {
	var reqs []ledger.PackageCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range reqs {
		for _, p := range f.packages {
			if p.Label == req.Tag {
				writeLedgerError(w, http.StatusConflict, "package already exists: "+req.Tag)
				return
			}
		}
		f.packages = append(f.packages, ledger.Package{
			ID:            f.id(),
			Label:         req.Tag,
			Quantity:      req.Quantity,
			UnitOfMeasure: req.UnitOfMeasure,
			ItemName:      req.Item,
		})
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeLedger) handleLabTestRecord(w http.ResponseWriter, r *http.Request) {
	var reqs []ledger.LabTestCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range reqs {
		passed := true
		for _, res := range req.Results {
			if !res.Passed {
				passed = false
			}
		}
		f.labTests[req.Label] = append(f.labTests[req.Label], ledger.LabTestRecord{
			ID:            f.id(),
			Label:         req.Label,
			TestTypeName:  "Full Panel",
			OverallPassed: passed,
			ResultDate:    req.ResultDate,
		})
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeLedger) handleLabTestResults(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("packageLabel")
	f.mu.Lock()
	records := append([]ledger.LabTestRecord(nil), f.labTests[label]...)
	f.mu.Unlock()
	payload, _ := json.Marshal(records)
	if string(payload) == "null" {
		payload = []byte("[]")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (f *fakeLedger) handleWasteDestroy(w http.ResponseWriter, r *http.Request) {
	var reqs []ledger.WasteDestroyRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []ledger.WasteTransaction
	for _, req := range reqs {
		f.destroys = append(f.destroys, req)
		f.txnSeq++
		txns = append(txns, ledger.WasteTransaction{
			ID:            int64(f.txnSeq),
			TransactionID: fmt.Sprintf("WD-%06d", f.txnSeq),
			SourceName:    req.SourceName,
			ActualDate:    req.ActualDate,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(txns)
}

func writeLedgerError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"Message": message})
}
