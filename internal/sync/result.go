package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// Request describes one sync invocation: which entity family to sync for
// which site, on whose behalf.
type Request struct {
	Type           store.SyncType
	SiteID         uuid.UUID
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	Options        Options
}

// Options carries optional sync parameters.
type Options struct {
	// LastModifiedStart/End bound an incremental sync window. Zero values
	// mean a full sync. The window applies to pull-side listing; push
	// passes select work by sync status, which is independent of external
	// modification times.
	LastModifiedStart time.Time
	LastModifiedEnd   time.Time
}

// window converts the options into the ledger's list bound.
func (o Options) window() ledger.ListWindow {
	return ledger.ListWindow{
		ModifiedStart: o.LastModifiedStart,
		ModifiedEnd:   o.LastModifiedEnd,
	}
}

// Result is the structured outcome of a sync run or entity operation. Every
// invocation returns a non-nil Result; failures are reported in Errors, never
// by a raw error escaping to the trigger.
type Result struct {
	Success    bool     `json:"success"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	CreatedIDs []string `json:"createdIds,omitempty"`
}

func newResult() *Result {
	return &Result{
		Success:  true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

func (r *Result) addErrorf(format string, args ...any) {
	r.Success = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarningf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) addCreated(id string) {
	r.Created++
	r.CreatedIDs = append(r.CreatedIDs, id)
}

// merge folds a sub-operation's result into r.
func (r *Result) merge(other *Result) {
	if !other.Success {
		r.Success = false
	}
	r.Created += other.Created
	r.Updated += other.Updated
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.CreatedIDs = append(r.CreatedIDs, other.CreatedIDs...)
}
