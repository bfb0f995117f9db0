package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
	"github.com/cultivarhq/trace-sync-server/internal/telemetry"
)

const (
	// defaultLinkWait bounds how long a create-or-link caller that lost the
	// status race waits for the winner's outcome.
	defaultLinkWait = 5 * time.Second

	// defaultLinkPollInterval is the poll interval during that wait.
	defaultLinkPollInterval = 100 * time.Millisecond

	// defaultMaxReconcileAttempts bounds waste reconciliation retries per
	// row before escalating to manual review.
	defaultMaxReconcileAttempts = 5
)

// ClientFactory builds a ledger client for one site's resolved credentials.
// One client is constructed per sync invocation; there is no shared client.
type ClientFactory func(creds ledger.Credentials) *ledger.Client

// Engine executes sync operations against one internal store and the
// external regulatory ledger.
type Engine struct {
	store     store.Store
	clientFor ClientFactory
	log       *slog.Logger
	metrics   *telemetry.SyncMetrics

	linkWait             time.Duration
	linkPollInterval     time.Duration
	maxReconcileAttempts int

	// inflight guards one running sync per (site, type).
	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

type inflightKey struct {
	siteID   uuid.UUID
	syncType store.SyncType
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClientFactory overrides ledger client construction, used by tests to
// point clients at a local fake ledger.
func WithClientFactory(f ClientFactory) EngineOption {
	return func(e *Engine) {
		e.clientFor = f
	}
}

// WithLogger sets the engine's structured logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithMetrics attaches prometheus sync metrics.
func WithMetrics(m *telemetry.SyncMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLinkWait tunes the bounded wait for a concurrent create-or-link
// outcome. Tests shorten it.
func WithLinkWait(wait, poll time.Duration) EngineOption {
	return func(e *Engine) {
		e.linkWait = wait
		e.linkPollInterval = poll
	}
}

// WithMaxReconcileAttempts bounds waste reconciliation retries per row.
func WithMaxReconcileAttempts(n int) EngineOption {
	return func(e *Engine) {
		e.maxReconcileAttempts = n
	}
}

// NewEngine constructs a sync engine over the given store.
func NewEngine(st store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:                st,
		clientFor:            func(creds ledger.Credentials) *ledger.Client { return ledger.New(creds) },
		log:                  slog.Default(),
		linkWait:             defaultLinkWait,
		linkPollInterval:     defaultLinkPollInterval,
		maxReconcileAttempts: defaultMaxReconcileAttempts,
		inflight:             make(map[inflightKey]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// siteContext carries the per-invocation state shared by every stage of an
// entity operation: the site, its scoped ledger client and the audit actor.
type siteContext struct {
	site   *store.Site
	client *ledger.Client
	actor  uuid.UUID
}

// siteContext resolves the site, validates its credentials and constructs
// one ledger client scoped to them.
func (e *Engine) siteContext(ctx context.Context, siteID, actorID uuid.UUID) (*siteContext, error) {
	site, err := e.store.Sites().Get(ctx, siteID)
	if err != nil {
		return nil, validationf("siteId", "unknown site %s", siteID)
	}
	if !site.SyncEnabled {
		return nil, validationf("siteId", "sync is disabled for site %s", site.Name)
	}

	creds := ledger.Credentials{
		VendorKey:     site.VendorKey,
		UserKey:       site.UserKey,
		LicenseNumber: site.LicenseNumber,
		Sandbox:       site.Sandbox,
	}
	if err := creds.Validate(); err != nil {
		return nil, validationf("credentials", "%v", err)
	}

	return &siteContext{
		site:   site,
		client: e.clientFor(creds),
		actor:  actorID,
	}, nil
}

// handleLedgerError applies cross-cutting policy for a classified ledger
// failure. Auth failures disable sync for the site until an operator
// intervenes.
func (e *Engine) handleLedgerError(ctx context.Context, sc *siteContext, err error) {
	if !ledger.IsAuth(err) {
		return
	}
	e.log.Error("External ledger rejected site credentials, disabling sync",
		"site", sc.site.Name, "site_id", sc.site.ID, "error", err)
	if disableErr := e.store.Sites().SetSyncEnabled(ctx, sc.site.ID, false); disableErr != nil {
		e.log.Error("Failed to disable sync for site", "site_id", sc.site.ID, "error", disableErr)
	}
}

// auditPanic writes the failed audit row for a recovered panic. The site
// context may never have been built when the panic fired, so the entry is
// assembled from the request alone.
func (e *Engine) auditPanic(ctx context.Context, req Request, cause any) {
	payload, err := json.Marshal(auditDetail{Action: actionFailed, Note: "recovered panic"})
	if err != nil {
		payload = []byte("{}")
	}
	entry := &store.SyncLogEntry{
		OrganizationID: req.OrganizationID,
		SiteID:         req.SiteID,
		SyncType:       req.Type,
		Direction:      store.DirectionInternalToExternal,
		Status:         store.OutcomeFailed,
		Detail:         payload,
		ErrorMessage:   fmt.Sprintf("internal error: %v", cause),
		PerformedBy:    req.ActorID,
	}
	if err := e.store.SyncLog().Append(ctx, entry); err != nil {
		e.log.Error("Failed to append sync log entry for recovered panic",
			"site_id", req.SiteID, "sync_type", req.Type, "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordAttempt(string(req.Type), string(store.OutcomeFailed))
	}
}

// auditDetail is the structured JSON payload of a sync log row.
type auditDetail struct {
	Entity     string `json:"entity"`
	EntityID   string `json:"entityId,omitempty"`
	Action     string `json:"action"`
	ExternalID string `json:"externalId,omitempty"`
	Note       string `json:"note,omitempty"`
}

// Audit actions.
const (
	actionCreated = "created"
	actionLinked  = "linked"
	actionFailed  = "failed"
	actionUpdated = "updated"
)

// audit appends exactly one sync log row for one attempt. A failed append is
// logged but does not fail the operation: the external mutation has already
// happened and must not be reported as unattempted.
func (e *Engine) audit(
	ctx context.Context,
	sc *siteContext,
	syncType store.SyncType,
	direction store.SyncDirection,
	outcome store.SyncOutcome,
	detail auditDetail,
	errMsg string,
) {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = []byte("{}")
	}
	entry := &store.SyncLogEntry{
		OrganizationID: sc.site.OrganizationID,
		SiteID:         sc.site.ID,
		SyncType:       syncType,
		Direction:      direction,
		Status:         outcome,
		Detail:         payload,
		ErrorMessage:   errMsg,
		PerformedBy:    sc.actor,
	}
	if err := e.store.SyncLog().Append(ctx, entry); err != nil {
		e.log.Error("Failed to append sync log entry",
			"site_id", sc.site.ID, "sync_type", syncType, "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordAttempt(string(syncType), string(outcome))
	}
}
