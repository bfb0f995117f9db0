package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/cultivarhq/trace-sync-server/internal/ledger"
	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// linkTarget adapts one entity kind to the create-or-link algorithm. The
// external systems in this domain key on name, so Key is the entity's exact
// name and Find/Create operate on it.
type linkTarget interface {
	// Key is the canonical external lookup key.
	Key() string

	// Status re-reads the persisted sync status.
	Status(ctx context.Context) (store.SyncStatus, error)

	// ExternalID re-reads the persisted external link, nil when unlinked.
	ExternalID(ctx context.Context) (*string, error)

	// Transition performs a compare-and-swap on the persisted sync status,
	// returning false when the entity was not in from.
	Transition(ctx context.Context, from, to store.SyncStatus) (bool, error)

	// Find queries the external system by key, returning the external id or
	// nil when no record exists.
	Find(ctx context.Context) (*string, error)

	// Create attempts external creation. The external create endpoint does
	// not return the generated id synchronously.
	Create(ctx context.Context) error

	// Link persists the external id and marks the entity synced.
	Link(ctx context.Context, externalID string) error

	// MarkFailed marks the entity sync_failed. Not-synced is a valid steady
	// state, so the entity remains usable afterwards.
	MarkFailed(ctx context.Context) error
}

// linkAction describes how a create-or-link resolution concluded.
type linkAction string

const (
	// linkActionCreated means this call created the external record.
	linkActionCreated linkAction = "created"

	// linkActionLinked means an existing external record was linked.
	linkActionLinked linkAction = "linked"

	// linkActionAlready means the entity was already linked before the call.
	linkActionAlready linkAction = "already_linked"
)

// linkOutcome is the result of a successful create-or-link resolution.
type linkOutcome struct {
	ExternalID string
	Action     linkAction
}

// createOrLink resolves an entity against the external ledger with
// at-most-once creation:
//
//  1. Entry into "syncing" is a compare-and-swap on the persisted status; a
//     caller that loses the race waits for the winner's outcome instead of
//     double-submitting.
//  2. The external system is queried by canonical key first; a hit links the
//     existing record and no write is attempted.
//  3. On a miss, creation is attempted. A conflict classification triggers
//     one re-query (a concurrent actor may have just created the record)
//     before being treated as an error. Because the create endpoint does not
//     return the generated id, success is followed by a re-query to obtain
//     it.
//  4. Any terminal failure marks the entity sync_failed and is returned; the
//     caller writes the failed audit row.
func (e *Engine) createOrLink(ctx context.Context, t linkTarget) (*linkOutcome, error) {
	// Fast path: already linked.
	if id, err := t.ExternalID(ctx); err != nil {
		return nil, err
	} else if id != nil {
		return &linkOutcome{ExternalID: *id, Action: linkActionAlready}, nil
	}

	if err := e.enterSyncing(ctx, t); err != nil {
		var outcome *linkOutcome
		if outcome, err = e.awaitOutcome(ctx, t, err); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	outcome, err := e.resolveLinked(ctx, t)
	if err != nil {
		if markErr := t.MarkFailed(ctx); markErr != nil {
			e.log.Error("Failed to mark entity sync_failed", "key", t.Key(), "error", markErr)
		}
		return nil, err
	}
	return e.persistLink(ctx, t, outcome)
}

// persistLink stores a resolved external id. A failed Link releases the
// syncing status to sync_failed so later callers retry instead of waiting
// out the link deadline behind a permanently held slot.
func (e *Engine) persistLink(ctx context.Context, t linkTarget, outcome *linkOutcome) (*linkOutcome, error) {
	if linkErr := t.Link(ctx, outcome.ExternalID); linkErr != nil {
		if markErr := t.MarkFailed(ctx); markErr != nil {
			e.log.Error("Failed to mark entity sync_failed", "key", t.Key(), "error", markErr)
		}
		return nil, linkErr
	}
	return outcome, nil
}

// enterSyncing attempts the CAS into syncing from either restartable state.
func (e *Engine) enterSyncing(ctx context.Context, t linkTarget) error {
	for _, from := range []store.SyncStatus{store.SyncStatusNotSynced, store.SyncStatusFailed} {
		ok, err := t.Transition(ctx, from, store.SyncStatusSyncing)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrSyncInProgress
}

// awaitOutcome handles the losing side of the status race: the entity is
// either already synced, or another caller holds "syncing" and we poll for
// its outcome within the bounded wait.
func (e *Engine) awaitOutcome(ctx context.Context, t linkTarget, cause error) (*linkOutcome, error) {
	if cause != ErrSyncInProgress {
		return nil, cause
	}

	deadline := time.Now().Add(e.linkWait)
	for {
		status, err := t.Status(ctx)
		if err != nil {
			return nil, err
		}
		switch status {
		case store.SyncStatusSynced:
			id, err := t.ExternalID(ctx)
			if err != nil {
				return nil, err
			}
			if id == nil {
				return nil, fmt.Errorf("entity %q is synced but has no external id", t.Key())
			}
			return &linkOutcome{ExternalID: *id, Action: linkActionAlready}, nil
		case store.SyncStatusFailed, store.SyncStatusNotSynced:
			// The winner finished without linking; take over.
			if err := e.enterSyncing(ctx, t); err != nil {
				if err == ErrSyncInProgress {
					break // someone else took over again, keep waiting
				}
				return nil, err
			}
			outcome, err := e.resolveLinked(ctx, t)
			if err != nil {
				if markErr := t.MarkFailed(ctx); markErr != nil {
					e.log.Error("Failed to mark entity sync_failed", "key", t.Key(), "error", markErr)
				}
				return nil, err
			}
			return e.persistLink(ctx, t, outcome)
		case store.SyncStatusSyncing:
			// Winner still in flight.
		}

		if time.Now().After(deadline) {
			return nil, ErrSyncInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.linkPollInterval):
		}
	}
}

// resolveLinked performs the external lookup/create sequence while the
// caller holds the syncing status.
func (e *Engine) resolveLinked(ctx context.Context, t linkTarget) (*linkOutcome, error) {
	existing, err := t.Find(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &linkOutcome{ExternalID: *existing, Action: linkActionLinked}, nil
	}

	if err := t.Create(ctx); err != nil {
		if !ledger.IsConflict(err) {
			return nil, err
		}
		// Another actor created the record between our lookup and create.
		recheck, findErr := t.Find(ctx)
		if findErr != nil {
			return nil, findErr
		}
		if recheck == nil {
			return nil, fmt.Errorf("ledger reported %q as existing but lookup found nothing: %w", t.Key(), err)
		}
		return &linkOutcome{ExternalID: *recheck, Action: linkActionLinked}, nil
	}

	// The create endpoint does not return the generated id; re-query by key.
	created, err := t.Find(ctx)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("created %q in ledger but follow-up lookup found nothing", t.Key())
	}
	return &linkOutcome{ExternalID: *created, Action: linkActionCreated}, nil
}
