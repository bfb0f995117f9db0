package sync

import (
	"context"
	"fmt"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// syncTransfers pulls the facility's transfer manifests from the external
// ledger, bounded to the incremental window when one is set. Transfers
// originate with the regulator, so this is a read-only pass: the manifests
// are surfaced in the result and the pull is audited, nothing is pushed.
func (e *Engine) syncTransfers(ctx context.Context, sc *siteContext, opts Options, result *Result) {
	window := opts.window()
	incoming, err := sc.client.Transfers.ListIncoming(ctx, window)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeTransfers, store.DirectionExternalToInternal, store.OutcomeFailed,
			auditDetail{Entity: "transfer", Action: actionFailed, Note: "incoming manifest pull"},
			err.Error())
		result.addErrorf("pulling incoming transfers: %v", err)
		return
	}
	outgoing, err := sc.client.Transfers.ListOutgoing(ctx, window)
	if err != nil {
		e.handleLedgerError(ctx, sc, err)
		e.audit(ctx, sc, store.SyncTypeTransfers, store.DirectionExternalToInternal, store.OutcomeFailed,
			auditDetail{Entity: "transfer", Action: actionFailed, Note: "outgoing manifest pull"},
			err.Error())
		result.addErrorf("pulling outgoing transfers: %v", err)
		return
	}

	for _, t := range append(incoming, outgoing...) {
		result.addWarningf("transfer manifest %s from %s (%d deliveries)",
			t.ManifestNumber, t.ShipperLicense, t.DeliveryCount)
	}
	result.Updated += len(incoming) + len(outgoing)

	e.audit(ctx, sc, store.SyncTypeTransfers, store.DirectionExternalToInternal, store.OutcomeSuccess,
		auditDetail{Entity: "transfer", Action: actionUpdated,
			Note: fmt.Sprintf("%d incoming, %d outgoing manifests", len(incoming), len(outgoing))},
		"")
}
