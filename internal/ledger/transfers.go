package ledger

import "context"

// TransfersService accesses the ledger's transfer manifest resources.
type TransfersService struct {
	client *Client
}

// ListIncoming returns incoming transfer manifests for the facility,
// optionally bounded to the given modification window.
func (s *TransfersService) ListIncoming(ctx context.Context, window ListWindow) ([]Transfer, error) {
	var transfers []Transfer
	if err := s.client.get(ctx, "/transfers/v1/incoming", window.query(), &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

// ListOutgoing returns outgoing transfer manifests for the facility,
// optionally bounded to the given modification window.
func (s *TransfersService) ListOutgoing(ctx context.Context, window ListWindow) ([]Transfer, error) {
	var transfers []Transfer
	if err := s.client.get(ctx, "/transfers/v1/outgoing", window.query(), &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}
