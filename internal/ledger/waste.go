package ledger

import (
	"context"
	"net/url"
)

// WasteService accesses the ledger's waste/destruction resources.
type WasteService struct {
	client *Client
}

// Destroy records a destruction transaction and returns the ledger's
// transaction record. Unlike the create endpoints, the destruction endpoint
// returns its transaction synchronously.
func (s *WasteService) Destroy(ctx context.Context, req WasteDestroyRequest) (*WasteTransaction, error) {
	var txns []WasteTransaction
	if err := s.client.post(ctx, "/waste/v1/destroy", []WasteDestroyRequest{req}, &txns); err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, &Error{Kind: KindTransient, Message: "destruction accepted but no transaction returned"}
	}
	return &txns[0], nil
}

// queryValues builds a url.Values from alternating key/value pairs.
func queryValues(pairs ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		q.Set(pairs[i], pairs[i+1])
	}
	return q
}
