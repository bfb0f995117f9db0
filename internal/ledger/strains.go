package ledger

import (
	"context"
)

// StrainsService accesses the ledger's strain resources.
type StrainsService struct {
	client *Client
}

// ListActive returns active strains for the facility, optionally bounded to
// the given modification window.
func (s *StrainsService) ListActive(ctx context.Context, window ListWindow) ([]Strain, error) {
	var strains []Strain
	if err := s.client.get(ctx, "/strains/v1/active", window.query(), &strains); err != nil {
		return nil, err
	}
	return strains, nil
}

// FindByName returns the active strain with exactly the given name, or nil
// when no such strain exists. The ledger keys strains on name, so exact name
// match is the canonical lookup for create-or-link.
func (s *StrainsService) FindByName(ctx context.Context, name string) (*Strain, error) {
	strains, err := s.ListActive(ctx, ListWindow{})
	if err != nil {
		return nil, err
	}
	for i := range strains {
		if strains[i].Name == name {
			return &strains[i], nil
		}
	}
	return nil, nil
}

// Create submits a new strain. The ledger does not return the generated id
// synchronously; callers must re-query by name afterwards.
func (s *StrainsService) Create(ctx context.Context, req StrainCreateRequest) error {
	return s.client.post(ctx, "/strains/v1/create", []StrainCreateRequest{req}, nil)
}
