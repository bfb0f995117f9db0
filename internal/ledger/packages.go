package ledger

import "context"

// PackagesService accesses the ledger's package resources.
type PackagesService struct {
	client *Client
}

// ListActive returns all active packages for the facility.
func (s *PackagesService) ListActive(ctx context.Context) ([]Package, error) {
	var packages []Package
	if err := s.client.get(ctx, "/packages/v1/active", nil, &packages); err != nil {
		return nil, err
	}
	return packages, nil
}

// FindByLabel returns the active package with exactly the given tag label,
// or nil when none exists.
func (s *PackagesService) FindByLabel(ctx context.Context, label string) (*Package, error) {
	packages, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range packages {
		if packages[i].Label == label {
			return &packages[i], nil
		}
	}
	return nil, nil
}

// Create submits a new package.
func (s *PackagesService) Create(ctx context.Context, req PackageCreateRequest) error {
	return s.client.post(ctx, "/packages/v1/create", []PackageCreateRequest{req}, nil)
}
