package ledger

import "context"

// LocationsService accesses the ledger's facility location resources.
type LocationsService struct {
	client *Client
}

// ListActive returns all active locations for the facility.
func (s *LocationsService) ListActive(ctx context.Context) ([]Location, error) {
	var locations []Location
	if err := s.client.get(ctx, "/locations/v1/active", nil, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// ListTypes returns the location types the facility may use.
func (s *LocationsService) ListTypes(ctx context.Context) ([]LocationType, error) {
	var types []LocationType
	if err := s.client.get(ctx, "/locations/v1/types", nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// FindByName returns the active location with exactly the given name, or nil.
func (s *LocationsService) FindByName(ctx context.Context, name string) (*Location, error) {
	locations, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range locations {
		if locations[i].Name == name {
			return &locations[i], nil
		}
	}
	return nil, nil
}

// Create submits a new facility location.
func (s *LocationsService) Create(ctx context.Context, req LocationCreateRequest) error {
	return s.client.post(ctx, "/locations/v1/create", []LocationCreateRequest{req}, nil)
}
