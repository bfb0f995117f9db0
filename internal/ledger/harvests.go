package ledger

import "context"

// HarvestsService accesses the ledger's harvest resources.
type HarvestsService struct {
	client *Client
}

// ListActive returns all active harvests for the facility.
func (s *HarvestsService) ListActive(ctx context.Context) ([]Harvest, error) {
	var harvests []Harvest
	if err := s.client.get(ctx, "/harvests/v1/active", nil, &harvests); err != nil {
		return nil, err
	}
	return harvests, nil
}

// FindByName returns the active harvest with exactly the given name, or nil.
func (s *HarvestsService) FindByName(ctx context.Context, name string) (*Harvest, error) {
	harvests, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range harvests {
		if harvests[i].Name == name {
			return &harvests[i], nil
		}
	}
	return nil, nil
}
