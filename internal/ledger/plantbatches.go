package ledger

import "context"

// PlantBatchesService accesses the ledger's plant batch resources.
type PlantBatchesService struct {
	client *Client
}

// ListActive returns all active plant batches for the facility.
func (s *PlantBatchesService) ListActive(ctx context.Context) ([]PlantBatch, error) {
	var batches []PlantBatch
	if err := s.client.get(ctx, "/plantbatches/v1/active", nil, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// FindByName returns the active plant batch with exactly the given name, or
// nil when none exists.
func (s *PlantBatchesService) FindByName(ctx context.Context, name string) (*PlantBatch, error) {
	batches, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range batches {
		if batches[i].Name == name {
			return &batches[i], nil
		}
	}
	return nil, nil
}

// Create submits a new planting. The generated id is not returned
// synchronously; callers re-query by name.
func (s *PlantBatchesService) Create(ctx context.Context, req PlantBatchCreateRequest) error {
	return s.client.post(ctx, "/plantbatches/v1/createplantings", []PlantBatchCreateRequest{req}, nil)
}

// ChangeGrowthPhase moves Count plants from the named batch into an
// individual growth phase, creating one externally tagged plant per plant
// starting at StartingTag and incrementing.
func (s *PlantBatchesService) ChangeGrowthPhase(ctx context.Context, req GrowthPhaseChangeRequest) error {
	return s.client.post(ctx, "/plantbatches/v1/changegrowthphase", []GrowthPhaseChangeRequest{req}, nil)
}
