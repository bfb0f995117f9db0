package ledger

import "context"

// LabTestsService accesses the ledger's lab test resources.
type LabTestsService struct {
	client *Client
}

// Record submits a certificate of analysis against a package label.
func (s *LabTestsService) Record(ctx context.Context, req LabTestCreateRequest) error {
	return s.client.post(ctx, "/labtests/v1/record", []LabTestCreateRequest{req}, nil)
}

// ListByPackage returns the lab test records linked to a package label.
func (s *LabTestsService) ListByPackage(ctx context.Context, label string) ([]LabTestRecord, error) {
	var records []LabTestRecord
	query := queryValues("packageLabel", label)
	if err := s.client.get(ctx, "/labtests/v1/results", query, &records); err != nil {
		return nil, err
	}
	return records, nil
}
