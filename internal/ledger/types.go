package ledger

import "time"

// The ledger's JSON uses PascalCase field names; every resource is modeled
// as an explicit struct with an exhaustive field list. Ad hoc maps are not
// accepted at this boundary.

// Strain is an external strain record. Once created, its name cannot be
// edited in the ledger.
type Strain struct {
	ID               int64   `json:"Id"`
	Name             string  `json:"Name"`
	TestingStatus    string  `json:"TestingStatus"`
	ThcLevel         float64 `json:"ThcLevel"`
	CbdLevel         float64 `json:"CbdLevel"`
	IndicaPercentage float64 `json:"IndicaPercentage"`
	SativaPercentage float64 `json:"SativaPercentage"`
	IsUsed           bool    `json:"IsUsed"`
}

// StrainCreateRequest is the payload for creating a strain.
type StrainCreateRequest struct {
	Name             string  `json:"Name"`
	TestingStatus    string  `json:"TestingStatus"`
	ThcLevel         float64 `json:"ThcLevel"`
	CbdLevel         float64 `json:"CbdLevel"`
	IndicaPercentage float64 `json:"IndicaPercentage"`
	SativaPercentage float64 `json:"SativaPercentage"`
}

// Location is an external facility location.
type Location struct {
	ID               int64  `json:"Id"`
	Name             string `json:"Name"`
	LocationTypeID   int64  `json:"LocationTypeId"`
	LocationTypeName string `json:"LocationTypeName"`
	ForPlantBatches  bool   `json:"ForPlantBatches"`
	ForPlants        bool   `json:"ForPlants"`
	ForHarvests      bool   `json:"ForHarvests"`
	ForPackages      bool   `json:"ForPackages"`
}

// LocationType describes a class of facility location.
type LocationType struct {
	ID              int64  `json:"Id"`
	Name            string `json:"Name"`
	ForPlantBatches bool   `json:"ForPlantBatches"`
	ForPlants       bool   `json:"ForPlants"`
	ForHarvests     bool   `json:"ForHarvests"`
	ForPackages     bool   `json:"ForPackages"`
}

// LocationCreateRequest is the payload for creating a facility location.
type LocationCreateRequest struct {
	Name             string `json:"Name"`
	LocationTypeName string `json:"LocationTypeName"`
}

// PlantBatch is an external plant batch (planting) record.
type PlantBatch struct {
	ID          int64     `json:"Id"`
	Name        string    `json:"Name"`
	Type        string    `json:"Type"`
	StrainID    int64     `json:"StrainId"`
	StrainName  string    `json:"StrainName"`
	LocationID  int64     `json:"LocationId"`
	Location    string    `json:"LocationName"`
	Count       int       `json:"Count"`
	LiveCount   int       `json:"LiveCount"`
	PlantedDate time.Time `json:"PlantedDate"`
}

// PlantBatchCreateRequest is the payload for creating a planting.
type PlantBatchCreateRequest struct {
	Name        string `json:"Name"`
	Type        string `json:"Type"`
	Count       int    `json:"Count"`
	Strain      string `json:"Strain"`
	Location    string `json:"Location"`
	PlantedDate string `json:"PlantedDate"`
}

// GrowthPhaseChangeRequest moves plants from a batch into an individual
// growth phase, creating one tagged plant per Count starting at StartingTag.
type GrowthPhaseChangeRequest struct {
	Name        string `json:"Name"`
	Count       int    `json:"Count"`
	StartingTag string `json:"StartingTag"`
	GrowthPhase string `json:"GrowthPhase"`
	NewLocation string `json:"NewLocation"`
	GrowthDate  string `json:"GrowthDate"`
}

// Harvest is an external harvest record.
type Harvest struct {
	ID               int64   `json:"Id"`
	Name             string  `json:"Name"`
	HarvestType      string  `json:"HarvestType"`
	DryingLocation   string  `json:"DryingLocationName"`
	CurrentWeight    float64 `json:"CurrentWeight"`
	TotalWetWeight   float64 `json:"TotalWetWeight"`
	PlantCount       int     `json:"PlantCount"`
	HarvestStartDate string  `json:"HarvestStartDate"`
}

// Package is an external package record.
type Package struct {
	ID            int64   `json:"Id"`
	Label         string  `json:"Label"`
	Quantity      float64 `json:"Quantity"`
	UnitOfMeasure string  `json:"UnitOfMeasureName"`
	ItemName      string  `json:"ItemName"`
	IsFinished    bool    `json:"IsFinished"`
}

// PackageCreateRequest is the payload for creating a package, either from a
// plant batch or from a harvest.
type PackageCreateRequest struct {
	Tag           string  `json:"Tag"`
	Item          string  `json:"Item"`
	Quantity      float64 `json:"Quantity"`
	UnitOfMeasure string  `json:"UnitOfMeasure"`
	Location      string  `json:"Location"`
	PlantBatch    string  `json:"PlantBatch,omitempty"`
	Harvest       string  `json:"Harvest,omitempty"`
	Count         int     `json:"Count,omitempty"`
	IsDonation    bool    `json:"IsDonation"`
	ActualDate    string  `json:"ActualDate"`
	Note          string  `json:"Note,omitempty"`
}

// LabTestCreateRequest records a certificate of analysis against a package.
type LabTestCreateRequest struct {
	Label       string          `json:"Label"`
	ResultDate  string          `json:"ResultDate"`
	LabFacility string          `json:"LabFacilityName"`
	Results     []LabTestResult `json:"Results"`
}

// LabTestResult is one analyte row of a certificate of analysis.
type LabTestResult struct {
	TestTypeName string  `json:"LabTestTypeName"`
	Quantity     float64 `json:"Quantity"`
	Passed       bool    `json:"Passed"`
	Notes        string  `json:"Notes,omitempty"`
}

// LabTestRecord is an external lab test listing entry.
type LabTestRecord struct {
	ID            int64  `json:"Id"`
	Label         string `json:"Label"`
	TestTypeName  string `json:"TestTypeName"`
	OverallPassed bool   `json:"OverallPassed"`
	ResultDate    string `json:"ResultDate"`
}

// WasteDestroyRequest records a destruction transaction.
type WasteDestroyRequest struct {
	SourceType      string  `json:"SourceType"`
	SourceName      string  `json:"SourceName"`
	Weight          float64 `json:"Weight"`
	UnitOfWeight    string  `json:"UnitOfWeight"`
	WasteReason     string  `json:"WasteReasonName"`
	RenderingMethod string  `json:"MethodName"`
	ActualDate      string  `json:"ActualDate"`
	Note            string  `json:"Note,omitempty"`
}

// WasteTransaction is the ledger's record of a completed destruction.
type WasteTransaction struct {
	ID            int64  `json:"Id"`
	TransactionID string `json:"TransactionId"`
	SourceName    string `json:"SourceName"`
	ActualDate    string `json:"ActualDate"`
}

// Transfer is an external transfer manifest summary.
type Transfer struct {
	ID              int64  `json:"Id"`
	ManifestNumber  string `json:"ManifestNumber"`
	ShipperLicense  string `json:"ShipperFacilityLicenseNumber"`
	DeliveryCount   int    `json:"DeliveryCount"`
	CreatedDateTime string `json:"CreatedDateTime"`
}

// dateFormat is the wire format the ledger accepts for date-only fields.
const dateFormat = "2006-01-02"

// FormatDate renders t in the ledger's date-only wire format.
func FormatDate(t time.Time) string {
	return t.Format(dateFormat)
}
