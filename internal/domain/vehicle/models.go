package vehicle

// Row is a single object from an RDW open data array.
type Row = map[string]any

// Record is the merged view of every dataset queried for one plate.
type Record struct {
	Plate    string  `json:"kenteken"`
	VIN      *string `json:"chassisnummer"`
	Vehicle  Row     `json:"voertuig"`
	Fuel     []Row   `json:"brandstoffen"`
	Body     Row     `json:"carrosserie,omitempty"`
	BodySpec Row     `json:"carrosserie_specificatie,omitempty"`
}

// LookupResult is what the API returns for a successful lookup.
type LookupResult struct {
	Cached bool `json:"cached"`
	*Record
}
