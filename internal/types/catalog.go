package types

// CatalogKind selects one of the two read-only candidate datasets.
type CatalogKind string

const (
	CatalogRestaurants CatalogKind = "restaurants"
	CatalogTourSpots   CatalogKind = "tour_spots"
)

// CatalogItem is one candidate row from a catalog. Rows are immutable
// reference data; Name is unique within a catalog. SafetyScore is the raw
// neighborhood crime figure for the row and is nil for catalogs that do not
// carry the column.
type CatalogItem struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Website     string    `json:"website"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	WebSummary  string    `json:"web_summary"`
	Embedding   []float32 `json:"-"`
	SafetyScore *float64  `json:"safety_score,omitempty"`
}

// CatalogFilter narrows a catalog query: category equality plus a name
// exclusion list (items already placed in the itinerary).
type CatalogFilter struct {
	Category     string
	ExcludeNames []string
}
