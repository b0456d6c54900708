package types

// SlotLabelLayout is the MM/DD HH:MM form used for visit times throughout the
// planning pipeline. Labels sort chronologically as plain strings.
const SlotLabelLayout = "01/02 15:04"

// PlannedSlot is the planner's assignment of a catalog category to a time slot.
type PlannedSlot struct {
	VisitTime string `json:"visit_time"` // MM/DD HH:MM
	Category  string `json:"category"`
}

// ScoredSlot is one assembled itinerary entry. Planned slots with no
// unselected candidate left are dropped from the itinerary, so Item is always
// set.
type ScoredSlot struct {
	VisitTime string       `json:"visit_time"`
	Category  string       `json:"category"`
	Item      *CatalogItem `json:"item"`
	Score     float64      `json:"score"`
}

// Itinerary is the chronological plan for one catalog. No two slots across
// the whole itinerary reference the same CatalogItem name.
type Itinerary struct {
	Kind  CatalogKind  `json:"kind"`
	Slots []ScoredSlot `json:"slots"`
}

// TripPlan is the final pipeline output: one itinerary per catalog.
type TripPlan struct {
	Preferences string    `json:"preferences"` // LLM prose description of the request
	Restaurants Itinerary `json:"restaurants"`
	TourSpots   Itinerary `json:"tour_spots"`
}
