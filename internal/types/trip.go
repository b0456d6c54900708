package types

import (
	"encoding/json"
	"fmt"
)

// TripAttribute is one of the fixed schema keys collected during the dialogue.
type TripAttribute string

const (
	AttrDestination         TripAttribute = "destination"
	AttrPurpose             TripAttribute = "purpose"
	AttrTravelerAge         TripAttribute = "traveler_age"
	AttrNumberOfPeople      TripAttribute = "number_of_people"
	AttrStartDate           TripAttribute = "start_date"
	AttrEndDate             TripAttribute = "end_date"
	AttrBudget              TripAttribute = "budget"
	AttrFoodPreferences     TripAttribute = "food_preferences"
	AttrActivityPreferences TripAttribute = "activity_preferences"
	AttrNotes               TripAttribute = "notes"
)

// TripAttributeOrder is the fixed question order. The dialogue controller walks
// this slice front to back and never revisits a key once it is set.
var TripAttributeOrder = []TripAttribute{
	AttrDestination,
	AttrPurpose,
	AttrTravelerAge,
	AttrNumberOfPeople,
	AttrStartDate,
	AttrEndDate,
	AttrBudget,
	AttrFoodPreferences,
	AttrActivityPreferences,
	AttrNotes,
}

// DateAttributes require values normalized to MM/DD.
var DateAttributes = map[TripAttribute]bool{
	AttrStartDate: true,
	AttrEndDate:   true,
}

// TripSchema holds the collected trip attributes. Keys are fixed at
// construction; values only ever transition from unset (empty string) to set.
type TripSchema struct {
	values map[TripAttribute]string
}

func NewTripSchema() TripSchema {
	return TripSchema{values: make(map[TripAttribute]string, len(TripAttributeOrder))}
}

func (s TripSchema) Get(key TripAttribute) string {
	return s.values[key]
}

func (s TripSchema) IsSet(key TripAttribute) bool {
	return s.values[key] != ""
}

// Set records a validated value for key. Unknown keys and empty values are
// rejected, and a key already set cannot be overwritten.
func (s TripSchema) Set(key TripAttribute, value string) error {
	known := false
	for _, k := range TripAttributeOrder {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown trip attribute %q", key)
	}
	if value == "" {
		return fmt.Errorf("empty value for trip attribute %q", key)
	}
	if s.values[key] != "" {
		return fmt.Errorf("trip attribute %q already set", key)
	}
	s.values[key] = value
	return nil
}

// FirstUnset returns the next attribute to ask about, in declaration order.
func (s TripSchema) FirstUnset() (TripAttribute, bool) {
	for _, k := range TripAttributeOrder {
		if s.values[k] == "" {
			return k, true
		}
	}
	return "", false
}

func (s TripSchema) Complete() bool {
	_, unset := s.FirstUnset()
	return !unset
}

// Clone returns an independent copy so DialogueState can be handled by value.
func (s TripSchema) Clone() TripSchema {
	c := NewTripSchema()
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// RequestJSON renders the schema as the customer-request JSON fed to planner
// and preference-description prompts. Unset keys serialize as empty strings.
func (s TripSchema) RequestJSON() string {
	ordered := make(map[string]string, len(TripAttributeOrder))
	for _, k := range TripAttributeOrder {
		ordered[string(k)] = s.values[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		// Only string keys and values are marshalled, this cannot fail.
		panic(fmt.Sprintf("marshal trip schema: %v", err))
	}
	return string(b)
}
