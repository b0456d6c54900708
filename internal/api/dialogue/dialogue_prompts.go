package dialogue

import (
	"fmt"

	"github.com/sakatoku/sakarctic/internal/types"
)

var attributeHints = map[types.TripAttribute]string{
	types.AttrDestination:         `"Sapporo"`,
	types.AttrPurpose:             `"sightseeing with local food"`,
	types.AttrTravelerAge:         `"34"`,
	types.AttrNumberOfPeople:      `"2"`,
	types.AttrStartDate:           `"07/15"`,
	types.AttrEndDate:             `"07/18"`,
	types.AttrBudget:              `"about 2000 dollars"`,
	types.AttrFoodPreferences:     `"seafood and ramen"`,
	types.AttrActivityPreferences: `"museums and nature walks"`,
	types.AttrNotes:               `"traveling with a stroller, no long walks"`,
}

func generateQuestionPrompt(attribute types.TripAttribute) string {
	return fmt.Sprintf(`
        You are a travel planning assistant collecting trip details from a customer.
        Write one short, friendly question asking the customer for their "%s".
        An example of the kind of answer you expect is %s.
        Return only the question text with no preamble and no formatting.`,
		attribute, attributeHints[attribute])
}

func generateValidationPrompt(attribute types.TripAttribute, question, reply string) string {
	return fmt.Sprintf(`
        A travel planning assistant asked a customer the following question about their "%s":
        %q
        The customer replied:
        %q
        Judge whether the reply actually answers the question.
        Return the response STRICTLY as a JSON object with:
        {
        "answer": <true if the reply answers the question, false otherwise>
        }`, attribute, question, reply)
}

func generateExtractionPrompt(attribute types.TripAttribute, question, reply string) string {
	formatHint := "a short plain-text value"
	if types.DateAttributes[attribute] {
		formatHint = `a date formatted exactly as MM/DD, e.g. "07/15"`
	}
	return fmt.Sprintf(`
        A travel planning assistant asked a customer the following question about their "%s":
        %q
        The customer replied:
        %q
        Extract the value of "%s" from the reply as %s.
        Return the response STRICTLY as a JSON object with:
        {
        "%s": "the extracted value"
        }`, attribute, question, reply, attribute, formatHint, attribute)
}
