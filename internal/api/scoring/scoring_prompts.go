package scoring

import "fmt"

func generatePreferenceDescriptionPrompt(request string) string {
	return fmt.Sprintf(`
        A customer described their upcoming trip as the following JSON:
        %s
        Write one short paragraph, in plain English, describing what this
        customer enjoys eating and doing while travelling. Focus on tastes and
        interests, not on dates or logistics.
        Return only the paragraph with no preamble and no formatting.`, request)
}
