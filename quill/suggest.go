package quill

import "strings"

// ApplySuggestion replaces the first occurrence of the issue's problematic
// text with its suggestion. It reports false when the text is not found.
func ApplySuggestion(text string, is Issue) (string, bool) {
	i := strings.Index(text, is.ProblematicText)
	if i < 0 || is.ProblematicText == "" {
		return text, false
	}
	return text[:i] + is.Suggestion + text[i+len(is.ProblematicText):], true
}

// SuggestionDiff shows what accepting the suggestion changes.
func SuggestionDiff(is Issue) []DiffSpan {
	return DiffText(is.ProblematicText, is.Suggestion)
}
