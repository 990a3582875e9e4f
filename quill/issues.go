package quill

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIssueFormat is returned when a recovered value is not an issue list in
// any accepted shape.
var ErrIssueFormat = errors.New("quill: response is not an issue list")

// Issue is one finding of an audit or writing review.
type Issue struct {
	ProblematicText string `json:"problematicText"`
	Suggestion      string `json:"suggestion"`
	ChecklistItem   string `json:"checklistItem"`
	Explanation     string `json:"explanation"`
}

// issueFields are the keys every issue must carry as non-empty text.
var issueFields = []string{"problematicText", "suggestion", "checklistItem", "explanation"}

// NormalizeIssues accepts a bare array, an object with an "issues" field, or
// a single issue-shaped object, and returns the valid issues it contains.
// Invalid elements are dropped; only an unrecognised overall shape is an
// error.
func NormalizeIssues(v any) ([]Issue, error) {
	var elems []any
	switch t := v.(type) {
	case []any:
		elems = t
	case map[string]any:
		if list, ok := t["issues"]; ok {
			arr, ok := list.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: \"issues\" is %T, not an array", ErrIssueFormat, list)
			}
			elems = arr
		} else if issueShaped(t) {
			elems = []any{t}
		} else {
			return nil, fmt.Errorf("%w: object has neither \"issues\" nor issue fields", ErrIssueFormat)
		}
	default:
		return nil, fmt.Errorf("%w: got %T", ErrIssueFormat, v)
	}

	out := make([]Issue, 0, len(elems))
	for _, e := range elems {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if is, ok := validateIssue(m); ok {
			out = append(out, is)
		}
	}
	return out, nil
}

func issueShaped(m map[string]any) bool {
	for _, f := range issueFields {
		if _, ok := m[f]; ok {
			return true
		}
	}
	return false
}

// validateIssue checks that every required field is a non-blank string.
func validateIssue(m map[string]any) (Issue, bool) {
	vals := make([]string, len(issueFields))
	for i, f := range issueFields {
		s, ok := m[f].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return Issue{}, false
		}
		vals[i] = s
	}
	return Issue{
		ProblematicText: vals[0],
		Suggestion:      vals[1],
		ChecklistItem:   vals[2],
		Explanation:     vals[3],
	}, true
}

// ParseIssues recovers and normalizes an issue list from model text. The
// returned document keeps the raw text when recovery failed.
func ParseIssues(raw string) ([]Issue, RecoveredDocument[any], error) {
	doc := Recover[any](raw, ExpectArray())
	if !doc.OK {
		return nil, doc, fmt.Errorf("%w: %s", ErrIssueFormat, doc.Diagnostic)
	}
	issues, err := NormalizeIssues(doc.Value)
	if err != nil {
		return nil, doc, err
	}
	return issues, doc, nil
}
