package quill

import (
	"errors"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

func TestParseIssues_FencedScenario(t *testing.T) {
	raw := "Result:\n```json\n[{\"problematicText\":\"x\",\"suggestion\":\"y\",\"checklistItem\":\"z\",\"explanation\":\"w\"}]\n```"
	issues, doc, err := ParseIssues(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, doc.Strategy, "fenced")
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	want := Issue{ProblematicText: "x", Suggestion: "y", ChecklistItem: "z", Explanation: "w"}
	testboil.FailTestIfDiff(t, issues[0], want)
}

func TestNormalizeIssues_Shapes(t *testing.T) {
	valid := map[string]any{
		"problematicText": "teh",
		"suggestion":      "the",
		"checklistItem":   "spelling",
		"explanation":     "typo",
	}
	testCases := []struct {
		name    string
		in      any
		want    int
		wantErr bool
	}{
		{"bare array", []any{valid, valid}, 2, false},
		{"issues field", map[string]any{"issues": []any{valid}}, 1, false},
		{"single object", valid, 1, false},
		{"empty array", []any{}, 0, false},
		{"issues not array", map[string]any{"issues": "none"}, 0, true},
		{"unrelated object", map[string]any{"summary": "fine"}, 0, true},
		{"string", "nothing", 0, true},
		{"number", float64(3), 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeIssues(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrIssueFormat) {
					t.Fatalf("expected ErrIssueFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testboil.FailTestIfDiff(t, len(got), tc.want)
		})
	}
}

func TestNormalizeIssues_DropsInvalidElements(t *testing.T) {
	in := []any{
		map[string]any{"problematicText": "a", "suggestion": "b", "checklistItem": "c", "explanation": "d"},
		map[string]any{"problematicText": "a", "suggestion": "", "checklistItem": "c", "explanation": "d"},
		map[string]any{"problematicText": "a", "suggestion": "b", "checklistItem": "c"},
		map[string]any{"problematicText": 1, "suggestion": "b", "checklistItem": "c", "explanation": "d"},
		"not an object",
		map[string]any{"problematicText": "e", "suggestion": "f", "checklistItem": "g", "explanation": "h"},
	}
	got, err := NormalizeIssues(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 valid issues, got %d: %#v", len(got), got)
	}
	testboil.FailTestIfDiff(t, got[1].ProblematicText, "e")
}

func TestParseIssues_NoIssuesProse(t *testing.T) {
	issues, _, err := ParseIssues("未发现问题")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %d", len(issues))
	}
}

func TestParseIssues_Unrecoverable(t *testing.T) {
	_, doc, err := ParseIssues("The document looks mostly fine but I am unsure.")
	if !errors.Is(err, ErrIssueFormat) {
		t.Fatalf("expected ErrIssueFormat, got %v", err)
	}
	if doc.OK || doc.RawText == "" {
		t.Fatalf("expected a failed document with raw text, got %#v", doc)
	}
}
