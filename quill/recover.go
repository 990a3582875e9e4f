package quill

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RecoveredDocument is the outcome of Recover. Exactly one of Value (with
// OK set) or Diagnostic is meaningful.
type RecoveredDocument[T any] struct {
	Value T
	OK    bool

	// Diagnostic explains why nothing could be recovered.
	Diagnostic string
	// RawText is the original model text, kept on failure for display.
	RawText string
	// Strategy names the strategy that produced Value.
	Strategy string
}

// strategy extracts a JSON candidate from model text. Strategies are pure;
// a candidate only wins if it also decodes into the caller's type.
type strategy struct {
	name string
	fn   func(text string) (string, bool)
	// arrayOnly strategies run only when an array is expected.
	arrayOnly bool
}

// recoveryStrategies is the ordered cascade; the first success wins.
var recoveryStrategies = []strategy{
	{name: "direct", fn: parseDirect},
	{name: "fenced", fn: parseFenced},
	{name: "span", fn: parseSpan},
	{name: "negative", fn: negativeResult, arrayOnly: true},
	{name: "repair", fn: repairJSON},
}

type recoverOptions struct {
	expectArray bool
}

// RecoverOption adjusts Recover.
type RecoverOption func(*recoverOptions)

// ExpectArray marks the expected value as a JSON array even when T does not
// say so (for example T = any).
func ExpectArray() RecoverOption {
	return func(o *recoverOptions) { o.expectArray = true }
}

// Recover coerces free-form model text into a T. It never returns an error:
// failure is reported in the document together with the raw text.
func Recover[T any](raw string, opts ...RecoverOption) RecoveredDocument[T] {
	var o recoverOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.expectArray {
		switch reflect.TypeFor[T]().Kind() {
		case reflect.Slice, reflect.Array:
			o.expectArray = true
		}
	}

	for _, s := range recoveryStrategies {
		if s.arrayOnly && !o.expectArray {
			continue
		}
		candidate, ok := s.fn(raw)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err != nil {
			continue
		}
		return RecoveredDocument[T]{Value: v, OK: true, Strategy: s.name}
	}

	return RecoveredDocument[T]{
		Diagnostic: fmt.Sprintf("could not recover a %v from the model response", reflect.TypeFor[T]()),
		RawText:    raw,
	}
}

// parseDirect accepts the trimmed text if it is valid JSON, or valid once
// trailing commas are removed.
func parseDirect(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", false
	}
	if json.Valid([]byte(s)) {
		return s, true
	}
	fixed := dropTrailingCommas(s)
	if fixed != s && json.Valid([]byte(fixed)) {
		return fixed, true
	}
	return "", false
}

// dropTrailingCommas removes commas that are followed only by whitespace and
// a closing bracket. Text inside JSON strings is left alone.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\\r?\\n?(.*?)```")

// parseFenced looks inside the first ``` block.
func parseFenced(text string) (string, bool) {
	m := fencedBlock.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return parseDirect(m[1])
}

// parseSpan extracts the outermost [...] or {...} region. The array span is
// tried first when both exist, since list-of-objects is the usual shape.
func parseSpan(text string) (string, bool) {
	arr, hasArr := span(text, '[', ']')
	obj, hasObj := span(text, '{', '}')

	var order []string
	switch {
	case hasArr && hasObj:
		order = []string{arr, obj}
	case hasArr:
		order = []string{arr}
	case hasObj:
		order = []string{obj}
	}
	for _, candidate := range order {
		if s, ok := parseDirect(candidate); ok {
			return s, true
		}
	}
	return "", false
}

func span(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// negativePhrases are answers models give in prose when a list is empty.
var negativePhrases = []string{
	"no issues found",
	"no issues were found",
	"no problems found",
	"no problems were found",
	"未发现问题",
	"未发现任何问题",
	"没有发现问题",
	"没有发现任何问题",
	"未发现明显问题",
}

func negativeResult(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range negativePhrases {
		if strings.Contains(lower, p) {
			return "[]", true
		}
	}
	return "", false
}

// repairJSON hands everything from the first bracket onwards to jsonrepair,
// which copes with truncated output and unquoted keys.
func repairJSON(text string) (string, bool) {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return "", false
	}
	repaired, err := jsonrepair.JSONRepair(text[start:])
	if err != nil || !json.Valid([]byte(repaired)) {
		return "", false
	}
	return repaired, true
}
