package quill

import "regexp"

// SpanKind classifies a DiffSpan.
type SpanKind int

const (
	SpanCommon SpanKind = iota
	SpanAdded
	SpanRemoved
)

func (k SpanKind) String() string {
	switch k {
	case SpanCommon:
		return "common"
	case SpanAdded:
		return "added"
	case SpanRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// DiffSpan is one piece of a diff.
type DiffSpan struct {
	Text string
	Kind SpanKind
}

var tokenPattern = regexp.MustCompile(`\s+|\S+`)

// Tokenize splits s into alternating whitespace and non-whitespace runs.
// Joining the tokens gives back s exactly.
func Tokenize(s string) []string {
	return tokenPattern.FindAllString(s, -1)
}

// Diff computes a token-level diff of a and b with a longest common
// subsequence table. It emits one span per token; dropping the removed spans
// leaves b, dropping the added spans leaves a.
//
// When the table allows either, an added step is taken before a removed one
// while walking back from the end, so a replaced token comes out as
// removed-then-added. Time and memory are O(len(a)*len(b)).
func Diff(a, b []string) []DiffSpan {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	spans := make([]DiffSpan, 0, max(n, m))
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			spans = append(spans, DiffSpan{Text: a[i-1], Kind: SpanCommon})
			i--
			j--
		case j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]):
			spans = append(spans, DiffSpan{Text: b[j-1], Kind: SpanAdded})
			j--
		default:
			spans = append(spans, DiffSpan{Text: a[i-1], Kind: SpanRemoved})
			i--
		}
	}

	for l, r := 0, len(spans)-1; l < r; l, r = l+1, r-1 {
		spans[l], spans[r] = spans[r], spans[l]
	}
	return spans
}

// Coalesce merges neighbouring spans of the same kind.
func Coalesce(spans []DiffSpan) []DiffSpan {
	out := make([]DiffSpan, 0, len(spans))
	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		if k := len(out) - 1; k >= 0 && out[k].Kind == s.Kind {
			out[k].Text += s.Text
			continue
		}
		out = append(out, s)
	}
	return out
}

// DiffText diffs two strings word by word and merges the result.
func DiffText(a, b string) []DiffSpan {
	return Coalesce(Diff(Tokenize(a), Tokenize(b)))
}

// Reconstruct joins the spans that are not of the excluded kind.
func Reconstruct(spans []DiffSpan, exclude SpanKind) string {
	var n int
	for _, s := range spans {
		if s.Kind != exclude {
			n += len(s.Text)
		}
	}
	buf := make([]byte, 0, n)
	for _, s := range spans {
		if s.Kind != exclude {
			buf = append(buf, s.Text...)
		}
	}
	return string(buf)
}
