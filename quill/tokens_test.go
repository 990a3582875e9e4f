package quill

import "testing"

func TestEstimateTokens(t *testing.T) {
	if n := EstimateTokens(""); n != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", n)
	}
	short := EstimateTokens("hello world")
	long := EstimateTokens("hello world, this sentence is clearly a good deal longer than the first one")
	if short <= 0 || long <= short {
		t.Fatalf("expected 0 < short < long, got %d and %d", short, long)
	}

	withSynthetic := estimatePromptTokens(InvocationRequest{
		Prompt:  "hello world",
		History: []ChatTurn{{Role: RoleModel, Content: "a long greeting that is never sent", Synthetic: true}},
	})
	if withSynthetic != short {
		t.Fatalf("synthetic turns must not count, got %d want %d", withSynthetic, short)
	}
}
