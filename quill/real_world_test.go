package quill

import (
	"context"
	"os"
	"testing"
	"time"
)

func liveProvider(t *testing.T, p ProviderConfig, keyEnv string) ProviderConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping real-world test in short mode")
	}
	p.APIKey = os.Getenv(keyEnv)
	if p.APIKey == "" {
		t.Skipf("Skipping real-world test, %s is not set", keyEnv)
	}
	return p
}

// TestRealWorld_Gemini_Stream streams a short answer over the native transport.
func TestRealWorld_Gemini_Stream(t *testing.T) {
	p := liveProvider(t, ProviderConfig{ID: "gemini", Transport: TransportNative, Model: "gemini-2.5-flash"}, "GEMINI_API_KEY")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := New(Config{}).Stream(ctx, p, ModeFrontendDirect, InvocationRequest{Prompt: "Count from 1 to 5, one number per line."})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	events := collect(t, resp.Events)
	if last := events[len(events)-1]; last.Type != EventTypeComplete {
		t.Fatalf("Expected completion, got %v (%v)", last.Type, last.Err)
	}
	t.Logf("✓ Streamed %d event(s): %q", len(events), chunkText(events))
}

// TestRealWorld_DeepSeek_Audit asks a REST-compatible provider for issues.
func TestRealWorld_DeepSeek_Audit(t *testing.T) {
	p := liveProvider(t, ProviderConfig{
		ID:        "deepseek",
		Transport: TransportRESTCompatible,
		Endpoint:  "https://api.deepseek.com/v1",
		Model:     "deepseek-chat",
	}, "DEEPSEEK_API_KEY")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res := New(Config{}).Audit(ctx, ModeFrontendDirect, InvocationRequest{
		System: `Find spelling mistakes. Answer with JSON {"issues":[{"problematicText","suggestion","checklistItem","explanation"}]}.`,
		Prompt: "Teh quick brown fox jumpd over the lazy dog.",
	}, []ProviderConfig{p})[0]
	if res.Err != nil {
		t.Fatalf("Audit failed: %v (raw %q)", res.Err, res.Raw)
	}
	t.Logf("✓ %d issue(s) via %s", len(res.Issues), res.Document.Strategy)
}
