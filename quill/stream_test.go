package quill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"
	"unicode/utf8"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

// collect drains a stream, failing the test if it does not close in time.
func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events so far", len(out))
		}
	}
}

func chunkText(events []StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == EventTypeChunk {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestStream_RESTCompatibleSSE(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testboil.FailTestIfDiff(t, r.URL.Path, "/v1/chat/completions")
		testboil.FailTestIfDiff(t, r.Header.Get("Accept"), "text/event-stream")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// Frames are cut mid-line on purpose.
		parts := []string{
			`data: {"choices":[{"delta":{"content":"Hel`,
			`lo"}}]}` + "\n\n" + `data: {"choices":[{"delta":{"content":", wor`,
			`ld"}}]}` + "\n\n",
			": keep-alive\n\n",
			"data: [DONE]\n\n",
		}
		for _, p := range parts {
			fmt.Fprint(w, p)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{})
	resp, err := c.Stream(context.Background(), restProvider(srv.URL), ModeFrontendDirect, InvocationRequest{
		System: "sys",
		Prompt: "say hello",
		History: []ChatTurn{
			{Role: RoleModel, Content: "greeting", Synthetic: true},
			{Role: RoleUser, Content: "earlier"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatal("expected a request id")
	}

	events := collect(t, resp.Events)
	testboil.FailTestIfDiff(t, chunkText(events), "Hello, world")
	last := events[len(events)-1]
	testboil.FailTestIfDiff(t, last.Type, EventTypeComplete)
	for _, ev := range events[:len(events)-1] {
		if ev.Type != EventTypeChunk {
			t.Fatalf("unexpected %v before the terminal event", ev.Type)
		}
	}

	testboil.FailTestIfDiff(t, body["stream"], any(true))
	msgs := body["messages"].([]any)
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.(map[string]any)["content"].(string))
	}
	testboil.FailTestIfDiff(t, strings.Join(contents, "|"), "sys|earlier|say hello")
}

func TestStream_RESTCompatibleUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{})
	resp, err := c.Stream(context.Background(), restProvider(srv.URL), ModeFrontendDirect, InvocationRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, resp.Events)
	if len(events) != 1 || events[0].Type != EventTypeFailure {
		t.Fatalf("expected a single failure, got %v", events)
	}
	var ue *UpstreamError
	if !errors.As(events[0].Err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", events[0].Err)
	}
	testboil.FailTestIfDiff(t, ue.StatusCode, http.StatusUnauthorized)
	testboil.AssertStringContains(t, ue.Body, "invalid key")
}

func TestStream_Backend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testboil.FailTestIfDiff(t, r.URL.Path, "/generate-stream")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		flusher := w.(http.Flusher)
		for _, p := range []string{"# Title\n", "Some ", "body text"} {
			fmt.Fprint(w, p)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	budget := 1024
	c, _ := newTestClient(Config{BackendURL: srv.URL})
	resp, err := c.Stream(context.Background(), backendProviderCfg, ModeBackendProxy, InvocationRequest{
		Prompt:         "write",
		ThinkingBudget: &budget,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, resp.Events)
	testboil.FailTestIfDiff(t, chunkText(events), "# Title\nSome body text")
	testboil.FailTestIfDiff(t, events[len(events)-1].Type, EventTypeComplete)
	testboil.FailTestIfDiff(t, body["thinkingBudget"], any(float64(1024)))
	testboil.FailTestIfDiff(t, body["provider"], any("gemini"))
}

func TestStream_BackendIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, delays := newTestClient(Config{BackendURL: srv.URL})
	resp, err := c.Stream(context.Background(), backendProviderCfg, ModeBackendProxy, InvocationRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, resp.Events)
	testboil.FailTestIfDiff(t, len(events), 1)
	testboil.FailTestIfDiff(t, events[0].Type, EventTypeFailure)
	testboil.FailTestIfDiff(t, hits.Load(), int32(1))
	testboil.FailTestIfDiff(t, len(*delays), 0)
}

func TestStream_CancelEmitsNoTerminalEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "first")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{BackendURL: srv.URL})
	resp, err := c.Stream(context.Background(), backendProviderCfg, ModeBackendProxy, InvocationRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ev := <-resp.Events:
		testboil.FailTestIfDiff(t, ev.Type, EventTypeChunk)
		testboil.FailTestIfDiff(t, ev.Text, "first")
	case <-time.After(5 * time.Second):
		t.Fatal("no first chunk")
	}
	resp.Cancel()

	for _, ev := range collect(t, resp.Events) {
		if ev.Type != EventTypeChunk {
			t.Fatalf("cancelled stream delivered %v", ev.Type)
		}
	}
}

func TestStream_SetupErrorIsReturnedSynchronously(t *testing.T) {
	c, _ := newTestClient(Config{})
	_, err := c.Stream(context.Background(), ProviderConfig{ID: "qwen", Transport: TransportRESTCompatible}, ModeFrontendDirect, InvocationRequest{})
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestReadText_KeepsRunesWhole(t *testing.T) {
	text := "漢字 and émoji 🙂 end"
	var got []string
	err := readText(context.Background(), iotest.OneByteReader(strings.NewReader(text)), "gemini", "http://backend/generate-stream", func(s string) {
		got = append(got, s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, strings.Join(got, ""), text)
	for _, s := range got {
		if !utf8.ValidString(s) {
			t.Fatalf("emitted a broken rune: %q", s)
		}
	}
}

func TestReadText_NetworkErrorMidStream(t *testing.T) {
	r := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("connection reset")))
	var got bytes.Buffer
	err := readText(context.Background(), r, "deepseek", "http://backend:5000/generate-stream", func(s string) { got.WriteString(s) })
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	testboil.FailTestIfDiff(t, ne.Provider, "deepseek")
	testboil.FailTestIfDiff(t, ne.URL, "http://backend:5000/generate-stream")
	testboil.FailTestIfDiff(t, got.String(), "partial")
}

func TestCompleteUTF8Prefix(t *testing.T) {
	full := []byte("a€")
	testCases := []struct {
		in   []byte
		want int
	}{
		{[]byte("abc"), 3},
		{full, len(full)},
		{full[:2], 1},
		{full[:3], 1},
		{[]byte{}, 0},
		{[]byte{0xff}, 1},
	}
	for _, tc := range testCases {
		testboil.FailTestIfDiff(t, completeUTF8Prefix(tc.in), tc.want)
	}
}
