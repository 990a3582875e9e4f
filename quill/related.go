package quill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RelatedQuery asks the knowledge base for chunks similar to Text.
type RelatedQuery struct {
	Text       string `json:"text"`
	Collection string `json:"collection_name"`
	TopK       int    `json:"top_k"`
}

// RelatedDocument is one retrieved chunk.
type RelatedDocument struct {
	SourceFile   string  `json:"source_file"`
	ContentChunk string  `json:"content_chunk"`
	Score        float64 `json:"score"`
}

type relatedResponse struct {
	RelatedDocuments []RelatedDocument `json:"related_documents"`
	Error            string            `json:"error,omitempty"`
}

const defaultRelatedTopK = 5

// FindRelated queries the backend's /find-related retrieval service. It is
// not retried.
func (c *Client) FindRelated(ctx context.Context, q RelatedQuery) ([]RelatedDocument, error) {
	if q.TopK <= 0 {
		q.TopK = defaultRelatedTopK
	}
	bp, err := newBackendProvider(c.cfg, c.sleep)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("quill: marshal related query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	plan := c.plan(ProviderConfig{ID: "knowledge-base"}, ModeBackendProxy, InvocationRequest{Prompt: q.Text})
	resp, err := bp.post(ctx, plan, "/find-related", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out relatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("quill: decode related documents: %w", err)
	}
	if out.Error != "" {
		return nil, &UpstreamError{Provider: "knowledge-base", StatusCode: resp.StatusCode, Body: out.Error, Attempts: 1}
	}
	return out.RelatedDocuments, nil
}

// BuildContextPrompt prefixes a system instruction with retrieved chunks so
// the model answers from the knowledge base.
func BuildContextPrompt(system string, docs []RelatedDocument) string {
	if len(docs) == 0 {
		return system
	}
	var b strings.Builder
	b.WriteString("Use the following reference material when answering. Cite the source file when you rely on it.\n\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n%s\n\n", i+1, d.SourceFile, d.Score, strings.TrimSpace(d.ContentChunk))
	}
	if system != "" {
		b.WriteString(system)
	}
	return strings.TrimRight(b.String(), "\n")
}
