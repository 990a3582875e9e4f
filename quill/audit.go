package quill

import (
	"context"
	"log/slog"
	"sync"
)

// AuditResult holds one provider's outcome of a multi-model audit. Either
// Err is set, or Issues (possibly empty) with the recovery document.
type AuditResult struct {
	Provider string
	Issues   []Issue
	Document RecoveredDocument[any]
	Raw      string
	Err      error
}

// Audit sends the same request to every provider concurrently and parses
// each answer as an issue list. Results keep the order of providers; one
// provider failing never affects the others.
func (c *Client) Audit(ctx context.Context, mode ExecutionMode, req InvocationRequest, providers []ProviderConfig) []AuditResult {
	req.StructuredJSON = true

	results := make([]AuditResult, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.auditOne(ctx, mode, req, p)
		}()
	}
	wg.Wait()
	return results
}

func (c *Client) auditOne(ctx context.Context, mode ExecutionMode, req InvocationRequest, p ProviderConfig) AuditResult {
	res := AuditResult{Provider: p.ID}

	raw, err := c.Generate(ctx, p, mode, req)
	if err != nil {
		res.Err = err
		return res
	}
	res.Raw = raw

	issues, doc, err := ParseIssues(raw)
	res.Document = doc
	if err != nil {
		c.cfg.Logger.Warn("audit response not recoverable",
			slog.String("provider", p.ID),
			slog.String("error", err.Error()))
		res.Err = err
		return res
	}
	res.Issues = issues
	return res
}
