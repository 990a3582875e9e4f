package quill

import (
	"context"
	"log/slog"
)

// providerClient is the internal interface each transport implements.
type providerClient interface {
	// Text performs a single request and returns the raw model answer.
	Text(ctx context.Context, plan callPlan) (string, error)
	// Stream performs a streaming request, handing every text unit to emit in
	// arrival order. It returns nil when the provider finished normally.
	Stream(ctx context.Context, plan callPlan, emit func(text string)) error
}

// callPlan is the normalized instruction set for one invocation.
type callPlan struct {
	Provider ProviderConfig
	Request  InvocationRequest
	// History is Request.History without synthetic turns.
	History []ChatTurn

	RequestID string
	Logger    *slog.Logger
}

func newCallPlan(p ProviderConfig, req InvocationRequest, requestID string, logger *slog.Logger) callPlan {
	return callPlan{
		Provider:  p,
		Request:   req,
		History:   providerHistory(req.History),
		RequestID: requestID,
		Logger:    logger,
	}
}
