package quill

import (
	"context"
	"log/slog"
)

// Stream executes a streaming request. Events are delivered on the returned
// channel from a background goroutine; the call itself does not block on the
// network.
func (c *Client) Stream(ctx context.Context, p ProviderConfig, mode ExecutionMode, req InvocationRequest) (*StreamResponse, error) {
	plan := c.plan(p, mode, req)

	streamCtx, cancel := context.WithCancel(ctx)

	pc, err := c.ensureProvider(streamCtx, p, mode)
	if err != nil {
		cancel()
		plan.Logger.Error("provider setup failed", slog.String("error", err.Error()))
		return nil, err
	}

	events := make(chan StreamEvent, c.cfg.StreamBufferSize)
	so := &streamOrchestrator{
		ctx:      streamCtx,
		cancel:   cancel,
		provider: pc,
		plan:     plan,
		events:   events,
	}
	go so.run()

	return &StreamResponse{
		Events:    events,
		Cancel:    cancel,
		RequestID: plan.RequestID,
	}, nil
}

// streamOrchestrator manages the lifecycle of a stream.
type streamOrchestrator struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider providerClient
	plan     callPlan
	events   chan StreamEvent
	chunks   int
}

func (so *streamOrchestrator) run() {
	defer close(so.events)
	defer so.cancel()

	so.plan.Logger.Debug("stream started")
	err := so.provider.Stream(so.ctx, so.plan, so.sendChunk)

	if so.ctx.Err() != nil {
		so.plan.Logger.Debug("stream cancelled", slog.Int("chunks", so.chunks))
		return
	}
	if err != nil {
		so.plan.Logger.Error("stream failed", slog.Int("chunks", so.chunks), slog.String("error", err.Error()))
		so.send(Failure(err))
		return
	}
	so.plan.Logger.Debug("stream finished", slog.Int("chunks", so.chunks))
	so.send(Complete())
}

func (so *streamOrchestrator) sendChunk(text string) {
	if text == "" {
		return
	}
	if so.send(Chunk(text)) {
		so.chunks++
	}
}

func (so *streamOrchestrator) send(ev StreamEvent) bool {
	if so.ctx.Err() != nil {
		return false
	}
	select {
	case <-so.ctx.Done():
		return false
	case so.events <- ev:
		return true
	}
}
