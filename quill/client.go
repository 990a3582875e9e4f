package quill

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Client is the gateway every feature uses to reach a model. It holds no
// per-conversation or per-provider state, so one Client may serve
// concurrent calls.
type Client struct {
	cfg   Config
	sleep sleepFunc
}

// New creates a Client with the given config.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults(), sleep: sleepContext}
}

// Generate executes a one-shot request and returns the raw model answer.
// In backend-proxy mode failed attempts are retried per Config.Retry;
// frontend-direct calls fail fast.
func (c *Client) Generate(ctx context.Context, p ProviderConfig, mode ExecutionMode, req InvocationRequest) (string, error) {
	plan := c.plan(p, mode, req)

	// Backend attempts carry their own deadline inside the retry loop.
	if mode == ModeFrontendDirect {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	pc, err := c.ensureProvider(ctx, p, mode)
	if err != nil {
		plan.Logger.Error("provider setup failed", slog.String("error", err.Error()))
		return "", err
	}

	plan.Logger.Debug("generate")
	text, err := pc.Text(ctx, plan)
	if err != nil {
		plan.Logger.Error("generate failed", slog.String("error", err.Error()))
		return "", err
	}
	plan.Logger.Debug("generate finished", slog.Int("response_bytes", len(text)))
	return text, nil
}

func (c *Client) plan(p ProviderConfig, mode ExecutionMode, req InvocationRequest) callPlan {
	id := uuid.NewString()
	logger := c.cfg.Logger.With(
		slog.String("request_id", id),
		slog.String("provider", p.ID),
		slog.String("mode", mode.String()),
	)
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		logger = logger.With(slog.Int("est_prompt_tokens", estimatePromptTokens(req)))
	}
	return newCallPlan(p, req, id, logger)
}

// ensureProvider selects the transport for one call. Transports are built
// per call and dropped afterwards.
func (c *Client) ensureProvider(ctx context.Context, p ProviderConfig, mode ExecutionMode) (providerClient, error) {
	switch mode {
	case ModeBackendProxy:
		if p.ID == "" {
			return nil, configErr("", "ID", "provider ID is required in backend-proxy mode")
		}
		return newBackendProvider(c.cfg, c.sleep)
	case ModeFrontendDirect:
		switch p.Transport {
		case TransportNative:
			return newGoogleProvider(ctx, p, c.cfg.HTTPClient)
		case TransportRESTCompatible:
			return newOpenAIProvider(p, c.cfg.HTTPClient)
		default:
			return nil, configErr(p.ID, "Transport", "unsupported transport %q", p.Transport)
		}
	default:
		return nil, configErr(p.ID, "Mode", "unknown execution mode %d", int(mode))
	}
}
