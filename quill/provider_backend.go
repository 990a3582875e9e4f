package quill

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"
)

// maxErrorBodyBytes caps how much of a failed response body is kept.
const maxErrorBodyBytes = 2 << 10

// backendProvider talks to the backend-proxy contract. The backend owns the
// provider credentials; only the provider ID travels.
type backendProvider struct {
	baseURL string
	http    *http.Client
	cfg     Config
	sleep   sleepFunc
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireImage struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type generateBody struct {
	Provider          string      `json:"provider"`
	SystemInstruction string      `json:"systemInstruction"`
	UserPrompt        string      `json:"userPrompt"`
	JSONResponse      bool        `json:"jsonResponse"`
	Mode              string      `json:"mode,omitempty"`
	History           []wireTurn  `json:"history"`
	Images            []wireImage `json:"images,omitempty"`
}

type generateStreamBody struct {
	Provider          string     `json:"provider"`
	SystemInstruction string     `json:"systemInstruction"`
	UserPrompt        string     `json:"userPrompt"`
	History           []wireTurn `json:"history"`
	ThinkingBudget    *int       `json:"thinkingBudget,omitempty"`
}

func toWireTurns(turns []ChatTurn) []wireTurn {
	out := make([]wireTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, wireTurn{Role: string(t.Role), Content: t.Content})
	}
	return out
}

func toWireImages(images []Image) []wireImage {
	if len(images) == 0 {
		return nil
	}
	out := make([]wireImage, 0, len(images))
	for _, img := range images {
		out = append(out, wireImage{
			Data:     base64.StdEncoding.EncodeToString(img.Data),
			MIMEType: img.MIMEType,
		})
	}
	return out
}

func newBackendProvider(cfg Config, sleep sleepFunc) (*backendProvider, error) {
	if cfg.BackendURL == "" {
		return nil, configErr("backend", "BackendURL", "backend URL is required in backend-proxy mode")
	}
	return &backendProvider{baseURL: cfg.BackendURL, http: cfg.HTTPClient, cfg: cfg, sleep: sleep}, nil
}

// Text posts to /generate inside the fixed-delay retry loop.
func (p *backendProvider) Text(ctx context.Context, plan callPlan) (string, error) {
	body := generateBody{
		Provider:          plan.Provider.ID,
		SystemInstruction: plan.Request.System,
		UserPrompt:        plan.Request.Prompt,
		JSONResponse:      plan.Request.StructuredJSON,
		Mode:              plan.Request.Task,
		History:           toWireTurns(plan.History),
		Images:            toWireImages(plan.Request.Images),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("quill: marshal generate request: %w", err)
	}

	var out string
	attempts, err := withRetry(ctx, p.cfg.Retry, p.sleep, func(attempt int) error {
		text, err := p.generateOnce(ctx, plan, payload)
		if err != nil {
			if retryable(err) {
				plan.Logger.Warn("backend generate attempt failed",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
			}
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		var ne *NetworkError
		var ue *UpstreamError
		switch {
		case errors.As(err, &ne):
			ne.Attempts = attempts
		case errors.As(err, &ue):
			ue.Attempts = attempts
		}
		return "", err
	}
	return out, nil
}

func (p *backendProvider) generateOnce(ctx context.Context, plan callPlan, payload []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	resp, err := p.post(attemptCtx, plan, "/generate", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &NetworkError{Provider: plan.Provider.ID, URL: p.baseURL + "/generate", Attempts: 1, Cause: err}
	}
	return string(b), nil
}

// post issues one request and classifies failures. The caller owns the body
// of a successful response.
func (p *backendProvider) post(ctx context.Context, plan callPlan, path string, payload []byte) (*http.Response, error) {
	url := p.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("quill: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if plan.RequestID != "" {
		req.Header.Set("X-Request-ID", plan.RequestID)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		// A cancelled caller is not a connectivity problem.
		if cerr := context.Cause(ctx); cerr != nil && errors.Is(cerr, context.Canceled) {
			return nil, cerr
		}
		return nil, &NetworkError{Provider: plan.Provider.ID, URL: url, Attempts: 1, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{
			Provider:   plan.Provider.ID,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(b)),
			Attempts:   1,
		}
	}
	return resp, nil
}

// Stream posts to /generate-stream and forwards the chunked body verbatim.
// Streams are never retried.
func (p *backendProvider) Stream(ctx context.Context, plan callPlan, emit func(text string)) error {
	body := generateStreamBody{
		Provider:          plan.Provider.ID,
		SystemInstruction: plan.Request.System,
		UserPrompt:        plan.Request.Prompt,
		History:           toWireTurns(plan.History),
		ThinkingBudget:    plan.Request.ThinkingBudget,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("quill: marshal stream request: %w", err)
	}

	resp, err := p.post(ctx, plan, "/generate-stream", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readText(ctx, resp.Body, plan.Provider.ID, p.baseURL+"/generate-stream", emit)
}

// readText forwards every read of r as text, holding back a trailing
// incomplete UTF-8 sequence until the next read completes it. provider and
// url label a read failure.
func readText(ctx context.Context, r io.Reader, provider, url string, emit func(text string)) error {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completeUTF8Prefix(pending)
			if cut > 0 {
				emit(string(pending[:cut]))
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if err == io.EOF {
			if len(pending) > 0 {
				emit(string(pending))
			}
			return nil
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return &NetworkError{Provider: provider, URL: url, Attempts: 1, Cause: err}
		}
	}
}

// completeUTF8Prefix returns the length of b without a trailing partial rune.
func completeUTF8Prefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
