package quill

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openAIProvider speaks the chat-completions dialect to any compatible
// endpoint (DeepSeek, Qwen, Kimi, OpenAI, ...).
type openAIProvider struct {
	client   *openai.Client
	http     *http.Client
	endpoint string
	apiKey   string
}

func newOpenAIProvider(p ProviderConfig, hc *http.Client) (*openAIProvider, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, configErr(p.ID, "APIKey", "API key is required for a REST-compatible provider")
	}
	endpoint := normalizeEndpoint(p.Endpoint)
	if endpoint == "" {
		return nil, configErr(p.ID, "Endpoint", "endpoint is required for a REST-compatible provider")
	}
	if strings.TrimSpace(p.Model) == "" {
		return nil, configErr(p.ID, "Model", "model must be specified")
	}

	oc := openai.DefaultConfig(p.APIKey)
	oc.BaseURL = endpoint
	oc.HTTPClient = hc
	return &openAIProvider{
		client:   openai.NewClientWithConfig(oc),
		http:     hc,
		endpoint: endpoint,
		apiKey:   p.APIKey,
	}, nil
}

// normalizeEndpoint accepts either a base URL or the full completions URL.
func normalizeEndpoint(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	return strings.TrimSuffix(s, "/chat/completions")
}

func (p *openAIProvider) buildRequest(plan callPlan, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(plan.History)+2)

	if strings.TrimSpace(plan.Request.System) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: plan.Request.System,
		})
	}
	for _, t := range plan.History {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, userMessage(plan.Request))

	req := openai.ChatCompletionRequest{
		Model:    plan.Provider.Model,
		Messages: msgs,
		Stream:   stream,
	}
	if plan.Request.StructuredJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func userMessage(req InvocationRequest) openai.ChatCompletionMessage {
	if len(req.Images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt}
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// Text performs one chat completion. Failures are returned as-is; the
// frontend-direct path never retries.
func (p *openAIProvider) Text(ctx context.Context, plan callPlan) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(plan, false))
	if err != nil {
		return "", classifyOpenAIError(ctx, plan.Provider.ID, p.endpoint, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("quill: %s: %w", plan.Provider.ID, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(ctx context.Context, provider, endpoint string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Attempts: 1, Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{Provider: provider, StatusCode: reqErr.HTTPStatusCode, Attempts: 1, Cause: err}
	}
	return &NetworkError{Provider: provider, URL: endpoint, Attempts: 1, Cause: err}
}

// Stream posts the request with stream=true and decodes the data: frames
// through an SSEDecoder.
func (p *openAIProvider) Stream(ctx context.Context, plan callPlan, emit func(text string)) error {
	payload, err := json.Marshal(p.buildRequest(plan, true))
	if err != nil {
		return fmt.Errorf("quill: marshal stream request: %w", err)
	}

	url := p.endpoint + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("quill: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return &NetworkError{Provider: plan.Provider.ID, URL: url, Attempts: 1, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &UpstreamError{Provider: plan.Provider.ID, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b)), Attempts: 1}
	}

	dec := NewSSEDecoder(plan.Logger)
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunks, done := dec.Feed(buf[:n])
			for _, c := range chunks {
				emit(c)
			}
			if done {
				return nil
			}
		}
		if rerr == io.EOF {
			for _, c := range dec.Flush() {
				emit(c)
			}
			return nil
		}
		if rerr != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return &NetworkError{Provider: plan.Provider.ID, URL: url, Attempts: 1, Cause: rerr}
		}
	}
}
