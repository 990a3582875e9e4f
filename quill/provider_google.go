package quill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// googleProvider is the native transport, backed by the genai SDK.
type googleProvider struct {
	client *genai.Client
}

func newGoogleProvider(ctx context.Context, p ProviderConfig, hc *http.Client) (*googleProvider, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, configErr(p.ID, "APIKey", "API key is required for a native provider")
	}
	if strings.TrimSpace(p.Model) == "" {
		return nil, configErr(p.ID, "Model", "model must be specified")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     p.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: p.Endpoint,
		},
	})
	if err != nil {
		return nil, configErr(p.ID, "", "create genai client: %v", err)
	}
	return &googleProvider{client: gc}, nil
}

// toGenAIContents maps history plus the new user turn onto genai contents,
// keeping the original order.
func toGenAIContents(history []ChatTurn, req InvocationRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := string(genai.RoleUser)
		if t.Role == RoleModel {
			role = string(genai.RoleModel)
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType}})
	}
	return append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: parts})
}

func toGenAIConfig(req InvocationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.StructuredJSON {
		cfg.ResponseMIMEType = "application/json"
		if len(req.ResponseSchema) > 0 {
			cfg.ResponseJsonSchema = req.ResponseSchema
		}
	}
	if req.ThinkingBudget != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(*req.ThinkingBudget)),
		}
	}
	return cfg
}

func (p *googleProvider) Text(ctx context.Context, plan callPlan) (string, error) {
	res, err := p.client.Models.GenerateContent(ctx, plan.Provider.Model,
		toGenAIContents(plan.History, plan.Request), toGenAIConfig(plan.Request))
	if err != nil {
		return "", classifyGenAIError(ctx, plan.Provider.ID, err)
	}
	text, ok := textFromGenAI(res)
	if !ok {
		return "", fmt.Errorf("quill: %s: %w", plan.Provider.ID, ErrEmptyResponse)
	}
	return text, nil
}

// Stream forwards the SDK's incremental text units verbatim.
func (p *googleProvider) Stream(ctx context.Context, plan callPlan, emit func(text string)) error {
	for res, err := range p.client.Models.GenerateContentStream(ctx, plan.Provider.Model,
		toGenAIContents(plan.History, plan.Request), toGenAIConfig(plan.Request)) {
		if err != nil {
			return classifyGenAIError(ctx, plan.Provider.ID, err)
		}
		if text, _ := textFromGenAI(res); text != "" {
			emit(text)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// textFromGenAI joins the non-thought text parts of the first candidate.
func textFromGenAI(res *genai.GenerateContentResponse) (string, bool) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", false
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String(), true
}

func classifyGenAIError(ctx context.Context, provider string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: provider, StatusCode: apiErr.Code, Body: apiErr.Message, Attempts: 1, Cause: err}
	}
	return &NetworkError{Provider: provider, URL: "genai", Attempts: 1, Cause: err}
}
