package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"google.golang.org/genai"
)

// GeminiProvider Gemini 模型
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider 创建 Gemini 供应商
func NewGeminiProvider(ctx context.Context, creds config.ProviderCredentials, model string) (*GeminiProvider, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is not set", apperrors.ErrConfigInvalid)
	}
	cc := &genai.ClientConfig{
		APIKey:  creds.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if creds.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: creds.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string  { return ProviderGemini }
func (p *GeminiProvider) Model() string { return p.model }

// Generate PDF 以内联字节发送
func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	var parts []*genai.Part
	if len(req.Document) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Document, "application/pdf"))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, statusError("Gemini", apiErr.Code, err)
		}
		return nil, fmt.Errorf("Gemini API call failed: %w: %w", apperrors.ErrLLMUnavailable, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: no text in Gemini response", apperrors.ErrMalformedResponse)
	}

	out := &Response{Text: text, Model: p.model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int64(u.PromptTokenCount),
			CompletionTokens: int64(u.CandidatesTokenCount),
		}
	}
	return out, nil
}
