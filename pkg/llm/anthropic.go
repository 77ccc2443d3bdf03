package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
)

// AnthropicProvider Claude 模型
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider 创建 Claude 供应商，重试交给上层处理
func NewAnthropicProvider(creds config.ProviderCredentials, model string) (*AnthropicProvider, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is not set", apperrors.ErrConfigInvalid)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
		option.WithMaxRetries(0),
	}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *AnthropicProvider) Name() string  { return ProviderAnthropic }
func (p *AnthropicProvider) Model() string { return p.model }

// Generate 发送文本和可选 PDF 文档块
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if len(req.Document) > 0 {
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(req.Document),
		}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, statusError("Claude", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("Claude API call failed: %w: %w", apperrors.ErrLLMUnavailable, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: no text in Claude response", apperrors.ErrMalformedResponse)
	}

	return &Response{
		Text:  text.String(),
		Model: string(resp.Model),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
