// LLM 客户端
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"github.com/autofund-ai/autofund/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// 供应商名称，与配置中的 provider 字段一致
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Request 推理请求
type Request struct {
	System string
	Prompt string
	// Document 为 PDF 原始字节，随提示词一起发送
	Document []byte
	// JSON 要求模型只返回 JSON
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// Response 推理响应
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage Token 用量
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Provider 单个模型供应商
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Client 带超时、指标和追踪的 LLM 客户端
type Client struct {
	provider Provider
	profile  config.ModelProfile
	logger   *zap.Logger
}

// NewClient 根据模型配置创建客户端
func NewClient(ctx context.Context, cfg config.LLMConfig, profile config.ModelProfile, logger *zap.Logger) (*Client, error) {
	var (
		provider Provider
		err      error
	)
	switch profile.Provider {
	case ProviderAnthropic:
		provider, err = NewAnthropicProvider(cfg.Anthropic, profile.Model)
	case ProviderGemini:
		provider, err = NewGeminiProvider(ctx, cfg.Gemini, profile.Model)
	default:
		err = fmt.Errorf("%w: unknown LLM provider %q", apperrors.ErrConfigInvalid, profile.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewClientWithProvider(provider, profile, logger), nil
}

// NewClientWithProvider 使用现有 Provider 创建客户端
func NewClientWithProvider(provider Provider, profile config.ModelProfile, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider: provider,
		profile:  profile,
		logger: logger.With(
			zap.String("provider", provider.Name()),
			zap.String("model", provider.Model()),
		),
	}
}

// Generate 执行推理
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	// 设置默认值
	if req.Temperature == 0 {
		req.Temperature = c.profile.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.profile.MaxTokens
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4000
	}
	if c.profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.profile.Timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "llm.generate")
	defer span.End()
	tracing.SetAttributes(ctx,
		attribute.String("llm.provider", c.provider.Name()),
		attribute.String("llm.model", c.provider.Model()),
		attribute.Int("llm.document_bytes", len(req.Document)),
	)

	resp, err := c.provider.Generate(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMLatency.WithLabelValues(c.provider.Name(), c.provider.Model(), status).
		Observe(time.Since(startTime).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		tracing.RecordError(ctx, err)
		c.logger.Warn("LLM call failed",
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Error(err))
		return nil, err
	}

	// 记录指标
	metrics.LLMTokenUsage.WithLabelValues(c.provider.Name(), resp.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokenUsage.WithLabelValues(c.provider.Name(), resp.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	c.logger.Debug("LLM call completed",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))
	return resp, nil
}

// Provider 返回底层供应商
func (c *Client) Provider() Provider {
	return c.provider
}

// statusError 将 HTTP 状态码映射为预定义错误
func statusError(provider string, code int, cause error) error {
	var sentinel error
	switch {
	case code == http.StatusTooManyRequests:
		sentinel = apperrors.ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = apperrors.ErrAuthFailed
	case code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge:
		sentinel = apperrors.ErrInvalidDocument
	default:
		sentinel = apperrors.ErrLLMUnavailable
	}
	return fmt.Errorf("%s API call failed (status %d): %w: %v", provider, code, sentinel, cause)
}
