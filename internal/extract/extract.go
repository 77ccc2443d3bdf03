// Package extract 通过 LLM 从 IES PDF 中抽取财务数据
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autofund-ai/autofund/internal/document"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/jsonx"
	"github.com/autofund-ai/autofund/pkg/llm"
	"go.uber.org/zap"
)

// Extractor 从文档中抽取原始财务数据映射，结果须再经 record.New 校验
type Extractor interface {
	Extract(ctx context.Context, doc []byte) (map[string]interface{}, error)
}

// Generator 模型调用，*llm.Client 实现该接口
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// maxPromptText 随提示词附带的文本层长度
const maxPromptText = 20000

// LLMExtractor 基于 LLM 的抽取器
type LLMExtractor struct {
	generator Generator
	logger    *zap.Logger
}

// NewLLMExtractor 创建抽取器
func NewLLMExtractor(generator Generator, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{
		generator: generator,
		logger:    logger.With(zap.String("component", "extractor")),
	}
}

// Extract 发送 PDF 并解析模型返回的 JSON
func (e *LLMExtractor) Extract(ctx context.Context, doc []byte) (map[string]interface{}, error) {
	startTime := time.Now()

	info, err := document.Inspect(doc)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With(
		zap.String("fingerprint", info.Fingerprint[:12]),
		zap.Int("pages", info.Pages))
	if !info.HasText() {
		logger.Info("Document has no text layer, relying on model vision")
	}

	resp, err := e.generator.Generate(ctx, &llm.Request{
		System:   systemPrompt,
		Prompt:   buildPrompt(info),
		Document: doc,
		JSON:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract financial data: %w", err)
	}

	raw, strategy, err := jsonx.SmartParse(resp.Text)
	if err != nil {
		logger.Error("Failed to parse extraction response",
			zap.Int("response_len", len(resp.Text)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w: %v", apperrors.ErrExtractionFailed, apperrors.ErrMalformedResponse, err)
	}
	if strategy != jsonx.StrategyStandard {
		logger.Warn("Extraction response needed cleanup", zap.String("strategy", string(strategy)))
	}

	data, err := jsonx.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", apperrors.ErrExtractionFailed, apperrors.ErrMalformedResponse, err)
	}

	logger.Info("Financial data extracted",
		zap.Int("fields", len(data)),
		zap.Duration("elapsed", time.Since(startTime)))
	return data, nil
}

const systemPrompt = `You extract figures from Portuguese IES (Informação Empresarial Simplificada) filings.
Reply with a single JSON object and nothing else.`

const promptTemplate = `Extract the financial data from the attached IES document.

Rules:
1. When a table (for example Quadro 03-A) continues on the next page, keep its context.
2. Amounts are in EUR. Ignore "Milhares de Euros" headings.
3. When a value is missing, use 0.
4. Do not calculate anything. Copy the values as printed.
5. Check subtotals when they are available.

Required fields: company name and NIF (usually page 1), fiscal year, CAE when present.
Quadro 03-A (income statement): volume de negócios, custo das mercadorias, fornecimentos e serviços
externos, gastos com o pessoal, depreciações e amortizações, resultados operacionais, resultados
financeiros, resultado antes de impostos, imposto sobre o rendimento, resultado líquido.
Quadro 04-A (balance sheet): ativo corrente, ativo não corrente, total do ativo, passivo corrente,
passivo não corrente, total do passivo, capital próprio.

Return valid JSON with exactly these keys:
{
  "nome_empresa": "...",
  "nif": "...",
  "periodo": "2023",
  "cae": "...",
  "volume_negocios": 0.0,
  "custo_mercadorias": 0.0,
  "custo_materias": 0.0,
  "fornecimento_servicos": 0.0,
  "custos_pessoal": 0.0,
  "depreciacoes": 0.0,
  "resultados_operacionais": 0.0,
  "resultados_financeiros": 0.0,
  "resultados_antes_imposto": 0.0,
  "imposto_periodo": 0.0,
  "resultado_liquido": 0.0,
  "ativo_corrente": 0.0,
  "ativo_nao_corrente": 0.0,
  "total_ativo": 0.0,
  "passivo_corrente": 0.0,
  "passivo_nao_corrente": 0.0,
  "total_passivo": 0.0,
  "capital_proprio": 0.0
}`

func buildPrompt(info document.Info) string {
	if !info.HasText() {
		return promptTemplate
	}
	text := info.Text
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
		text = strings.ToValidUTF8(text, "")
	}
	var b strings.Builder
	b.WriteString(promptTemplate)
	b.WriteString("\n\nText layer of the document, for cross-checking the figures:\n<document_text>\n")
	b.WriteString(text)
	b.WriteString("\n</document_text>")
	return b.String()
}
