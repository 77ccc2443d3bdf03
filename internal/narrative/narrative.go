// Package narrative 调用 LLM 生成定性分析 (优势、劣势、建议与项目说明)
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/record"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/jsonx"
	"github.com/autofund-ai/autofund/pkg/llm"
	"go.uber.org/zap"
)

// Model 模型调用，*llm.Client 实现该接口
type Model interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Generator analysis.NarrativeGenerator 的 LLM 实现
type Generator struct {
	model    Model
	language analysis.Language
	maxItems int
	maxWords int
	logger   *zap.Logger
}

// Option 生成器选项
type Option func(*Generator)

// WithLanguage 输出语言
func WithLanguage(lang analysis.Language) Option {
	return func(g *Generator) { g.language = lang }
}

// WithLimits 提示词中要求的条目数与字数
func WithLimits(maxItems, maxWords int) Option {
	return func(g *Generator) {
		if maxItems > 0 {
			g.maxItems = maxItems
		}
		if maxWords > 0 {
			g.maxWords = maxWords
		}
	}
}

// NewGenerator 创建叙述生成器
func NewGenerator(model Model, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		model:    model,
		language: analysis.LanguageEN,
		maxItems: 3,
		maxWords: 400,
		logger:   logger.With(zap.String("component", "narrative")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 生成叙述，响应必须且只能包含四个约定字段
func (g *Generator) Generate(ctx context.Context, req analysis.NarrativeRequest) (analysis.Narrative, error) {
	summary, err := json.MarshalIndent(Summarize(req), "", "  ")
	if err != nil {
		return analysis.Narrative{}, fmt.Errorf("encode financial summary: %w", err)
	}

	resp, err := g.model.Generate(ctx, &llm.Request{
		System: g.systemPrompt(),
		Prompt: g.userPrompt(string(summary), req.Context),
		JSON:   true,
	})
	if err != nil {
		return analysis.Narrative{}, err
	}

	n, err := Parse(resp.Text)
	if err != nil {
		g.logger.Warn("Narrative response rejected", zap.Error(err))
		return analysis.Narrative{}, err
	}
	return n, nil
}

// Summary 发送给模型的财务摘要
type Summary struct {
	Company          string      `json:"empresa"`
	TaxID            string      `json:"nif"`
	Period           string      `json:"periodo"`
	Revenue          json.Number `json:"volume_negocios"`
	EBITDA           json.Number `json:"ebitda"`
	NetResult        json.Number `json:"resultado_liquido"`
	TotalAssets      json.Number `json:"total_ativo"`
	Equity           json.Number `json:"capital_proprio"`
	AccountsBalanced bool        `json:"contabilidade_valida"`
	Ratios           struct {
		FinancialAutonomy json.Number `json:"autonomia_financeira"`
		CurrentLiquidity  json.Number `json:"liquidez_geral"`
		EBITDAMargin      json.Number `json:"margem_ebitda"`
		ReturnOnAssets    json.Number `json:"rentabilidade_ativos"`
		Leverage          json.Number `json:"endividamento"`
	} `json:"ratios"`
	Risk string `json:"risco"`
}

// Summarize 构建财务摘要，比率保留四位小数
func Summarize(req analysis.NarrativeRequest) Summary {
	id := req.Record.Identity()
	inc := req.Record.Income()
	bal := req.Record.Balance()
	s := Summary{
		Company:          id.CompanyName,
		TaxID:            id.TaxID,
		Period:           id.Period,
		Revenue:          record.Number(inc.Revenue),
		EBITDA:           record.Number(inc.EBITDA),
		NetResult:        record.Number(inc.NetResult),
		TotalAssets:      record.Number(bal.TotalAssets),
		Equity:           record.Number(bal.Equity),
		AccountsBalanced: req.Record.AccountingBalanced(),
		Risk:             string(req.Risk),
	}
	s.Ratios.FinancialAutonomy = record.Number(req.Ratios.FinancialAutonomy.Round(4))
	s.Ratios.CurrentLiquidity = record.Number(req.Ratios.CurrentLiquidity.Round(4))
	s.Ratios.EBITDAMargin = record.Number(req.Ratios.EBITDAMargin.Round(4))
	s.Ratios.ReturnOnAssets = record.Number(req.Ratios.ReturnOnAssets.Round(4))
	s.Ratios.Leverage = record.Number(req.Ratios.Leverage.Round(4))
	return s
}

type wireNarrative struct {
	Strengths       *[]string `json:"pontos_fortes"`
	Weaknesses      *[]string `json:"pontos_fracos"`
	Recommendations *[]string `json:"recomendacoes"`
	Description     *string   `json:"memoria_descritiva"`
}

// Parse 严格解析模型输出，缺失或多余字段均视为格式错误
func Parse(text string) (analysis.Narrative, error) {
	raw, _, err := jsonx.SmartParse(text)
	if err != nil {
		return analysis.Narrative{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}

	var w wireNarrative
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return analysis.Narrative{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err)
	}

	var missing []string
	if w.Strengths == nil {
		missing = append(missing, "pontos_fortes")
	}
	if w.Weaknesses == nil {
		missing = append(missing, "pontos_fracos")
	}
	if w.Recommendations == nil {
		missing = append(missing, "recomendacoes")
	}
	if w.Description == nil {
		missing = append(missing, "memoria_descritiva")
	}
	if len(missing) > 0 {
		return analysis.Narrative{}, fmt.Errorf("%w: missing keys %s", apperrors.ErrMalformedResponse, strings.Join(missing, ", "))
	}

	return analysis.Narrative{
		Strengths:       *w.Strengths,
		Weaknesses:      *w.Weaknesses,
		Recommendations: *w.Recommendations,
		Description:     *w.Description,
	}, nil
}
