package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/autofund-ai/autofund/internal/record"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 2 * time.Minute
	defaultMaxItems = 3
	defaultMaxWords = 400
)

// Assembler 组合比率、风险等级与定性叙述
type Assembler struct {
	generator NarrativeGenerator
	logger    *zap.Logger
	timeout   time.Duration
	maxItems  int
	maxWords  int
	language  Language
}

// AssemblerOption 组装器选项
type AssemblerOption func(*Assembler)

// WithTimeout 外部叙述生成的超时
func WithTimeout(d time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLimits 列表条数与叙述字数上限
func WithLimits(maxItems, maxWords int) AssemblerOption {
	return func(a *Assembler) {
		if maxItems > 0 {
			a.maxItems = maxItems
		}
		if maxWords > 0 {
			a.maxWords = maxWords
		}
	}
}

// WithLanguage 降级文本语言
func WithLanguage(lang Language) AssemblerOption {
	return func(a *Assembler) {
		if _, ok := fallbackTexts[lang]; ok {
			a.language = lang
		}
	}
}

// NewAssembler 创建组装器，generator 可为 nil (始终使用规则化分析)
func NewAssembler(generator NarrativeGenerator, logger *zap.Logger, opts ...AssemblerOption) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		generator: generator,
		logger:    logger.With(zap.String("component", "analysis_assembler")),
		timeout:   defaultTimeout,
		maxItems:  defaultMaxItems,
		maxWords:  defaultMaxWords,
		language:  LanguageEN,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble 生成分析结果，外部叙述失败时降级为规则化分析，本身不返回错误
func (a *Assembler) Assemble(ctx context.Context, rec record.Record, ratios RatioSet, risk RiskLevel, companyContext string) Result {
	logger := a.logger.With(
		zap.String("company", rec.Identity().CompanyName),
		zap.String("risk_level", string(risk)),
	)

	narrative, err := a.generate(ctx, NarrativeRequest{
		Record:  rec,
		Ratios:  ratios,
		Risk:    risk,
		Context: companyContext,
	})
	source := "model"
	if err != nil {
		reason := fallbackReason(err)
		logger.Warn("Narrative generation failed, using rule-based analysis",
			zap.String("reason", reason),
			zap.Error(err),
		)
		metrics.NarrativeFallbacks.WithLabelValues(reason).Inc()
		narrative = Fallback(rec, ratios, risk, a.language)
		source = "fallback"
	}

	metrics.AnalysesTotal.WithLabelValues(string(risk), source).Inc()
	logger.Info("Analysis assembled", zap.String("source", source))

	return newResult(ratios, risk, Narrative{
		Strengths:       capItems(narrative.Strengths, a.maxItems),
		Weaknesses:      capItems(narrative.Weaknesses, a.maxItems),
		Recommendations: capItems(narrative.Recommendations, a.maxItems),
		Description:     TruncateWords(narrative.Description, a.maxWords),
	})
}

type generateResult struct {
	narrative Narrative
	err       error
}

func (a *Assembler) generate(ctx context.Context, req NarrativeRequest) (Narrative, error) {
	if a.generator == nil {
		return Narrative{}, errNoGenerator
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generateResult{err: fmt.Errorf("narrative generator panic: %v", r)}
			}
		}()
		n, err := a.generator.Generate(ctx, req)
		done <- generateResult{narrative: n, err: err}
	}()

	// 生成器未及时响应 ctx 时也按超时处理
	select {
	case <-ctx.Done():
		return Narrative{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return Narrative{}, res.err
		}
		n := clean(res.narrative)
		if len(n.Strengths) == 0 || n.Description == "" {
			return Narrative{}, fmt.Errorf("%w: missing strengths or description", apperrors.ErrMalformedResponse)
		}
		return n, nil
	}
}

var errNoGenerator = errors.New("no narrative generator configured")

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, errNoGenerator):
		return "disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}

func clean(n Narrative) Narrative {
	return Narrative{
		Strengths:       cleanItems(n.Strengths),
		Weaknesses:      cleanItems(n.Weaknesses),
		Recommendations: cleanItems(n.Recommendations),
		Description:     strings.TrimSpace(n.Description),
	}
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func capItems(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// TruncateWords 保留前 n 个词，原有空白与换行不变
func TruncateWords(s string, n int) string {
	words := 0
	inWord := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			if words == n {
				return strings.TrimRightFunc(s[:i], unicode.IsSpace)
			}
			words++
			inWord = true
		}
	}
	return s
}
