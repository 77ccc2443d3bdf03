package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autofund-ai/autofund/internal/record"
)

// Language 降级文本与显示标签的语言
type Language string

const (
	LanguageEN Language = "en"
	LanguagePT Language = "pt"
)

// NarrativeRequest 叙述生成的输入
type NarrativeRequest struct {
	Record  record.Record
	Ratios  RatioSet
	Risk    RiskLevel
	Context string
}

// Narrative 外部生成的定性分析
type Narrative struct {
	Strengths       []string
	Weaknesses      []string
	Recommendations []string
	Description     string
}

// NarrativeGenerator 外部叙述生成能力
type NarrativeGenerator interface {
	Generate(ctx context.Context, req NarrativeRequest) (Narrative, error)
}

// Result 一次分析的最终结果，构建后不可变
type Result struct {
	ratios          RatioSet
	risk            RiskLevel
	strengths       []string
	weaknesses      []string
	recommendations []string
	narrative       string
}

func newResult(ratios RatioSet, risk RiskLevel, n Narrative) Result {
	return Result{
		ratios:          ratios,
		risk:            risk,
		strengths:       clone(n.Strengths),
		weaknesses:      clone(n.Weaknesses),
		recommendations: clone(n.Recommendations),
		narrative:       n.Description,
	}
}

func (r Result) Ratios() RatioSet { return r.ratios }
func (r Result) Risk() RiskLevel { return r.risk }
func (r Result) Strengths() []string { return clone(r.strengths) }
func (r Result) Weaknesses() []string { return clone(r.weaknesses) }
func (r Result) Recommendations() []string { return clone(r.recommendations) }
func (r Result) Narrative() string { return r.narrative }
func (r Result) IsZero() bool { return r.risk == "" }

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

type wireResult struct {
	wireRatios
	Risk            RiskLevel `json:"nivel_risco"`
	Strengths       []string  `json:"pontos_fortes"`
	Weaknesses      []string  `json:"pontos_fracos"`
	Recommendations []string  `json:"recomendacoes"`
	Narrative       string    `json:"memoria_descritiva"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResult{
		wireRatios:      r.ratios.wire(),
		Risk:            r.risk,
		Strengths:       clone(r.strengths),
		Weaknesses:      clone(r.weaknesses),
		Recommendations: clone(r.recommendations),
		Narrative:       r.narrative,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ratios, err := w.wireRatios.ratios()
	if err != nil {
		return fmt.Errorf("decode ratios: %w", err)
	}
	risk, err := ParseRiskLevel(string(w.Risk))
	if err != nil {
		return err
	}
	*r = newResult(ratios, risk, Narrative{
		Strengths:       w.Strengths,
		Weaknesses:      w.Weaknesses,
		Recommendations: w.Recommendations,
		Description:     w.Narrative,
	})
	return nil
}
