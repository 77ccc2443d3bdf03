package analysis

import (
	"fmt"
	"strings"

	"github.com/autofund-ai/autofund/internal/record"
	"github.com/shopspring/decimal"
)

type fallbackText struct {
	lowAutonomyWeakness  string
	lowAutonomyAction    string
	lowLiquidityWeakness string
	lowLiquidityAction   string
	netLossWeakness      string
	netLossAction        string
	revenueStrength      string
	narrative            func(company, period, revenue, risk, autonomy string, low bool) string
}

var fallbackTexts = map[Language]fallbackText{
	LanguageEN: {
		lowAutonomyWeakness:  "reduced financial autonomy",
		lowAutonomyAction:    "consider capital increase",
		lowLiquidityWeakness: "restricted liquidity",
		lowLiquidityAction:   "renegotiate supplier terms",
		netLossWeakness:      "negative net result for the period",
		netLossAction:        "implement recovery plan",
		revenueStrength:      "Revenue: €%s",
		narrative: func(company, period, revenue, risk, autonomy string, low bool) string {
			outlook := "Despite the challenges identified, the company retains the capacity to recover."
			if low {
				outlook = "The company shows a solid financial position."
			}
			return fmt.Sprintf("%s reports revenue of €%s for the period %s.\n\n"+
				"The financial indicators point to a %s risk level, with financial autonomy of %s.\n\n"+
				"%s\n\n"+
				"A gradual improvement of the indicators is expected over the coming periods, "+
				"supported by the measures being implemented.",
				company, revenue, period, risk, autonomy, outlook)
		},
	},
	LanguagePT: {
		lowAutonomyWeakness:  "Autonomia financeira reduzida",
		lowAutonomyAction:    "Considerar aumento de capital social",
		lowLiquidityWeakness: "Liquidez restrita",
		lowLiquidityAction:   "Renegociar prazos com fornecedores",
		netLossWeakness:      "Resultado negativo no período",
		netLossAction:        "Implementar plano de recuperação",
		revenueStrength:      "Volume de negócios: €%s",
		narrative: func(company, period, revenue, risk, autonomy string, low bool) string {
			outlook := "Apesar dos desafios enfrentados, a empresa mantém capacidade de recuperação."
			if low {
				outlook = "A empresa demonstra sólida posição financeira."
			}
			return fmt.Sprintf("A empresa %s apresenta um volume de negócios de €%s para o período de %s.\n\n"+
				"Os indicadores financeiros demonstram %s nível de risco, com uma autonomia financeira de %s.\n\n"+
				"%s\n\n"+
				"Projetamos para os próximos períodos uma melhoria gradual dos indicadores, "+
				"suportada pelas medidas de reestruturação implementadas.",
				company, revenue, period, risk, autonomy, outlook)
		},
	},
}

// Fallback 不依赖外部服务的规则化分析
func Fallback(rec record.Record, ratios RatioSet, risk RiskLevel, lang Language) Narrative {
	text, ok := fallbackTexts[lang]
	if !ok {
		text = fallbackTexts[LanguageEN]
	}

	var n Narrative
	if ratios.FinancialAutonomy.LessThan(autonomyHigh) {
		n.Weaknesses = append(n.Weaknesses, text.lowAutonomyWeakness)
		n.Recommendations = append(n.Recommendations, text.lowAutonomyAction)
	}
	if ratios.CurrentLiquidity.LessThan(liquidityLow) {
		n.Weaknesses = append(n.Weaknesses, text.lowLiquidityWeakness)
		n.Recommendations = append(n.Recommendations, text.lowLiquidityAction)
	}
	if rec.Income().NetResult.IsNegative() {
		n.Weaknesses = append(n.Weaknesses, text.netLossWeakness)
		n.Recommendations = append(n.Recommendations, text.netLossAction)
	}

	revenue := FormatEuro(rec.Income().Revenue)
	n.Strengths = []string{fmt.Sprintf(text.revenueStrength, revenue)}

	id := rec.Identity()
	n.Description = text.narrative(
		id.CompanyName,
		id.Period,
		revenue,
		strings.ToLower(risk.Label(lang)),
		FormatPercent(ratios.FinancialAutonomy),
		risk == RiskLow,
	)
	return n
}

// FormatEuro 两位小数并加千位分隔符，如 245,831.27
func FormatEuro(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

// FormatPercent 比率转百分比，保留一位小数
func FormatPercent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
