package analysis

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskLevel 四级风险分级
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// 评分阈值与分级边界，沿用历史策略常量
var (
	autonomyCritical = decimal.RequireFromString("0.20")
	autonomyHigh     = decimal.RequireFromString("0.30")
	autonomyMedium   = decimal.RequireFromString("0.40")

	liquidityCritical = decimal.RequireFromString("1.0")
	liquidityLow      = decimal.RequireFromString("1.5")

	marginCritical = decimal.RequireFromString("0.05")
	marginLow      = decimal.RequireFromString("0.10")
)

const (
	scoreCritical = 7
	scoreHigh     = 5
	scoreMedium   = 3
)

// Score 按比率累计风险分，阈值边界落入较低风险分支
func Score(r RatioSet) int {
	score := 0

	switch {
	case r.FinancialAutonomy.LessThan(autonomyCritical):
		score += 3
	case r.FinancialAutonomy.LessThan(autonomyHigh):
		score += 2
	case r.FinancialAutonomy.LessThan(autonomyMedium):
		score += 1
	}

	switch {
	case r.CurrentLiquidity.LessThan(liquidityCritical):
		score += 3
	case r.CurrentLiquidity.LessThan(liquidityLow):
		score += 1
	}

	switch {
	case r.EBITDAMargin.LessThan(marginCritical):
		score += 2
	case r.EBITDAMargin.LessThan(marginLow):
		score += 1
	}

	if r.ReturnOnAssets.IsNegative() {
		score += 3
	}

	return score
}

// LevelForScore 分数到风险等级的映射
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= scoreCritical:
		return RiskCritical
	case score >= scoreHigh:
		return RiskHigh
	case score >= scoreMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Classify 计算风险等级
func Classify(r RatioSet) RiskLevel {
	return LevelForScore(Score(r))
}

// Label 按语言返回显示名称
func (l RiskLevel) Label(lang Language) string {
	if lang != LanguagePT {
		return string(l)
	}
	switch l {
	case RiskLow:
		return "BAIXO"
	case RiskMedium:
		return "MÉDIO"
	case RiskHigh:
		return "ALTO"
	case RiskCritical:
		return "CRÍTICO"
	default:
		return string(l)
	}
}

// ParseRiskLevel 解析规范名称或葡语名称
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "LOW", "BAIXO":
		return RiskLow, nil
	case "MEDIUM", "MÉDIO":
		return RiskMedium, nil
	case "HIGH", "ALTO":
		return RiskHigh, nil
	case "CRITICAL", "CRÍTICO":
		return RiskCritical, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}
