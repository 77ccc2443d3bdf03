package analysis_test

import (
	"encoding/json"
	"testing"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/record"
	"github.com/autofund-ai/autofund/internal/record/recordtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ratios(autonomy, liquidity, margin, roa string) analysis.RatioSet {
	return analysis.RatioSet{
		FinancialAutonomy: dec(autonomy),
		CurrentLiquidity:  dec(liquidity),
		EBITDAMargin:      dec(margin),
		ReturnOnAssets:    dec(roa),
	}
}

func TestComputeRatios(t *testing.T) {
	rec := recordtest.MustNew(t, nil)
	r := analysis.ComputeRatios(rec)

	assert.Equal(t, "0.5694", r.FinancialAutonomy.StringFixed(4))
	assert.Equal(t, "1.4873", r.CurrentLiquidity.StringFixed(4))
	assert.Equal(t, "0.0309", r.EBITDAMargin.StringFixed(4))
	assert.Equal(t, "0.0469", r.ReturnOnAssets.StringFixed(4))
	assert.Equal(t, "0.4306", r.Leverage.StringFixed(4))
}

func TestComputeRatiosZeroDenominators(t *testing.T) {
	rec := recordtest.MustNew(t, map[string]interface{}{
		record.KeyRevenue:               json.Number("0"),
		record.KeyTotalAssets:           json.Number("0"),
		record.KeyCurrentAssets:         json.Number("0"),
		record.KeyNonCurrentAssets:      json.Number("0"),
		record.KeyCurrentLiabilities:    json.Number("0"),
		record.KeyNonCurrentLiabilities: json.Number("0"),
		record.KeyTotalLiabilities:      json.Number("0"),
		record.KeyEquity:                json.Number("0"),
	})
	r := analysis.ComputeRatios(rec)
	assert.True(t, r.FinancialAutonomy.IsZero())
	assert.True(t, r.CurrentLiquidity.IsZero())
	assert.True(t, r.EBITDAMargin.IsZero())
	assert.True(t, r.ReturnOnAssets.IsZero())
	assert.True(t, r.Leverage.IsZero())
	assert.Equal(t, analysis.RiskCritical, analysis.Classify(r))
}

func TestScoreThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		r     analysis.RatioSet
		score int
	}{
		{"healthy", ratios("0.5", "2", "0.2", "0.1"), 0},
		{"autonomy just below 0.20", ratios("0.1999", "2", "0.2", "0.1"), 3},
		{"autonomy exactly 0.20", ratios("0.20", "2", "0.2", "0.1"), 2},
		{"autonomy exactly 0.30", ratios("0.30", "2", "0.2", "0.1"), 1},
		{"autonomy exactly 0.40", ratios("0.40", "2", "0.2", "0.1"), 0},
		{"liquidity below 1", ratios("0.5", "0.99", "0.2", "0.1"), 3},
		{"liquidity exactly 1", ratios("0.5", "1.0", "0.2", "0.1"), 1},
		{"liquidity exactly 1.5", ratios("0.5", "1.5", "0.2", "0.1"), 0},
		{"margin below 0.05", ratios("0.5", "2", "0.0499", "0.1"), 2},
		{"margin exactly 0.05", ratios("0.5", "2", "0.05", "0.1"), 1},
		{"margin exactly 0.10", ratios("0.5", "2", "0.10", "0.1"), 0},
		{"roa zero", ratios("0.5", "2", "0.2", "0"), 0},
		{"roa negative", ratios("0.5", "2", "0.2", "-0.0001"), 3},
		{"everything bad", ratios("-0.5", "0", "-1", "-1"), 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, analysis.Score(tt.r))
		})
	}
}

func TestLevelForScoreBoundaries(t *testing.T) {
	assert.Equal(t, analysis.RiskLow, analysis.LevelForScore(0))
	assert.Equal(t, analysis.RiskLow, analysis.LevelForScore(2))
	assert.Equal(t, analysis.RiskMedium, analysis.LevelForScore(3))
	assert.Equal(t, analysis.RiskMedium, analysis.LevelForScore(4))
	assert.Equal(t, analysis.RiskHigh, analysis.LevelForScore(5))
	assert.Equal(t, analysis.RiskHigh, analysis.LevelForScore(6))
	assert.Equal(t, analysis.RiskCritical, analysis.LevelForScore(7))
	assert.Equal(t, analysis.RiskCritical, analysis.LevelForScore(11))
}

func TestClassifyIsDeterministic(t *testing.T) {
	r := ratios("0.25", "1.2", "0.07", "0.01")
	first := analysis.Classify(r)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, analysis.Classify(r))
	}
	// 2 + 1 + 1
	assert.Equal(t, analysis.RiskMedium, first)
}

func TestClassifyBoundaryLevels(t *testing.T) {
	assert.Equal(t, analysis.RiskLow, analysis.Classify(ratios("0.25", "2", "0.2", "0.1")))
	assert.Equal(t, analysis.RiskMedium, analysis.Classify(ratios("0.1", "2", "0.2", "0.1")))
	assert.Equal(t, analysis.RiskHigh, analysis.Classify(ratios("0.1", "2", "0.01", "0.1")))
	assert.Equal(t, analysis.RiskCritical, analysis.Classify(ratios("0.1", "0.5", "0.07", "0.1")))
}

// 营业额 245831.27、EBITDA 7606.10、总资产 100000.00
func TestScenarioA(t *testing.T) {
	rec := recordtest.MustNew(t, map[string]interface{}{
		record.KeyEBITDA:      json.Number("7606.10"),
		record.KeyTotalAssets: json.Number("100000.00"),
	})
	assert.False(t, rec.AccountingBalanced())

	r := analysis.ComputeRatios(rec)
	assert.Equal(t, "0.4595", r.FinancialAutonomy.StringFixed(4))
	assert.Equal(t, "0.0309", r.EBITDAMargin.StringFixed(4))
	assert.Equal(t, "1.4873", r.CurrentLiquidity.StringFixed(4))

	// autonomy 0 + liquidity 1 + margin 2 + roa 0
	assert.Equal(t, 3, analysis.Score(r))
	assert.Equal(t, analysis.RiskMedium, analysis.Classify(r))
}

func TestRiskLevelLabels(t *testing.T) {
	assert.Equal(t, "CRÍTICO", analysis.RiskCritical.Label(analysis.LanguagePT))
	assert.Equal(t, "MÉDIO", analysis.RiskMedium.Label(analysis.LanguagePT))
	assert.Equal(t, "HIGH", analysis.RiskHigh.Label(analysis.LanguageEN))

	for _, s := range []string{"LOW", "BAIXO", "CRITICAL", "CRÍTICO"} {
		_, err := analysis.ParseRiskLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := analysis.ParseRiskLevel("SEVERE")
	assert.Error(t, err)
}

func TestFormatEuro(t *testing.T) {
	assert.Equal(t, "245,831.27", analysis.FormatEuro(dec("245831.27")))
	assert.Equal(t, "1,000,000.00", analysis.FormatEuro(dec("1000000")))
	assert.Equal(t, "999.50", analysis.FormatEuro(dec("999.5")))
	assert.Equal(t, "-12,345.60", analysis.FormatEuro(dec("-12345.6")))
	assert.Equal(t, "0.00", analysis.FormatEuro(decimal.Zero))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "45.9%", analysis.FormatPercent(dec("0.45946")))
	assert.Equal(t, "-12.5%", analysis.FormatPercent(dec("-0.125")))
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "one two", analysis.TruncateWords("one two three", 2))
	assert.Equal(t, "one\n\ntwo", analysis.TruncateWords("one\n\ntwo   three four", 2))
	assert.Equal(t, "short", analysis.TruncateWords("short", 400))
	assert.Equal(t, "", analysis.TruncateWords("", 3))
}
