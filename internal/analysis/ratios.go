// Package analysis 财务比率、风险分级与分析结果组装
package analysis

import (
	"encoding/json"

	"github.com/autofund-ai/autofund/internal/record"
	"github.com/shopspring/decimal"
)

// RatioSet 由 Record 推导的五个标准比率
type RatioSet struct {
	FinancialAutonomy decimal.Decimal // 权益 / 总资产
	CurrentLiquidity  decimal.Decimal // 流动资产 / 流动负债
	EBITDAMargin      decimal.Decimal // EBITDA / 营业额
	ReturnOnAssets    decimal.Decimal // 净利润 / 总资产
	Leverage          decimal.Decimal // 总负债 / 总资产
}

// ComputeRatios 计算比率，分母为 0 时该比率取 0
func ComputeRatios(rec record.Record) RatioSet {
	inc := rec.Income()
	bal := rec.Balance()
	return RatioSet{
		FinancialAutonomy: safeDiv(bal.Equity, bal.TotalAssets),
		CurrentLiquidity:  safeDiv(bal.CurrentAssets, bal.CurrentLiabilities),
		EBITDAMargin:      safeDiv(inc.EBITDA, inc.Revenue),
		ReturnOnAssets:    safeDiv(inc.NetResult, bal.TotalAssets),
		Leverage:          safeDiv(bal.TotalLiabilities, bal.TotalAssets),
	}
}

func safeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

type wireRatios struct {
	FinancialAutonomy json.Number `json:"autonomia_financeira"`
	CurrentLiquidity  json.Number `json:"liquidez_geral"`
	EBITDAMargin      json.Number `json:"margem_ebitda"`
	ReturnOnAssets    json.Number `json:"rentabilidade_ativos"`
	Leverage          json.Number `json:"endividamento"`
}

func (r RatioSet) wire() wireRatios {
	return wireRatios{
		FinancialAutonomy: record.Number(r.FinancialAutonomy),
		CurrentLiquidity:  record.Number(r.CurrentLiquidity),
		EBITDAMargin:      record.Number(r.EBITDAMargin),
		ReturnOnAssets:    record.Number(r.ReturnOnAssets),
		Leverage:          record.Number(r.Leverage),
	}
}

func (w wireRatios) ratios() (RatioSet, error) {
	var out RatioSet
	for _, f := range []struct {
		src json.Number
		dst *decimal.Decimal
	}{
		{w.FinancialAutonomy, &out.FinancialAutonomy},
		{w.CurrentLiquidity, &out.CurrentLiquidity},
		{w.EBITDAMargin, &out.EBITDAMargin},
		{w.ReturnOnAssets, &out.ReturnOnAssets},
		{w.Leverage, &out.Leverage},
	} {
		if f.src == "" {
			continue
		}
		d, err := decimal.NewFromString(f.src.String())
		if err != nil {
			return RatioSet{}, err
		}
		*f.dst = d
	}
	return out, nil
}
