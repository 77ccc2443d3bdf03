package record

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// wireRecord 报告与 API 中使用的字段布局，金额以精确十进制文本输出为 JSON 数字
type wireRecord struct {
	CompanyName string `json:"nome_empresa"`
	TaxID       string `json:"nif"`
	Period      string `json:"periodo"`
	SectorCode  string `json:"cae,omitempty"`

	Revenue          json.Number `json:"volume_negocios"`
	CostOfGoodsSold  json.Number `json:"custo_mercadorias"`
	CostOfMaterials  json.Number `json:"custo_materias"`
	ExternalServices json.Number `json:"fornecimento_servicos"`
	Personnel        json.Number `json:"custos_pessoal"`
	Depreciation     json.Number `json:"depreciacoes"`
	EBITDA           json.Number `json:"ebitda"`
	OperatingResult  json.Number `json:"resultados_operacionais"`
	FinancialResult  json.Number `json:"resultados_financeiros"`
	PreTaxResult     json.Number `json:"resultados_antes_imposto"`
	IncomeTax        json.Number `json:"imposto_periodo"`
	NetResult        json.Number `json:"resultado_liquido"`

	CurrentAssets         json.Number `json:"ativo_corrente"`
	NonCurrentAssets      json.Number `json:"ativo_nao_corrente"`
	TotalAssets           json.Number `json:"total_ativo"`
	CurrentLiabilities    json.Number `json:"passivo_corrente"`
	NonCurrentLiabilities json.Number `json:"passivo_nao_corrente"`
	TotalLiabilities      json.Number `json:"total_passivo"`
	Equity                json.Number `json:"capital_proprio"`

	GrossTotalAssets        *json.Number `json:"total_ativo_bruto,omitempty"`
	AccumulatedAmortization *json.Number `json:"total_amortizacoes_acumuladas,omitempty"`
	FixedAssetInvestment    *json.Number `json:"investimentos_em_imobilizado,omitempty"`
}

// Number 十进制值转 JSON 数字，不经过 float64
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func nullableNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := Number(d.Decimal)
	return &n
}

// MarshalJSON 只输出数据字段，派生的平衡标记由报告单独输出
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		CompanyName: r.identity.CompanyName,
		TaxID:       r.identity.TaxID,
		Period:      r.identity.Period,
		SectorCode:  r.identity.SectorCode,

		Revenue:          Number(r.income.Revenue),
		CostOfGoodsSold:  Number(r.income.CostOfGoodsSold),
		CostOfMaterials:  Number(r.income.CostOfMaterials),
		ExternalServices: Number(r.income.ExternalServices),
		Personnel:        Number(r.income.Personnel),
		Depreciation:     Number(r.income.Depreciation),
		EBITDA:           Number(r.income.EBITDA),
		OperatingResult:  Number(r.income.OperatingResult),
		FinancialResult:  Number(r.income.FinancialResult),
		PreTaxResult:     Number(r.income.PreTaxResult),
		IncomeTax:        Number(r.income.IncomeTax),
		NetResult:        Number(r.income.NetResult),

		CurrentAssets:         Number(r.balance.CurrentAssets),
		NonCurrentAssets:      Number(r.balance.NonCurrentAssets),
		TotalAssets:           Number(r.balance.TotalAssets),
		CurrentLiabilities:    Number(r.balance.CurrentLiabilities),
		NonCurrentLiabilities: Number(r.balance.NonCurrentLiabilities),
		TotalLiabilities:      Number(r.balance.TotalLiabilities),
		Equity:                Number(r.balance.Equity),

		GrossTotalAssets:        nullableNumber(r.supplementary.GrossTotalAssets),
		AccumulatedAmortization: nullableNumber(r.supplementary.AccumulatedAmortization),
		FixedAssetInvestment:    nullableNumber(r.supplementary.FixedAssetInvestment),
	}
	return json.Marshal(w)
}

// UnmarshalJSON 重新走完整校验，不信任已序列化的数据
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := Decode(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}
