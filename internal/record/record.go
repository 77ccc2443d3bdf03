// Package record IES 年度财务数据的校验与值对象
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/autofund-ai/autofund/pkg/jsonx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 字段名 (与抽取输出及报告 JSON 一致)
const (
	KeyCompanyName = "nome_empresa"
	KeyTaxID       = "nif"
	KeyPeriod      = "periodo"
	KeySectorCode  = "cae"

	KeyRevenue          = "volume_negocios"
	KeyCostOfGoodsSold  = "custo_mercadorias"
	KeyCostOfMaterials  = "custo_materias"
	KeyExternalServices = "fornecimento_servicos"
	KeyPersonnel        = "custos_pessoal"
	KeyDepreciation     = "depreciacoes"
	KeyEBITDA           = "ebitda"
	KeyOperatingResult  = "resultados_operacionais"
	KeyFinancialResult  = "resultados_financeiros"
	KeyPreTaxResult     = "resultados_antes_imposto"
	KeyIncomeTax        = "imposto_periodo"
	KeyNetResult        = "resultado_liquido"

	KeyCurrentAssets         = "ativo_corrente"
	KeyNonCurrentAssets      = "ativo_nao_corrente"
	KeyTotalAssets           = "total_ativo"
	KeyCurrentLiabilities    = "passivo_corrente"
	KeyNonCurrentLiabilities = "passivo_nao_corrente"
	KeyTotalLiabilities      = "total_passivo"
	KeyEquity                = "capital_proprio"

	KeyGrossTotalAssets        = "total_ativo_bruto"
	KeyAccumulatedAmortization = "total_amortizacoes_acumuladas"
	KeyFixedAssetInvestment    = "investimentos_em_imobilizado"
)

var taxIDPattern = regexp.MustCompile(`^\d{9}$`)

// Identity 公司身份信息
type Identity struct {
	CompanyName string
	TaxID       string
	Period      string
	SectorCode  string
}

// IncomeStatement 损益表
type IncomeStatement struct {
	Revenue          decimal.Decimal
	CostOfGoodsSold  decimal.Decimal
	CostOfMaterials  decimal.Decimal
	ExternalServices decimal.Decimal
	Personnel        decimal.Decimal
	Depreciation     decimal.Decimal
	EBITDA           decimal.Decimal
	OperatingResult  decimal.Decimal
	FinancialResult  decimal.Decimal
	PreTaxResult     decimal.Decimal
	IncomeTax        decimal.Decimal
	NetResult        decimal.Decimal
}

// BalanceSheet 资产负债表
type BalanceSheet struct {
	CurrentAssets         decimal.Decimal
	NonCurrentAssets      decimal.Decimal
	TotalAssets           decimal.Decimal
	CurrentLiabilities    decimal.Decimal
	NonCurrentLiabilities decimal.Decimal
	TotalLiabilities      decimal.Decimal
	Equity                decimal.Decimal
}

// Supplementary IES 附表中的可选数据
type Supplementary struct {
	GrossTotalAssets        decimal.NullDecimal
	AccumulatedAmortization decimal.NullDecimal
	FixedAssetInvestment    decimal.NullDecimal
}

// Record 单一公司单一会计年度的财务数据，构建后不可变
type Record struct {
	identity      Identity
	income        IncomeStatement
	balance       BalanceSheet
	supplementary Supplementary
	check         BalanceCheck
	ebitdaDerived bool
}

// Identity 公司标识
func (r Record) Identity() Identity { return r.identity }

// Income 损益表
func (r Record) Income() IncomeStatement { return r.income }

// Balance 资产负债表
func (r Record) Balance() BalanceSheet { return r.balance }

// Supplementary 补充字段
func (r Record) Supplementary() Supplementary { return r.supplementary }

// BalanceCheck 会计恒等式校验结果
func (r Record) BalanceCheck() BalanceCheck { return r.check }

// AccountingBalanced 资产负债表是否在容差内平衡
func (r Record) AccountingBalanced() bool { return r.check.Balanced }

// EBITDADerived EBITDA 是否由 营业结果 + 折旧 推导
func (r Record) EBITDADerived() bool { return r.ebitdaDerived }

type presence int

const (
	required presence = iota
	defaulted
	optional
)

type numericField struct {
	key      string
	presence presence
	signed   bool
}

// 数值字段定义，顺序即校验报告顺序
var numericFields = []numericField{
	{KeyRevenue, required, false},
	{KeyCostOfGoodsSold, defaulted, false},
	{KeyCostOfMaterials, defaulted, false},
	{KeyExternalServices, defaulted, false},
	{KeyPersonnel, defaulted, false},
	{KeyDepreciation, defaulted, false},
	{KeyEBITDA, optional, true},
	{KeyOperatingResult, required, true},
	{KeyFinancialResult, defaulted, true},
	{KeyPreTaxResult, required, true},
	{KeyIncomeTax, defaulted, false},
	{KeyNetResult, required, true},
	{KeyCurrentAssets, required, false},
	{KeyNonCurrentAssets, required, false},
	{KeyTotalAssets, required, false},
	{KeyCurrentLiabilities, required, false},
	{KeyNonCurrentLiabilities, required, false},
	{KeyTotalLiabilities, required, false},
	{KeyEquity, required, true},
	{KeyGrossTotalAssets, optional, false},
	{KeyAccumulatedAmortization, optional, true},
	{KeyFixedAssetInvestment, optional, true},
}

var knownKeys = func() map[string]bool {
	m := map[string]bool{KeyCompanyName: true, KeyTaxID: true, KeyPeriod: true, KeySectorCode: true}
	for _, f := range numericFields {
		m[f.key] = true
	}
	return m
}()

// Option 构建选项
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger 平衡校验失败时写入诊断日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New 校验原始字段映射并构建 Record
// 未知字段、缺失必填字段、非数值、非法负数与 NIF 格式错误全部汇总到一个 *ValidationError
func New(raw map[string]interface{}, opts ...Option) (Record, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	verr := &ValidationError{}

	var unknown []string
	for k := range raw {
		if !knownKeys[k] {
			unknown = append(unknown, k)
		}
	}

	var rec Record
	rec.identity.CompanyName = requireText(raw, KeyCompanyName, verr)
	rec.identity.TaxID = parseTaxID(raw, verr)
	rec.identity.Period = requireText(raw, KeyPeriod, verr)
	rec.identity.SectorCode = optionalText(raw, KeySectorCode, verr)

	values := make(map[string]decimal.Decimal, len(numericFields))
	present := make(map[string]bool, len(numericFields))
	for _, f := range numericFields {
		v, ok := raw[f.key]
		if !ok || v == nil {
			if f.presence == required {
				verr.add(f.key, "is required")
			}
			values[f.key] = decimal.Zero
			continue
		}
		d, err := toDecimal(v)
		if err != nil {
			verr.add(f.key, "%s", err.Error())
			continue
		}
		if !f.signed && d.IsNegative() {
			verr.add(f.key, "must be greater than or equal to 0 (got %s)", d.String())
			continue
		}
		values[f.key] = d
		present[f.key] = true
	}

	sort.Strings(unknown)
	for _, k := range unknown {
		verr.add(k, "unknown field")
	}

	if len(verr.Violations) > 0 {
		return Record{}, verr
	}

	rec.income = IncomeStatement{
		Revenue:          values[KeyRevenue],
		CostOfGoodsSold:  values[KeyCostOfGoodsSold],
		CostOfMaterials:  values[KeyCostOfMaterials],
		ExternalServices: values[KeyExternalServices],
		Personnel:        values[KeyPersonnel],
		Depreciation:     values[KeyDepreciation],
		EBITDA:           values[KeyEBITDA],
		OperatingResult:  values[KeyOperatingResult],
		FinancialResult:  values[KeyFinancialResult],
		PreTaxResult:     values[KeyPreTaxResult],
		IncomeTax:        values[KeyIncomeTax],
		NetResult:        values[KeyNetResult],
	}
	rec.balance = BalanceSheet{
		CurrentAssets:         values[KeyCurrentAssets],
		NonCurrentAssets:      values[KeyNonCurrentAssets],
		TotalAssets:           values[KeyTotalAssets],
		CurrentLiabilities:    values[KeyCurrentLiabilities],
		NonCurrentLiabilities: values[KeyNonCurrentLiabilities],
		TotalLiabilities:      values[KeyTotalLiabilities],
		Equity:                values[KeyEquity],
	}
	rec.supplementary = Supplementary{
		GrossTotalAssets:        nullable(values, present, KeyGrossTotalAssets),
		AccumulatedAmortization: nullable(values, present, KeyAccumulatedAmortization),
		FixedAssetInvestment:    nullable(values, present, KeyFixedAssetInvestment),
	}

	// 派生阶段
	if !present[KeyEBITDA] {
		rec.income.EBITDA = rec.income.OperatingResult.Add(rec.income.Depreciation)
		rec.ebitdaDerived = true
	}
	rec.check = CheckBalance(rec.balance.TotalAssets, rec.balance.TotalLiabilities, rec.balance.Equity)
	if !rec.check.Balanced {
		o.logger.Warn("Balance sheet identity does not hold",
			zap.String("company", rec.identity.CompanyName),
			zap.String("period", rec.identity.Period),
			zap.String("total_assets", rec.balance.TotalAssets.String()),
			zap.String("total_liabilities", rec.balance.TotalLiabilities.String()),
			zap.String("equity", rec.balance.Equity.String()),
			zap.String("discrepancy", rec.check.Discrepancy.String()),
		)
	}

	return rec, nil
}

// Decode 解析 JSON 文本 (保留数字精度) 后调用 New
func Decode(data []byte, opts ...Option) (Record, error) {
	raw, err := jsonx.DecodeObject(data)
	if err != nil {
		return Record{}, &ValidationError{Violations: []Violation{{Message: fmt.Sprintf("invalid JSON object: %v", err)}}}
	}
	return New(raw, opts...)
}

func nullable(values map[string]decimal.Decimal, present map[string]bool, key string) decimal.NullDecimal {
	if !present[key] {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(values[key])
}

func requireText(raw map[string]interface{}, key string, verr *ValidationError) string {
	v, ok := raw[key]
	if !ok || v == nil {
		verr.add(key, "is required")
		return ""
	}
	s, err := toText(v)
	if err != nil {
		verr.add(key, "%s", err.Error())
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		verr.add(key, "must not be empty")
	}
	return s
}

func optionalText(raw map[string]interface{}, key string, verr *ValidationError) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	s, err := toText(v)
	if err != nil {
		verr.add(key, "%s", err.Error())
		return ""
	}
	return strings.TrimSpace(s)
}

func parseTaxID(raw map[string]interface{}, verr *ValidationError) string {
	v, ok := raw[KeyTaxID]
	if !ok || v == nil {
		verr.add(KeyTaxID, "is required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		verr.add(KeyTaxID, "must be a string (got %T)", v)
		return ""
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if taxIDPattern.MatchString(s) {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			verr.add(KeyTaxID, "must contain only digits (got %q)", s)
			return ""
		}
	}
	verr.add(KeyTaxID, "must contain exactly 9 digits (got %d)", len(s))
	return ""
}

// toText 接受字符串，以及整数形式的数值 (模型常把年度输出为数字)
func toText(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return t.String(), nil
		}
	case int:
		return fmt.Sprintf("%d", t), nil
	case int64:
		return fmt.Sprintf("%d", t), nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return fmt.Sprintf("%.0f", t), nil
		}
	}
	return "", fmt.Errorf("must be a string (got %T)", v)
}

// 金额数值范围：整数部分最多 15 位，小数最多 20 位
const (
	maxIntegerDigits = 15
	minExponent      = -20
)

// toDecimal 转换为 decimal 并限制数量级，超大指数会使后续加减除法无法完成
func toDecimal(v interface{}) (decimal.Decimal, error) {
	d, err := parseDecimal(v)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	if d.Exponent() < minExponent {
		return decimal.Zero, fmt.Errorf("must have at most %d decimal places", -minExponent)
	}
	if int64(d.NumDigits())+int64(d.Exponent()) > maxIntegerDigits {
		return decimal.Zero, fmt.Errorf("must have at most %d integer digits", maxIntegerDigits)
	}
	return d, nil
}

func parseDecimal(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("must be a number (got %q)", t.String())
		}
		return d, nil
	case decimal.Decimal:
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, fmt.Errorf("must be a finite number")
		}
		return decimal.NewFromFloat(t), nil
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return decimal.Zero, fmt.Errorf("must be a finite number")
		}
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	default:
		return decimal.Zero, fmt.Errorf("must be a number (got %T)", v)
	}
}
