// Package recordtest 提供测试用的 IES 原始数据
package recordtest

import (
	"encoding/json"
	"testing"

	"github.com/autofund-ai/autofund/internal/record"
	"github.com/stretchr/testify/require"
)

// Raw 返回一份平衡、合法的原始映射，EBITDA 缺省 (推导为 7606.10)
func Raw() map[string]interface{} {
	return map[string]interface{}{
		record.KeyCompanyName: "Exemplo Tecnologia, Lda",
		record.KeyTaxID:       "123 456 789",
		record.KeyPeriod:      "2023",
		record.KeySectorCode:  "62010",

		record.KeyRevenue:          json.Number("245831.27"),
		record.KeyCostOfGoodsSold:  json.Number("0"),
		record.KeyCostOfMaterials:  json.Number("12000.00"),
		record.KeyExternalServices: json.Number("98000.00"),
		record.KeyPersonnel:        json.Number("128225.17"),
		record.KeyDepreciation:     json.Number("2500.00"),
		record.KeyOperatingResult:  json.Number("5106.10"),
		record.KeyFinancialResult:  json.Number("-320.50"),
		record.KeyPreTaxResult:     json.Number("4785.60"),
		record.KeyIncomeTax:        json.Number("1005.00"),
		record.KeyNetResult:        json.Number("3780.60"),

		record.KeyCurrentAssets:         json.Number("42000.00"),
		record.KeyNonCurrentAssets:      json.Number("38685.97"),
		record.KeyTotalAssets:           json.Number("80685.97"),
		record.KeyCurrentLiabilities:    json.Number("28239.70"),
		record.KeyNonCurrentLiabilities: json.Number("6500.00"),
		record.KeyTotalLiabilities:      json.Number("34739.70"),
		record.KeyEquity:                json.Number("45946.27"),
	}
}

// With 在 Raw 基础上覆盖字段，值为 nil 时删除该字段
func With(overrides map[string]interface{}) map[string]interface{} {
	raw := Raw()
	for k, v := range overrides {
		if v == nil {
			delete(raw, k)
			continue
		}
		raw[k] = v
	}
	return raw
}

// MustNew 构建 Record，失败时终止测试
func MustNew(t testing.TB, overrides map[string]interface{}) record.Record {
	t.Helper()
	rec, err := record.New(With(overrides))
	require.NoError(t, err)
	return rec
}
