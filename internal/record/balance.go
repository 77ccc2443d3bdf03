package record

import "github.com/shopspring/decimal"

// BalanceTolerance 资产 = 负债 + 权益 允许的最大绝对差额 (欧元)
// 策略常量，保持与历史输出一致
var BalanceTolerance = decimal.NewFromInt(100)

// BalanceCheck 会计恒等式校验结果，仅作提示，不阻断处理
type BalanceCheck struct {
	Balanced    bool
	Discrepancy decimal.Decimal
	Tolerance   decimal.Decimal
}

// CheckBalance 校验 total_assets ≈ total_liabilities + equity
// 差额恰好等于容差时视为平衡
func CheckBalance(totalAssets, totalLiabilities, equity decimal.Decimal) BalanceCheck {
	diff := totalAssets.Sub(totalLiabilities.Add(equity)).Abs()
	return BalanceCheck{
		Balanced:    diff.LessThanOrEqual(BalanceTolerance),
		Discrepancy: diff,
		Tolerance:   BalanceTolerance,
	}
}
