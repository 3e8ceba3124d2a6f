package sim

import "github.com/shopspring/decimal"

// ProfitLoss is (exit-entry) * lots * contract size, negated for SELL.
func ProfitLoss(dir Direction, entry, exit, lotSize, contractSize float64) float64 {
	return dir.Sign() * (exit - entry) * lotSize * contractSize
}

// RoundCents rounds half away from zero to two decimals.
func RoundCents(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
