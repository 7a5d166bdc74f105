package order

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundToTick rounds price to the nearest multiple of tick, half away from
// zero. The sign is preserved, so credits round the same distance as debits.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price.Round(2)
	}
	return price.Div(tick).Round(0).Mul(tick).Round(2)
}

// RollNetPrice returns the signed net price for closing an old position and
// opening a new one in a single order. oldDebit is the unsigned cost of
// buying the old contracts back, newCredit the unsigned premium for the new
// ones; a negative result is a net credit.
//
// When the quantities differ, both sides are scaled before netting, so
// rolling 2 contracts into 3 prices the whole package.
func RollNetPrice(oldDebit, newCredit decimal.Decimal, oldQuantity, newQuantity int) decimal.Decimal {
	if oldQuantity != newQuantity {
		oldTotal := oldDebit.Mul(decimal.NewFromInt(int64(oldQuantity)))
		newTotal := newCredit.Mul(decimal.NewFromInt(int64(newQuantity)))
		return oldTotal.Sub(newTotal).Round(2)
	}
	return oldDebit.Sub(newCredit).Round(2)
}

// AdjustPercent shrinks an asking credit to pct% of the market price, making
// an order easier to fill. Small prices adjust by cents rather than
// proportionally, so a 0.50 credit asking 95% gives up 0.05, not 0.025.
// pct of 100 leaves the price unchanged.
func AdjustPercent(price decimal.Decimal, pct int) decimal.Decimal {
	if pct >= 100 || pct <= 0 {
		return price.Round(2)
	}
	if price.Abs().LessThan(hundred) {
		cents := decimal.NewFromInt(int64(100 - pct)).Div(hundred)
		if price.Sign() < 0 {
			return price.Add(cents).Round(2)
		}
		return price.Sub(cents).Round(2)
	}
	return price.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(2)
}
