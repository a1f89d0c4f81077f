package trade

import "github.com/shopspring/decimal"

// triggerPlaces is the precision prices are rounded to before trigger comparisons.
const triggerPlaces = 4

// IsTriggered reports whether currentPrice has reached targetPrice.
// A long target fires at or above the level and a long stop-loss at or below it;
// short positions invert both. Touching the level exactly counts as triggered.
func IsTriggered(dir Direction, currentPrice, targetPrice float64, isStopLoss bool) bool {
	cmp := decimal.NewFromFloat(currentPrice).Round(triggerPlaces).
		Cmp(decimal.NewFromFloat(targetPrice).Round(triggerPlaces))

	rising := dir == Long
	if isStopLoss {
		rising = !rising
	}
	if rising {
		return cmp >= 0
	}
	return cmp <= 0
}

// ReturnRate is the fractional return of moving from entry to exit.
// It is 0 for a zero entry price.
func ReturnRate(dir Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	diff := exit - entry
	if dir == Short {
		diff = entry - exit
	}
	return diff / entry
}

// PnL is the currency profit or loss of capital moved from entry to exit.
func PnL(dir Direction, entry, exit, capital float64) float64 {
	return ReturnRate(dir, entry, exit) * capital
}

// UnrealizedPnL returns realized PnL plus the floating PnL of the remaining
// position at price. Only entered trades float; everything else reports the
// stored PnL.
func UnrealizedPnL(t *Trade, price float64) float64 {
	if t.Status != StatusEntered || price <= 0 || t.RemainingPosition <= 0 {
		return t.PnL
	}
	return t.PnL + PnL(t.Direction, t.EntryPrice, price, t.RemainingPosition)
}

// Round2 rounds a currency amount to cents for display.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
