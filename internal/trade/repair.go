package trade

import "math"

const repairEpsilon = 1e-6

// Repair lists the corrections needed to make a trade consistent with its
// take-profit ledger and status.
type Repair struct {
	TradeID           string
	TakeProfits       []TakeProfitHit
	PnL               float64
	RemainingPosition float64
	OldPnL            float64
	OldRemaining      float64
}

// Changed reports whether the repair rewrites anything.
func (r *Repair) Changed() bool {
	return len(r.TakeProfits) > 0 ||
		math.Abs(r.PnL-r.OldPnL) > repairEpsilon ||
		math.Abs(r.RemainingPosition-r.OldRemaining) > repairEpsilon
}

// Recompute rebuilds PnL for an entered or settled trade. A tp_all_hit trade
// treats every rung as hit; stop-loss outcomes charge the loss on the capital
// of the rungs that never hit, priced at the stop-loss level. Pending and
// cancelled trades return nil.
func Recompute(t *Trade) *Repair {
	if t.Status == StatusPendingEntry || t.Status == StatusCancelled {
		return nil
	}

	r := &Repair{
		TradeID:      t.ID,
		OldPnL:       t.PnL,
		OldRemaining: t.RemainingPosition,
	}

	capital := t.CapitalPerTakeProfit()
	allHit := t.Status == StatusTPAllHit
	hit := 0
	var realized float64
	for _, tp := range t.TakeProfits {
		if !tp.IsHit && !allHit {
			continue
		}
		hit++
		portion := PnL(t.Direction, t.EntryPrice, tp.Price, capital)
		realized += portion
		if !tp.IsHit || math.Abs(tp.PnLPortion-portion) > repairEpsilon {
			fix := TakeProfitHit{ID: tp.ID, Price: tp.Price, PnLPortion: portion}
			if tp.HitAt != nil {
				fix.HitAt = *tp.HitAt
			}
			r.TakeProfits = append(r.TakeProfits, fix)
		}
	}

	open := t.Size() - float64(hit)*capital
	if len(t.TakeProfits) == 0 {
		open = t.RemainingPosition
		if t.Status == StatusSLHit {
			open = t.Size()
		}
		realized = 0
	}
	open, _ = snapRemaining(open)

	switch t.Status {
	case StatusSLHit, StatusTPPartialThenSL:
		r.PnL = realized + PnL(t.Direction, t.EntryPrice, t.StopLoss, open)
		r.RemainingPosition = 0
	case StatusTPAllHit:
		r.PnL = realized
		r.RemainingPosition = 0
	default:
		if len(t.TakeProfits) == 0 {
			realized = t.PnL
		}
		r.PnL = realized
		r.RemainingPosition = open
	}
	return r
}
