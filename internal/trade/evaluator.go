package trade

// EvaluateEntered runs the entered-trade state machine against price.
//
// Realized PnL and the remaining position are rebuilt from the take-profit
// ledger rather than the trade's cached fields, so a pass that wrote TP rows
// but failed before writing the trade heals on the next pass instead of
// counting twice. The stop-loss is checked before any take-profit and fills
// at its own level.
func (e *Evaluator) EvaluateEntered(t *Trade, price float64) (*Evaluation, error) {
	ev := &Evaluation{TradeID: t.ID, From: t.Status}
	if t.Status != StatusEntered {
		return ev, nil
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	realized, remaining, clamped := t.ledger()
	ev.Clamped = clamped
	hitBefore := t.HitCount()

	if IsTriggered(t.Direction, price, t.StopLoss, true) {
		loss := PnL(t.Direction, t.EntryPrice, t.StopLoss, remaining)
		status := StatusSLHit
		if hitBefore > 0 {
			status = StatusTPPartialThenSL
		}
		ev.Closure = &Closure{
			Status:    status,
			FinalPnL:  realized + loss,
			ExitPrice: t.StopLoss,
		}
		return ev, nil
	}

	capital := t.CapitalPerTakeProfit()
	at := e.now().UTC()
	var gained float64
	furthest := 0.0
	for _, tp := range t.TakeProfits {
		if tp.IsHit || !IsTriggered(t.Direction, price, tp.Price, false) {
			continue
		}
		profit := PnL(t.Direction, t.EntryPrice, tp.Price, capital)
		ev.TakeProfitHits = append(ev.TakeProfitHits, TakeProfitHit{
			ID:         tp.ID,
			Price:      tp.Price,
			HitAt:      at,
			PnLPortion: profit,
		})
		gained += profit
		remaining -= capital
		if furthest == 0 || IsTriggered(t.Direction, tp.Price, furthest, false) {
			furthest = tp.Price
		}
	}

	if len(ev.TakeProfitHits) == 0 {
		return ev, nil
	}

	remaining, c := snapRemaining(remaining)
	ev.Clamped = ev.Clamped || c
	total := realized + gained

	if hitBefore+len(ev.TakeProfitHits) == len(t.TakeProfits) {
		exit := price
		if e.policy.ExitAtLastTakeProfit {
			exit = furthest
		}
		ev.Closure = &Closure{
			Status:    StatusTPAllHit,
			FinalPnL:  total,
			ExitPrice: exit,
		}
		return ev, nil
	}

	ev.Progress = &Progress{PnL: total, RemainingPosition: remaining}
	return ev, nil
}

// ledger reconstructs realized PnL and remaining capital. With no take-profits
// there is no ledger and the stored fields are used.
func (t *Trade) ledger() (realized, remaining float64, clamped bool) {
	if len(t.TakeProfits) == 0 {
		remaining, clamped = snapRemaining(t.RemainingPosition)
		return t.PnL, remaining, clamped
	}

	hit := 0
	for _, tp := range t.TakeProfits {
		if tp.IsHit {
			realized += tp.PnLPortion
			hit++
		}
	}
	remaining = t.Size() - float64(hit)*t.CapitalPerTakeProfit()
	remaining, clamped = snapRemaining(remaining)
	return realized, remaining, clamped
}

// snapRemaining zeroes remaining capital under the tolerance. clamped reports
// a negative value beyond the tolerance, which means an upstream bug.
func snapRemaining(v float64) (float64, bool) {
	if v < remainingTolerance {
		return 0, v < -remainingTolerance
	}
	return v, false
}
