package trade

import "time"

// Policy configures the evaluators.
type Policy struct {
	// InvalidateOnPreEntrySLHit cancels a pending trade whose stop-loss level
	// is crossed before its entry triggers.
	InvalidateOnPreEntrySLHit bool

	// ExitAtLastTakeProfit records the furthest take-profit price as the exit
	// price of a tp_all_hit closure instead of the observed market price.
	ExitAtLastTakeProfit bool
}

// Evaluator decides state transitions for trades against a price. It performs
// no I/O; the returned Evaluation is applied by the caller.
type Evaluator struct {
	policy Policy
	now    func() time.Time
}

func NewEvaluator(policy Policy) *Evaluator {
	return &Evaluator{policy: policy, now: time.Now}
}

// WithClock returns a copy of e that stamps hits with now.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	c := *e
	c.now = now
	return &c
}

func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Evaluation is the set of updates produced for one trade in one pass.
type Evaluation struct {
	TradeID string
	// From is the status observed when the trade was evaluated.
	From Status

	// Transition is a status change that realizes no PnL (entry or cancellation).
	Transition Status

	TakeProfitHits []TakeProfitHit

	// Progress is set for a non-terminal partial update.
	Progress *Progress

	// Closure is set when the trade settles.
	Closure *Closure

	// Clamped is set when the remaining position had to be clamped at zero.
	Clamped bool
}

// Progress carries the running totals of a trade that stays entered.
type Progress struct {
	PnL               float64
	RemainingPosition float64
}

// Changed reports whether the evaluation produced anything to persist.
func (ev *Evaluation) Changed() bool {
	return ev.Transition != "" || len(ev.TakeProfitHits) > 0 || ev.Progress != nil || ev.Closure != nil
}

// Evaluate dispatches on the trade status. Terminal trades are a no-op.
func (e *Evaluator) Evaluate(t *Trade, price float64) (*Evaluation, error) {
	switch t.Status {
	case StatusPendingEntry:
		return e.EvaluatePending(t, price)
	case StatusEntered:
		return e.EvaluateEntered(t, price)
	}
	return &Evaluation{TradeID: t.ID, From: t.Status}, nil
}

// EvaluatePending decides whether a pending trade enters, or is cancelled when
// the policy invalidates setups whose stop-loss was crossed first.
func (e *Evaluator) EvaluatePending(t *Trade, price float64) (*Evaluation, error) {
	ev := &Evaluation{TradeID: t.ID, From: t.Status}
	if t.Status != StatusPendingEntry {
		return ev, nil
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	if e.policy.InvalidateOnPreEntrySLHit && IsTriggered(t.Direction, price, t.StopLoss, true) {
		ev.Transition = StatusCancelled
		return ev, nil
	}
	if IsTriggered(t.Direction, price, t.EntryPrice, false) {
		ev.Transition = StatusEntered
	}
	return ev, nil
}
