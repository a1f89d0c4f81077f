package syncer

import (
	"time"

	"github.com/camuig/paper-trader/internal/trade"
)

// Result classifies what a pass did to one trade.
type Result string

const (
	ResultUnchanged Result = "unchanged"
	ResultEntered   Result = "entered"
	ResultCancelled Result = "cancelled"
	ResultPartial   Result = "partial"
	ResultClosed    Result = "closed"
	// ResultStale means the trade changed underneath the pass and nothing
	// was written. The next pass re-evaluates it.
	ResultStale  Result = "stale"
	ResultFailed Result = "failed"
)

type Outcome struct {
	TradeID        string       `json:"trade_id"`
	From           trade.Status `json:"from"`
	To             trade.Status `json:"to"`
	Result         Result       `json:"result"`
	PnL            float64      `json:"pnl"`
	TakeProfitsHit int          `json:"take_profits_hit,omitempty"`
	Settled        bool         `json:"settled,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Report summarizes one pass.
type Report struct {
	Price     float64       `json:"price"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Evaluated int `json:"evaluated"`
	Entered   int `json:"entered"`
	Cancelled int `json:"cancelled"`
	Partial   int `json:"partial"`
	Closed    int `json:"closed"`
	Unchanged int `json:"unchanged"`
	Stale     int `json:"stale"`
	Failed    int `json:"failed"`

	Outcomes []Outcome `json:"outcomes"`
}

func (r *Report) add(o Outcome) {
	r.Evaluated++
	switch o.Result {
	case ResultEntered:
		r.Entered++
	case ResultCancelled:
		r.Cancelled++
	case ResultPartial:
		r.Partial++
	case ResultClosed:
		r.Closed++
	case ResultStale:
		r.Stale++
	case ResultFailed:
		r.Failed++
	default:
		r.Unchanged++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Updated reports whether the pass persisted anything.
func (r *Report) Updated() int {
	return r.Entered + r.Cancelled + r.Partial + r.Closed
}
