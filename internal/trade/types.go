package trade

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPositionSize is the virtual capital allocated to a trade when none is given.
const DefaultPositionSize = 1000.0

// remainingTolerance is the amount below which a remaining position snaps to zero.
const remainingTolerance = 0.01

var ErrInvalidTrade = errors.New("invalid trade")

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func (d Direction) Valid() bool {
	return d == Long || d == Short
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidTrade, s)
	}
	return d, nil
}

type Status string

const (
	StatusPendingEntry    Status = "pending_entry"
	StatusEntered         Status = "entered"
	StatusTPAllHit        Status = "tp_all_hit"
	StatusSLHit           Status = "sl_hit"
	StatusTPPartialThenSL Status = "tp_partial_then_sl"
	StatusCancelled       Status = "cancelled"
)

// OpenStatuses are the statuses a sync pass evaluates.
var OpenStatuses = []Status{StatusPendingEntry, StatusEntered}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusTPAllHit, StatusSLHit, StatusTPPartialThenSL, StatusCancelled:
		return true
	}
	return false
}

// Settled reports whether s is a terminal outcome that realized PnL.
func (s Status) Settled() bool {
	return s.Terminal() && s != StatusCancelled
}

type TakeProfit struct {
	ID         string     `json:"id"`
	TradeID    string     `json:"trade_id"`
	Price      float64    `json:"tp_price"`
	IsHit      bool       `json:"is_hit"`
	HitAt      *time.Time `json:"hit_at,omitempty"`
	PnLPortion float64    `json:"pnl_portion"`
}

type Trade struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	Direction         Direction    `json:"direction"`
	EntryPrice        float64      `json:"entry_price"`
	StopLoss          float64      `json:"sl"`
	Status            Status       `json:"status"`
	PnL               float64      `json:"pnl"`
	PositionSize      float64      `json:"position_size"`
	RemainingPosition float64      `json:"remaining_position"`
	ExitPrice         *float64     `json:"exit_price,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         *time.Time   `json:"updated_at,omitempty"`
	TakeProfits       []TakeProfit `json:"trade_tps"`
}

// Size returns the position size, falling back to DefaultPositionSize.
func (t *Trade) Size() float64 {
	if t.PositionSize > 0 {
		return t.PositionSize
	}
	return DefaultPositionSize
}

// CapitalPerTakeProfit splits the position evenly across the take-profit rungs.
func (t *Trade) CapitalPerTakeProfit() float64 {
	if len(t.TakeProfits) == 0 {
		return 0
	}
	return t.Size() / float64(len(t.TakeProfits))
}

// HitCount returns the number of take-profits already hit.
func (t *Trade) HitCount() int {
	n := 0
	for _, tp := range t.TakeProfits {
		if tp.IsHit {
			n++
		}
	}
	return n
}

func (t *Trade) validate() error {
	if !t.Direction.Valid() {
		return fmt.Errorf("%w: trade %s has direction %q", ErrInvalidTrade, t.ID, t.Direction)
	}
	if t.EntryPrice <= 0 {
		return fmt.Errorf("%w: trade %s has entry price %v", ErrInvalidTrade, t.ID, t.EntryPrice)
	}
	if t.StopLoss <= 0 {
		return fmt.Errorf("%w: trade %s has stop-loss %v", ErrInvalidTrade, t.ID, t.StopLoss)
	}
	return nil
}

type Strategy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Balance     float64   `json:"balance"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Attribution links a trade to the strategy credited with its PnL.
type Attribution struct {
	ID         string `json:"id"`
	TradeID    string `json:"trade_id"`
	StrategyID string `json:"strategy_id"`
}

// Result is an append-only ledger row written once per trade closure.
type Result struct {
	ID            string    `json:"id"`
	AttributionID string    `json:"attribution_id"`
	PnL           float64   `json:"pnl"`
	CreatedAt     time.Time `json:"created_at"`
}

// Patch holds the trade fields a pass may write. Nil fields are left untouched.
type Patch struct {
	Status            *Status
	PnL               *float64
	RemainingPosition *float64
	ExitPrice         *float64
	UpdatedAt         time.Time
}

// TakeProfitHit records a take-profit rung firing.
type TakeProfitHit struct {
	ID         string    `json:"id"`
	Price      float64   `json:"tp_price"`
	HitAt      time.Time `json:"hit_at"`
	PnLPortion float64   `json:"pnl_portion"`
}

// Closure describes a terminal transition that realized PnL.
type Closure struct {
	Status    Status  `json:"status"`
	FinalPnL  float64 `json:"final_pnl"`
	ExitPrice float64 `json:"exit_price"`
}

// Patch converts the closure into the trade fields written on settlement.
func (c Closure) Patch(at time.Time) Patch {
	status := c.Status
	pnl := c.FinalPnL
	exit := c.ExitPrice
	zero := 0.0
	return Patch{
		Status:            &status,
		PnL:               &pnl,
		RemainingPosition: &zero,
		ExitPrice:         &exit,
		UpdatedAt:         at,
	}
}
