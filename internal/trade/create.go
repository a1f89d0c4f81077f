package trade

import (
	"fmt"
	"sort"
	"time"
)

// Setup is the user-supplied configuration of a new trade.
type Setup struct {
	UserID       string    `json:"user_id"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"sl"`
	TakeProfits  []float64 `json:"tps"`
	PositionSize float64   `json:"position_size,omitempty"`
}

// Validate checks that the levels are ordered for the direction: a long needs
// stop-loss < entry < every take-profit, a short the reverse.
func (s Setup) Validate() error {
	if !s.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidTrade, s.Direction)
	}
	if s.EntryPrice <= 0 || s.StopLoss <= 0 {
		return fmt.Errorf("%w: entry and stop-loss must be positive", ErrInvalidTrade)
	}
	if s.PositionSize < 0 {
		return fmt.Errorf("%w: negative position size", ErrInvalidTrade)
	}
	if s.Direction == Long && s.StopLoss >= s.EntryPrice {
		return fmt.Errorf("%w: long stop-loss %v must be below entry %v", ErrInvalidTrade, s.StopLoss, s.EntryPrice)
	}
	if s.Direction == Short && s.StopLoss <= s.EntryPrice {
		return fmt.Errorf("%w: short stop-loss %v must be above entry %v", ErrInvalidTrade, s.StopLoss, s.EntryPrice)
	}
	for _, tp := range s.TakeProfits {
		if tp <= 0 {
			return fmt.Errorf("%w: take-profit %v must be positive", ErrInvalidTrade, tp)
		}
		if ReturnRate(s.Direction, s.EntryPrice, tp) <= 0 {
			return fmt.Errorf("%w: %s take-profit %v is not beyond entry %v", ErrInvalidTrade, s.Direction, tp, s.EntryPrice)
		}
	}
	return nil
}

// NewTrade builds a pending trade from setup. newID generates record IDs.
// Take-profits are ordered nearest first.
func NewTrade(s Setup, newID func() string, now time.Time) (*Trade, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	size := s.PositionSize
	if size == 0 {
		size = DefaultPositionSize
	}

	t := &Trade{
		ID:                newID(),
		UserID:            s.UserID,
		Direction:         s.Direction,
		EntryPrice:        s.EntryPrice,
		StopLoss:          s.StopLoss,
		Status:            StatusPendingEntry,
		PositionSize:      size,
		RemainingPosition: size,
		CreatedAt:         now.UTC(),
	}

	prices := append([]float64(nil), s.TakeProfits...)
	sort.Slice(prices, func(i, j int) bool {
		return ReturnRate(s.Direction, s.EntryPrice, prices[i]) < ReturnRate(s.Direction, s.EntryPrice, prices[j])
	})
	for _, p := range prices {
		t.TakeProfits = append(t.TakeProfits, TakeProfit{
			ID:      newID(),
			TradeID: t.ID,
			Price:   p,
		})
	}
	return t, nil
}
