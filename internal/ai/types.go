package ai

import (
	"fmt"
	"strings"

	"github.com/camuig/paper-trader/internal/trade"
)

// SignalRequest is the market context sent to the model for one strategy.
type SignalRequest struct {
	Strategy     trade.Strategy
	Symbol       string
	Price        float64
	OpenTrades   []trade.Trade
	RecentTrades []trade.Trade
}

// Signal is a trade setup proposed by the model.
type Signal struct {
	Direction   string    `json:"direction"` // long or short
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`
	Confidence  int       `json:"confidence"` // 0-100
	Reasoning   string    `json:"reasoning"`
}

// Setup converts the signal into a validated trade setup.
func (s Signal) Setup(userID string, positionSize float64) (trade.Setup, error) {
	dir, err := trade.ParseDirection(strings.ToLower(strings.TrimSpace(s.Direction)))
	if err != nil {
		return trade.Setup{}, err
	}
	setup := trade.Setup{
		UserID:       userID,
		Direction:    dir,
		EntryPrice:   s.EntryPrice,
		StopLoss:     s.StopLoss,
		TakeProfits:  s.TakeProfits,
		PositionSize: positionSize,
	}
	if err := setup.Validate(); err != nil {
		return trade.Setup{}, fmt.Errorf("signal setup: %w", err)
	}
	return setup, nil
}
