package storage

import (
	"time"

	"github.com/camuig/paper-trader/internal/trade"
)

type Trade struct {
	ID        string `gorm:"primarykey;size:26"`
	CreatedAt time.Time
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false"`

	UserID            string  `gorm:"index"`
	Direction         string  `gorm:"not null"`
	EntryPrice        float64 `gorm:"not null"`
	SL                float64 `gorm:"column:sl;not null"`
	Status            string  `gorm:"index;not null;default:'pending_entry'"`
	PnL               float64 `gorm:"column:pnl;not null;default:0"`
	PositionSize      float64 `gorm:"not null;default:1000"`
	RemainingPosition float64 `gorm:"not null"`
	ExitPrice         *float64

	TakeProfits []TakeProfit `gorm:"foreignKey:TradeID"`
}

func (Trade) TableName() string { return "trades" }

type TakeProfit struct {
	ID         string  `gorm:"primarykey;size:26"`
	TradeID    string  `gorm:"index;not null;size:26"`
	TPPrice    float64 `gorm:"column:tp_price;not null"`
	IsHit      bool    `gorm:"not null;default:false"`
	HitAt      *time.Time
	PnLPortion float64 `gorm:"column:pnl_portion;not null;default:0"`
}

func (TakeProfit) TableName() string { return "trade_tps" }

type Strategy struct {
	ID          string `gorm:"primarykey;size:26"`
	CreatedAt   time.Time
	Name        string  `gorm:"uniqueIndex;not null"`
	Description string
	Balance     float64 `gorm:"not null;default:1000"`
	UserID      string  `gorm:"index"`
}

func (Strategy) TableName() string { return "ai_strategies" }

type Attribution struct {
	ID         string `gorm:"primarykey;size:26"`
	TradeID    string `gorm:"uniqueIndex;not null;size:26"`
	StrategyID string `gorm:"column:ai_strategy_id;index;not null;size:26"`
}

func (Attribution) TableName() string { return "trade_ai_attribution" }

type Result struct {
	ID            string `gorm:"primarykey;size:26"`
	CreatedAt     time.Time
	AttributionID string  `gorm:"column:trade_ai_attribution_id;uniqueIndex;not null;size:26"`
	PnL           float64 `gorm:"column:pnl;not null"`
}

func (Result) TableName() string { return "ai_results" }

func toTrade(m *Trade) trade.Trade {
	t := trade.Trade{
		ID:                m.ID,
		UserID:            m.UserID,
		Direction:         trade.Direction(m.Direction),
		EntryPrice:        m.EntryPrice,
		StopLoss:          m.SL,
		Status:            trade.Status(m.Status),
		PnL:               m.PnL,
		PositionSize:      m.PositionSize,
		RemainingPosition: m.RemainingPosition,
		ExitPrice:         m.ExitPrice,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	for _, tp := range m.TakeProfits {
		t.TakeProfits = append(t.TakeProfits, trade.TakeProfit{
			ID:         tp.ID,
			TradeID:    tp.TradeID,
			Price:      tp.TPPrice,
			IsHit:      tp.IsHit,
			HitAt:      tp.HitAt,
			PnLPortion: tp.PnLPortion,
		})
	}
	return t
}

func fromTrade(t *trade.Trade) *Trade {
	m := &Trade{
		ID:                t.ID,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		UserID:            t.UserID,
		Direction:         string(t.Direction),
		EntryPrice:        t.EntryPrice,
		SL:                t.StopLoss,
		Status:            string(t.Status),
		PnL:               t.PnL,
		PositionSize:      t.PositionSize,
		RemainingPosition: t.RemainingPosition,
		ExitPrice:         t.ExitPrice,
	}
	for _, tp := range t.TakeProfits {
		m.TakeProfits = append(m.TakeProfits, TakeProfit{
			ID:         tp.ID,
			TradeID:    t.ID,
			TPPrice:    tp.Price,
			IsHit:      tp.IsHit,
			HitAt:      tp.HitAt,
			PnLPortion: tp.PnLPortion,
		})
	}
	return m
}

func toStrategy(m *Strategy) trade.Strategy {
	return trade.Strategy{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Balance:     m.Balance,
		UserID:      m.UserID,
		CreatedAt:   m.CreatedAt,
	}
}
