package storage

import (
	"context"
	"errors"

	"github.com/camuig/paper-trader/internal/trade"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStale is returned when a conditional write finds the row no longer
	// in the state the caller observed.
	ErrStale = errors.New("stale write: record changed since it was read")

	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("duplicate key")
)

// Store is the persistence surface shared by the SQLite and Postgres
// backends. Calls made with the context handed to WithTx's callback run in
// that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateTrade(ctx context.Context, t *trade.Trade, strategyID string) error
	GetTrade(ctx context.Context, tradeID string) (*trade.Trade, error)
	ListTrades(ctx context.Context, statuses ...trade.Status) ([]trade.Trade, error)
	GetRecentTrades(ctx context.Context, limit int) ([]trade.Trade, error)
	UpdateTrade(ctx context.Context, tradeID string, expect trade.Status, p trade.Patch) error
	UpdateTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error
	RewriteTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error
	RewriteTrade(ctx context.Context, tradeID string, pnl, remaining float64) error

	GetAttribution(ctx context.Context, tradeID string) (*trade.Attribution, error)
	InsertResult(ctx context.Context, attributionID string, pnl float64) (*trade.Result, error)
	ListResults(ctx context.Context, strategyID string) ([]trade.Result, error)

	CreateStrategy(ctx context.Context, s *trade.Strategy) error
	GetStrategy(ctx context.Context, strategyID string) (*trade.Strategy, error)
	GetStrategyByName(ctx context.Context, name string) (*trade.Strategy, error)
	ListStrategies(ctx context.Context) ([]trade.Strategy, error)
	GetStrategyBalance(ctx context.Context, strategyID string) (float64, error)
	UpdateStrategyBalance(ctx context.Context, strategyID string, balance float64) error
	IncrementStrategyBalance(ctx context.Context, strategyID string, delta float64) (float64, error)

	GetTodayPnL(ctx context.Context) (float64, error)
	GetTotalPnL(ctx context.Context) (float64, error)
}
