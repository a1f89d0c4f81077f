package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/trade"
)

// Repository is the gorm-backed Store used with SQLite.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

type txKey struct{}

// WithTx runs fn in a transaction. Repository calls made with the context
// passed to fn join it.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Trades

// CreateTrade stores a trade with its take-profits and, when strategyID is
// set, the attribution linking it to that strategy.
func (r *Repository) CreateTrade(ctx context.Context, t *trade.Trade, strategyID string) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		db := r.conn(ctx)
		if strategyID != "" {
			var n int64
			if err := db.Model(&Strategy{}).Where("id = ?", strategyID).Count(&n).Error; err != nil {
				return fmt.Errorf("check strategy: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
			}
		}

		if err := db.Create(fromTrade(t)).Error; err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		if strategyID != "" {
			a := &Attribution{ID: id.New(), TradeID: t.ID, StrategyID: strategyID}
			if err := db.Create(a).Error; err != nil {
				return fmt.Errorf("insert attribution: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetTrade(ctx context.Context, tradeID string) (*trade.Trade, error) {
	var m Trade
	err := r.conn(ctx).Preload("TakeProfits", orderByID).First(&m, "id = ?", tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t := toTrade(&m)
	return &t, nil
}

// ListTrades returns trades with their take-profits, oldest first. With no
// statuses every trade is returned.
func (r *Repository) ListTrades(ctx context.Context, statuses ...trade.Status) ([]trade.Trade, error) {
	q := r.conn(ctx).Preload("TakeProfits", orderByID).Order("created_at, id")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	var models []Trade
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return toTrades(models), nil
}

func (r *Repository) GetRecentTrades(ctx context.Context, limit int) ([]trade.Trade, error) {
	var models []Trade
	err := r.conn(ctx).Preload("TakeProfits", orderByID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toTrades(models), nil
}

// UpdateTrade writes p only if the trade still has status expect.
func (r *Repository) UpdateTrade(ctx context.Context, tradeID string, expect trade.Status, p trade.Patch) error {
	updates := map[string]any{"updated_at": p.UpdatedAt.UTC()}
	if p.Status != nil {
		updates["status"] = string(*p.Status)
	}
	if p.PnL != nil {
		updates["pnl"] = *p.PnL
	}
	if p.RemainingPosition != nil {
		updates["remaining_position"] = *p.RemainingPosition
	}
	if p.ExitPrice != nil {
		updates["exit_price"] = *p.ExitPrice
	}

	res := r.conn(ctx).Model(&Trade{}).
		Where("id = ? AND status = ?", tradeID, string(expect)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update trade %s: %w", tradeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOrStale(ctx, &Trade{}, tradeID)
	}
	return nil
}

// UpdateTakeProfit marks a take-profit hit. A rung that is already hit is
// reported as ErrStale and left untouched.
func (r *Repository) UpdateTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error {
	hitAt := hit.HitAt.UTC()
	res := r.conn(ctx).Model(&TakeProfit{}).
		Where("id = ? AND is_hit = ?", hit.ID, false).
		Updates(map[string]any{
			"is_hit":      true,
			"hit_at":      &hitAt,
			"pnl_portion": hit.PnLPortion,
		})
	if res.Error != nil {
		return fmt.Errorf("update take-profit %s: %w", hit.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOrStale(ctx, &TakeProfit{}, hit.ID)
	}
	return nil
}

// RewriteTakeProfit unconditionally marks a rung hit with the given portion.
// Used by PnL repair.
func (r *Repository) RewriteTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error {
	updates := map[string]any{
		"is_hit":      true,
		"pnl_portion": hit.PnLPortion,
	}
	if !hit.HitAt.IsZero() {
		hitAt := hit.HitAt.UTC()
		updates["hit_at"] = &hitAt
	}
	res := r.conn(ctx).Model(&TakeProfit{}).Where("id = ?", hit.ID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("rewrite take-profit %s: %w", hit.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("take-profit %s: %w", hit.ID, ErrNotFound)
	}
	return nil
}

// RewriteTrade unconditionally sets a trade's PnL and remaining position.
// Used by PnL repair.
func (r *Repository) RewriteTrade(ctx context.Context, tradeID string, pnl, remaining float64) error {
	res := r.conn(ctx).Model(&Trade{}).Where("id = ?", tradeID).Updates(map[string]any{
		"pnl":                pnl,
		"remaining_position": remaining,
		"updated_at":         time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("rewrite trade %s: %w", tradeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
	}
	return nil
}

func (r *Repository) missingOrStale(ctx context.Context, model any, rowID string) error {
	var n int64
	if err := r.conn(ctx).Model(model).Where("id = ?", rowID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", rowID, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", rowID, ErrStale)
}

// Attribution and results

func (r *Repository) GetAttribution(ctx context.Context, tradeID string) (*trade.Attribution, error) {
	var m Attribution
	err := r.conn(ctx).First(&m, "trade_id = ?", tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("attribution for trade %s: %w", tradeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &trade.Attribution{ID: m.ID, TradeID: m.TradeID, StrategyID: m.StrategyID}, nil
}

func (r *Repository) InsertResult(ctx context.Context, attributionID string, pnl float64) (*trade.Result, error) {
	m := &Result{ID: id.New(), AttributionID: attributionID, PnL: pnl, CreatedAt: time.Now().UTC()}
	if err := r.conn(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("insert result: %w", translate(err))
	}
	return &trade.Result{ID: m.ID, AttributionID: m.AttributionID, PnL: m.PnL, CreatedAt: m.CreatedAt}, nil
}

// ListResults returns the ledger rows credited to a strategy, oldest first.
func (r *Repository) ListResults(ctx context.Context, strategyID string) ([]trade.Result, error) {
	var models []Result
	err := r.conn(ctx).
		Joins("JOIN trade_ai_attribution ON trade_ai_attribution.id = ai_results.trade_ai_attribution_id").
		Where("trade_ai_attribution.ai_strategy_id = ?", strategyID).
		Order("ai_results.created_at, ai_results.id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	results := make([]trade.Result, 0, len(models))
	for _, m := range models {
		results = append(results, trade.Result{ID: m.ID, AttributionID: m.AttributionID, PnL: m.PnL, CreatedAt: m.CreatedAt})
	}
	return results, nil
}

// Strategies

func (r *Repository) CreateStrategy(ctx context.Context, s *trade.Strategy) error {
	m := &Strategy{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		Name:        s.Name,
		Description: s.Description,
		Balance:     s.Balance,
		UserID:      s.UserID,
	}
	if err := r.conn(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert strategy: %w", translate(err))
	}
	return nil
}

func (r *Repository) GetStrategy(ctx context.Context, strategyID string) (*trade.Strategy, error) {
	return r.findStrategy(ctx, "id = ?", strategyID)
}

func (r *Repository) GetStrategyByName(ctx context.Context, name string) (*trade.Strategy, error) {
	return r.findStrategy(ctx, "name = ?", name)
}

func (r *Repository) findStrategy(ctx context.Context, query string, arg string) (*trade.Strategy, error) {
	var m Strategy
	err := r.conn(ctx).First(&m, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("strategy %s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s := toStrategy(&m)
	return &s, nil
}

func (r *Repository) ListStrategies(ctx context.Context) ([]trade.Strategy, error) {
	var models []Strategy
	if err := r.conn(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]trade.Strategy, 0, len(models))
	for i := range models {
		out = append(out, toStrategy(&models[i]))
	}
	return out, nil
}

func (r *Repository) GetStrategyBalance(ctx context.Context, strategyID string) (float64, error) {
	s, err := r.GetStrategy(ctx, strategyID)
	if err != nil {
		return 0, err
	}
	return s.Balance, nil
}

// UpdateStrategyBalance overwrites the balance. Settlement uses
// IncrementStrategyBalance instead.
func (r *Repository) UpdateStrategyBalance(ctx context.Context, strategyID string, balance float64) error {
	res := r.conn(ctx).Model(&Strategy{}).Where("id = ?", strategyID).Update("balance", balance)
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
	}
	return nil
}

// IncrementStrategyBalance adds delta in a single UPDATE and returns the new
// balance.
func (r *Repository) IncrementStrategyBalance(ctx context.Context, strategyID string, delta float64) (float64, error) {
	var balance float64
	err := r.WithTx(ctx, func(ctx context.Context) error {
		res := r.conn(ctx).Model(&Strategy{}).Where("id = ?", strategyID).
			Update("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return fmt.Errorf("increment balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
		}
		return r.conn(ctx).Model(&Strategy{}).Where("id = ?", strategyID).
			Select("balance").Scan(&balance).Error
	})
	return balance, err
}

// PnL summaries

func (r *Repository) GetTodayPnL(ctx context.Context) (float64, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	var total float64
	err := r.conn(ctx).Model(&Trade{}).
		Where("status IN ? AND updated_at >= ?", settledStatuses(), today).
		Select("COALESCE(SUM(pnl), 0)").Scan(&total).Error
	return total, err
}

func (r *Repository) GetTotalPnL(ctx context.Context) (float64, error) {
	var total float64
	err := r.conn(ctx).Model(&Trade{}).
		Where("status IN ?", settledStatuses()).
		Select("COALESCE(SUM(pnl), 0)").Scan(&total).Error
	return total, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func toTrades(models []Trade) []trade.Trade {
	trades := make([]trade.Trade, 0, len(models))
	for i := range models {
		trades = append(trades, toTrade(&models[i]))
	}
	return trades
}

func statusStrings(statuses []trade.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func settledStatuses() []string {
	return statusStrings([]trade.Status{trade.StatusTPAllHit, trade.StatusSLHit, trade.StatusTPPartialThenSL})
}
