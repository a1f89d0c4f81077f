package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/trade"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ storage.Store = (*Store)(nil)

type txKey struct{}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const tradeColumns = `id, created_at, updated_at, user_id, direction, entry_price, sl, status,
	pnl, position_size, remaining_position, exit_price`

func (s *Store) CreateTrade(ctx context.Context, t *trade.Trade, strategyID string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO trades (`+tradeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			t.ID, t.CreatedAt, t.UpdatedAt, t.UserID, string(t.Direction), t.EntryPrice, t.StopLoss,
			string(t.Status), t.PnL, t.PositionSize, t.RemainingPosition, t.ExitPrice,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicate
			}
			return fmt.Errorf("insert trade: %w", err)
		}

		for _, tp := range t.TakeProfits {
			_, err := q.Exec(ctx, `
				INSERT INTO trade_tps (id, trade_id, tp_price, is_hit, hit_at, pnl_portion)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, tp.ID, t.ID, tp.Price, tp.IsHit, tp.HitAt, tp.PnLPortion)
			if err != nil {
				return fmt.Errorf("insert take-profit: %w", err)
			}
		}

		if strategyID == "" {
			return nil
		}
		if _, err := s.GetStrategy(ctx, strategyID); err != nil {
			return err
		}
		_, err = q.Exec(ctx, `
			INSERT INTO trade_ai_attribution (id, trade_id, ai_strategy_id) VALUES ($1, $2, $3)
		`, id.New(), t.ID, strategyID)
		if err != nil {
			return fmt.Errorf("insert attribution: %w", err)
		}
		return nil
	})
}

func (s *Store) GetTrade(ctx context.Context, tradeID string) (*trade.Trade, error) {
	trades, err := s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("get trade: %w", err)
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("trade %s: %w", tradeID, storage.ErrNotFound)
	}
	return &trades[0], nil
}

func (s *Store) ListTrades(ctx context.Context, statuses ...trade.Status) ([]trade.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statusStrings(statuses))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	trades, err := s.queryTrades(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

func (s *Store) GetRecentTrades(ctx context.Context, limit int) ([]trade.Trade, error) {
	trades, err := s.queryTrades(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent trades: %w", err)
	}
	return trades, nil
}

// queryTrades loads trades and attaches their take-profits in one extra query.
func (s *Store) queryTrades(ctx context.Context, query string, args ...any) ([]trade.Trade, error) {
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	trades, err := pgx.CollectRows(rows, scanTrade)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return trades, nil
	}

	ids := make([]string, len(trades))
	index := make(map[string]int, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
		index[t.ID] = i
	}

	rows, err = s.q(ctx).Query(ctx, `
		SELECT id, trade_id, tp_price, is_hit, hit_at, pnl_portion
		FROM trade_tps
		WHERE trade_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load take-profits: %w", err)
	}
	tps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (trade.TakeProfit, error) {
		var tp trade.TakeProfit
		err := row.Scan(&tp.ID, &tp.TradeID, &tp.Price, &tp.IsHit, &tp.HitAt, &tp.PnLPortion)
		return tp, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan take-profits: %w", err)
	}
	for _, tp := range tps {
		i := index[tp.TradeID]
		trades[i].TakeProfits = append(trades[i].TakeProfits, tp)
	}
	return trades, nil
}

func scanTrade(row pgx.CollectableRow) (trade.Trade, error) {
	var (
		t         trade.Trade
		direction string
		status    string
	)
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.UserID, &direction, &t.EntryPrice, &t.StopLoss,
		&status, &t.PnL, &t.PositionSize, &t.RemainingPosition, &t.ExitPrice,
	)
	t.Direction = trade.Direction(direction)
	t.Status = trade.Status(status)
	return t, err
}

func (s *Store) UpdateTrade(ctx context.Context, tradeID string, expect trade.Status, p trade.Patch) error {
	sets := []string{"updated_at = $3"}
	args := []any{tradeID, string(expect), p.UpdatedAt.UTC()}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.PnL != nil {
		add("pnl", *p.PnL)
	}
	if p.RemainingPosition != nil {
		add("remaining_position", *p.RemainingPosition)
	}
	if p.ExitPrice != nil {
		add("exit_price", *p.ExitPrice)
	}

	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE trades SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND status = $2`, args...)
	if err != nil {
		return fmt.Errorf("update trade %s: %w", tradeID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, "trades", tradeID)
	}
	return nil
}

func (s *Store) UpdateTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE trade_tps SET is_hit = TRUE, hit_at = $2, pnl_portion = $3
		WHERE id = $1 AND is_hit = FALSE
	`, hit.ID, hit.HitAt.UTC(), hit.PnLPortion)
	if err != nil {
		return fmt.Errorf("update take-profit %s: %w", hit.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, "trade_tps", hit.ID)
	}
	return nil
}

func (s *Store) RewriteTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error {
	var hitAt *time.Time
	if !hit.HitAt.IsZero() {
		v := hit.HitAt.UTC()
		hitAt = &v
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE trade_tps SET is_hit = TRUE, hit_at = COALESCE($2, hit_at), pnl_portion = $3
		WHERE id = $1
	`, hit.ID, hitAt, hit.PnLPortion)
	if err != nil {
		return fmt.Errorf("rewrite take-profit %s: %w", hit.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("take-profit %s: %w", hit.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) RewriteTrade(ctx context.Context, tradeID string, pnl, remaining float64) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE trades SET pnl = $2, remaining_position = $3, updated_at = $4 WHERE id = $1
	`, tradeID, pnl, remaining, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rewrite trade %s: %w", tradeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", tradeID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) missingOrStale(ctx context.Context, table, rowID string) error {
	var exists bool
	err := s.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, rowID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", rowID, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", rowID, storage.ErrStale)
}

func (s *Store) GetAttribution(ctx context.Context, tradeID string) (*trade.Attribution, error) {
	var a trade.Attribution
	err := s.q(ctx).QueryRow(ctx, `
		SELECT id, trade_id, ai_strategy_id FROM trade_ai_attribution WHERE trade_id = $1
	`, tradeID).Scan(&a.ID, &a.TradeID, &a.StrategyID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("attribution for trade %s: %w", tradeID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get attribution: %w", err)
	}
	return &a, nil
}

func (s *Store) InsertResult(ctx context.Context, attributionID string, pnl float64) (*trade.Result, error) {
	r := &trade.Result{ID: id.New(), AttributionID: attributionID, PnL: pnl, CreatedAt: time.Now().UTC()}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO ai_results (id, created_at, trade_ai_attribution_id, pnl) VALUES ($1, $2, $3, $4)
	`, r.ID, r.CreatedAt, r.AttributionID, r.PnL)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert result: %w", storage.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert result: %w", err)
	}
	return r, nil
}

func (s *Store) ListResults(ctx context.Context, strategyID string) ([]trade.Result, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT r.id, r.trade_ai_attribution_id, r.pnl, r.created_at
		FROM ai_results r
		JOIN trade_ai_attribution a ON a.id = r.trade_ai_attribution_id
		WHERE a.ai_strategy_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (trade.Result, error) {
		var r trade.Result
		err := row.Scan(&r.ID, &r.AttributionID, &r.PnL, &r.CreatedAt)
		return r, err
	})
}

func (s *Store) CreateStrategy(ctx context.Context, st *trade.Strategy) error {
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO ai_strategies (id, created_at, name, description, balance, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, st.ID, createdAt, st.Name, st.Description, st.Balance, st.UserID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("insert strategy: %w", storage.ErrDuplicate)
		}
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

const strategyColumns = `id, name, description, balance, user_id, created_at`

func scanStrategy(row pgx.Row) (*trade.Strategy, error) {
	var st trade.Strategy
	err := row.Scan(&st.ID, &st.Name, &st.Description, &st.Balance, &st.UserID, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStrategy(ctx context.Context, strategyID string) (*trade.Strategy, error) {
	return s.findStrategy(ctx, "id", strategyID)
}

func (s *Store) GetStrategyByName(ctx context.Context, name string) (*trade.Strategy, error) {
	return s.findStrategy(ctx, "name", name)
}

func (s *Store) findStrategy(ctx context.Context, column, value string) (*trade.Strategy, error) {
	st, err := scanStrategy(s.q(ctx).QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM ai_strategies WHERE `+column+` = $1`, value))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("strategy %s: %w", value, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return st, nil
}

func (s *Store) ListStrategies(ctx context.Context) ([]trade.Strategy, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT `+strategyColumns+` FROM ai_strategies ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (trade.Strategy, error) {
		st, err := scanStrategy(row)
		if err != nil {
			return trade.Strategy{}, err
		}
		return *st, nil
	})
}

func (s *Store) GetStrategyBalance(ctx context.Context, strategyID string) (float64, error) {
	st, err := s.GetStrategy(ctx, strategyID)
	if err != nil {
		return 0, err
	}
	return st.Balance, nil
}

func (s *Store) UpdateStrategyBalance(ctx context.Context, strategyID string, balance float64) error {
	tag, err := s.q(ctx).Exec(ctx, `UPDATE ai_strategies SET balance = $2 WHERE id = $1`, strategyID, balance)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("strategy %s: %w", strategyID, storage.ErrNotFound)
	}
	return nil
}

// IncrementStrategyBalance adds delta atomically and returns the new balance.
func (s *Store) IncrementStrategyBalance(ctx context.Context, strategyID string, delta float64) (float64, error) {
	var balance float64
	err := s.q(ctx).QueryRow(ctx, `
		UPDATE ai_strategies SET balance = balance + $2 WHERE id = $1 RETURNING balance
	`, strategyID, delta).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("strategy %s: %w", strategyID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("increment balance: %w", err)
	}
	return balance, nil
}

var settledStatuses = []string{
	string(trade.StatusTPAllHit),
	string(trade.StatusSLHit),
	string(trade.StatusTPPartialThenSL),
}

func (s *Store) GetTodayPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE status = ANY($1) AND updated_at >= $2
	`, settledStatuses, time.Now().UTC().Truncate(24*time.Hour)).Scan(&total)
	return total, err
}

func (s *Store) GetTotalPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE status = ANY($1)`, settledStatuses).Scan(&total)
	return total, err
}

func statusStrings(statuses []trade.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
