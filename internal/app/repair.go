package app

import (
	"context"
	"fmt"

	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/trade"
)

// RepairTrades recomputes PnL for every entered or settled trade from its
// take-profit ledger. With apply set, each inconsistent trade is rewritten
// in its own transaction. Strategy balances and results are not touched.
func RepairTrades(ctx context.Context, store storage.Store, apply bool) ([]trade.Repair, error) {
	trades, err := store.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	var repairs []trade.Repair
	for i := range trades {
		r := trade.Recompute(&trades[i])
		if r == nil || !r.Changed() {
			continue
		}
		repairs = append(repairs, *r)
		if !apply {
			continue
		}

		err := store.WithTx(ctx, func(ctx context.Context) error {
			for _, hit := range r.TakeProfits {
				if err := store.RewriteTakeProfit(ctx, hit); err != nil {
					return err
				}
			}
			return store.RewriteTrade(ctx, r.TradeID, r.PnL, r.RemainingPosition)
		})
		if err != nil {
			return repairs, fmt.Errorf("repair trade %s: %w", r.TradeID, err)
		}
	}
	return repairs, nil
}
