package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/trade"
)

// Repository is the storage surface a pass needs.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListTrades(ctx context.Context, statuses ...trade.Status) ([]trade.Trade, error)
	UpdateTrade(ctx context.Context, tradeID string, expect trade.Status, p trade.Patch) error
	UpdateTakeProfit(ctx context.Context, hit trade.TakeProfitHit) error
	GetAttribution(ctx context.Context, tradeID string) (*trade.Attribution, error)
	InsertResult(ctx context.Context, attributionID string, pnl float64) (*trade.Result, error)
	IncrementStrategyBalance(ctx context.Context, strategyID string, delta float64) (float64, error)
}

type PriceOracle interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// Notifier is told about lifecycle events after they are committed.
type Notifier interface {
	NotifyEntered(t *trade.Trade, price float64)
	NotifyTakeProfit(t *trade.Trade, hit trade.TakeProfitHit)
	NotifyClosed(t *trade.Trade, c trade.Closure)
}

type Syncer struct {
	repo      Repository
	oracle    PriceOracle
	evaluator *trade.Evaluator
	notifier  Notifier
	logger    *logger.Logger
	now       func() time.Time

	// mu serializes passes.
	mu sync.Mutex
}

// New builds a Syncer. notifier may be nil.
func New(repo Repository, oracle PriceOracle, evaluator *trade.Evaluator, notifier Notifier, log *logger.Logger) *Syncer {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Syncer{
		repo:      repo,
		oracle:    oracle,
		evaluator: evaluator,
		notifier:  notifier,
		logger:    log,
		now:       time.Now,
	}
}

// RunPass evaluates every open trade against a single price snapshot. A
// pass that starts while another is running waits for it. The error is
// non-nil only when the pass could not run at all; per-trade failures are
// reported in the Report.
func (s *Syncer) RunPass(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	price, err := s.oracle.CurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}

	trades, err := s.repo.ListTrades(ctx, trade.OpenStatuses...)
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}

	report := &Report{Price: price, StartedAt: started.UTC()}
	for i := range trades {
		if err := ctx.Err(); err != nil {
			report.Duration = s.now().Sub(started)
			return report, err
		}
		report.add(s.process(ctx, &trades[i], price))
	}
	report.Duration = s.now().Sub(started)

	s.logger.Info("sync pass completed",
		"price", price,
		"evaluated", report.Evaluated,
		"entered", report.Entered,
		"cancelled", report.Cancelled,
		"partial", report.Partial,
		"closed", report.Closed,
		"stale", report.Stale,
		"failed", report.Failed,
		"duration", report.Duration.String(),
	)
	return report, nil
}

// process evaluates and persists one trade. Panics and errors stay with the
// trade.
func (s *Syncer) process(ctx context.Context, t *trade.Trade, price float64) (out Outcome) {
	out = Outcome{TradeID: t.ID, From: t.Status, To: t.Status}
	log := s.logger.With("trade_id", t.ID, "status", string(t.Status))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while syncing trade", "panic", fmt.Sprint(r))
			out.Result = ResultFailed
			out.Error = fmt.Sprint(r)
		}
	}()

	ev, err := s.evaluator.Evaluate(t, price)
	if err != nil {
		log.Error("evaluate trade", "error", err)
		out.Result = ResultFailed
		out.Error = err.Error()
		return out
	}
	if ev.Clamped {
		log.Warn("remaining position clamped at zero", "remaining_position", t.RemainingPosition)
	}
	if !ev.Changed() {
		out.Result = ResultUnchanged
		out.PnL = t.PnL
		return out
	}

	settled, err := s.apply(ctx, t, ev)
	if err != nil {
		if errors.Is(err, storage.ErrStale) {
			log.Warn("trade changed during pass, skipped", "error", err)
			out.Result = ResultStale
		} else {
			log.Error("persist trade update", "error", err)
			out.Result = ResultFailed
		}
		out.Error = err.Error()
		return out
	}

	s.notify(t, ev, price)

	switch {
	case ev.Closure != nil:
		out.Result = ResultClosed
		out.To = ev.Closure.Status
		out.PnL = ev.Closure.FinalPnL
		out.Settled = settled
		log.Info("trade closed",
			"outcome", string(ev.Closure.Status),
			"pnl", ev.Closure.FinalPnL,
			"exit_price", ev.Closure.ExitPrice,
			"attributed", settled)
	case ev.Transition == trade.StatusEntered:
		out.Result = ResultEntered
		out.To = trade.StatusEntered
		log.Info("trade entered", "price", price)
	case ev.Transition == trade.StatusCancelled:
		out.Result = ResultCancelled
		out.To = trade.StatusCancelled
		log.Info("pending trade cancelled: stop-loss crossed before entry", "price", price)
	default:
		out.Result = ResultPartial
		out.PnL = ev.Progress.PnL
		log.Info("take-profit hit",
			"hits", len(ev.TakeProfitHits),
			"pnl", ev.Progress.PnL,
			"remaining_position", ev.Progress.RemainingPosition)
	}
	out.TakeProfitsHit = len(ev.TakeProfitHits)
	return out
}

// apply writes an evaluation in one transaction: take-profit rows first, then
// the trade conditioned on the status it was evaluated in, then settlement
// when it closed. It reports whether a strategy was credited.
func (s *Syncer) apply(ctx context.Context, t *trade.Trade, ev *trade.Evaluation) (settled bool, err error) {
	at := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		settled = false
		for _, hit := range ev.TakeProfitHits {
			if err := s.repo.UpdateTakeProfit(ctx, hit); err != nil {
				return fmt.Errorf("record take-profit %s: %w", hit.ID, err)
			}
		}

		switch {
		case ev.Closure != nil:
			if err := s.repo.UpdateTrade(ctx, t.ID, ev.From, ev.Closure.Patch(at)); err != nil {
				return fmt.Errorf("close trade: %w", err)
			}
			ok, err := s.settle(ctx, t.ID, ev.Closure.FinalPnL)
			if err != nil {
				return err
			}
			settled = ok
		case ev.Transition != "":
			status := ev.Transition
			if err := s.repo.UpdateTrade(ctx, t.ID, ev.From, trade.Patch{Status: &status, UpdatedAt: at}); err != nil {
				return fmt.Errorf("transition trade: %w", err)
			}
		case ev.Progress != nil:
			pnl := ev.Progress.PnL
			remaining := ev.Progress.RemainingPosition
			patch := trade.Patch{PnL: &pnl, RemainingPosition: &remaining, UpdatedAt: at}
			if err := s.repo.UpdateTrade(ctx, t.ID, ev.From, patch); err != nil {
				return fmt.Errorf("update trade progress: %w", err)
			}
		}
		return nil
	})
	return settled, err
}

// settle appends the ledger row and credits the attributed strategy. A trade
// without an attribution closes without touching any balance.
func (s *Syncer) settle(ctx context.Context, tradeID string, pnl float64) (bool, error) {
	a, err := s.repo.GetAttribution(ctx, tradeID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("closed trade has no strategy attribution", "trade_id", tradeID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get attribution: %w", err)
	}

	if _, err := s.repo.InsertResult(ctx, a.ID, pnl); err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}
	balance, err := s.repo.IncrementStrategyBalance(ctx, a.StrategyID, pnl)
	if err != nil {
		return false, fmt.Errorf("credit strategy %s: %w", a.StrategyID, err)
	}
	s.logger.Info("strategy balance updated", "strategy_id", a.StrategyID, "delta", pnl, "balance", balance)
	return true, nil
}

func (s *Syncer) notify(t *trade.Trade, ev *trade.Evaluation, price float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in notifier", "trade_id", t.ID, "panic", fmt.Sprint(r))
		}
	}()

	if ev.Transition == trade.StatusEntered {
		s.notifier.NotifyEntered(t, price)
	}
	for _, hit := range ev.TakeProfitHits {
		s.notifier.NotifyTakeProfit(t, hit)
	}
	if ev.Closure != nil {
		s.notifier.NotifyClosed(t, *ev.Closure)
	}
}

type nopNotifier struct{}

func (nopNotifier) NotifyEntered(*trade.Trade, float64)                {}
func (nopNotifier) NotifyTakeProfit(*trade.Trade, trade.TakeProfitHit) {}
func (nopNotifier) NotifyClosed(*trade.Trade, trade.Closure)           {}
