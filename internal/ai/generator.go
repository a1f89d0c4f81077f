package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/trade"
)

// SignalSource produces setups for a strategy.
type SignalSource interface {
	Signals(ctx context.Context, req *SignalRequest) ([]Signal, string, error)
}

type PriceOracle interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// TradeStore is the storage surface the generator needs.
type TradeStore interface {
	ListStrategies(ctx context.Context) ([]trade.Strategy, error)
	ListTrades(ctx context.Context, statuses ...trade.Status) ([]trade.Trade, error)
	GetAttribution(ctx context.Context, tradeID string) (*trade.Attribution, error)
	CreateTrade(ctx context.Context, t *trade.Trade, strategyID string) error
}

type GeneratorConfig struct {
	Symbol        string
	PositionSize  float64
	MinConfidence int
	// RecentTrades bounds the closed-trade history sent per strategy.
	RecentTrades int
}

// Generator opens pending paper trades from model signals, one strategy at a
// time. A strategy that already has an open trade is skipped.
type Generator struct {
	source SignalSource
	oracle PriceOracle
	store  TradeStore
	cfg    GeneratorConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewGenerator(source SignalSource, oracle PriceOracle, store TradeStore, cfg GeneratorConfig, log *logger.Logger) *Generator {
	if cfg.RecentTrades == 0 {
		cfg.RecentTrades = 5
	}
	return &Generator{source: source, oracle: oracle, store: store, cfg: cfg, logger: log, now: time.Now}
}

// Run asks for signals for every strategy and returns the trades it created.
func (g *Generator) Run(ctx context.Context) ([]trade.Trade, error) {
	price, err := g.oracle.CurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}

	strategies, err := g.store.ListStrategies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}

	byStrategy, err := g.tradesByStrategy(ctx)
	if err != nil {
		return nil, err
	}

	var created []trade.Trade
	for _, st := range strategies {
		trades := byStrategy[st.ID]
		var open, closed []trade.Trade
		for _, t := range trades {
			if t.Status.Terminal() {
				closed = append(closed, t)
			} else {
				open = append(open, t)
			}
		}
		if len(open) > 0 {
			g.logger.Debug("strategy has an open trade, skipping", "strategy", st.Name)
			continue
		}
		if len(closed) > g.cfg.RecentTrades {
			closed = closed[len(closed)-g.cfg.RecentTrades:]
		}

		t, err := g.runStrategy(ctx, &SignalRequest{
			Strategy:     st,
			Symbol:       g.cfg.Symbol,
			Price:        price,
			RecentTrades: closed,
		})
		if err != nil {
			g.logger.Error("generate signal", "strategy", st.Name, "error", err)
			continue
		}
		if t != nil {
			created = append(created, *t)
		}
	}
	return created, nil
}

func (g *Generator) runStrategy(ctx context.Context, req *SignalRequest) (*trade.Trade, error) {
	signals, _, err := g.source.Signals(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, sig := range signals {
		if sig.Confidence < g.cfg.MinConfidence {
			g.logger.Info("signal skipped: low confidence",
				"strategy", req.Strategy.Name, "confidence", sig.Confidence, "min", g.cfg.MinConfidence)
			continue
		}

		setup, err := sig.Setup(req.Strategy.UserID, g.cfg.PositionSize)
		if err != nil {
			g.logger.Warn("signal skipped: invalid setup", "strategy", req.Strategy.Name, "error", err)
			continue
		}

		t, err := trade.NewTrade(setup, id.New, g.now())
		if err != nil {
			return nil, err
		}
		if err := g.store.CreateTrade(ctx, t, req.Strategy.ID); err != nil {
			return nil, fmt.Errorf("create trade: %w", err)
		}
		g.logger.Info("trade created from signal",
			"strategy", req.Strategy.Name,
			"trade_id", t.ID,
			"direction", string(t.Direction),
			"entry", t.EntryPrice,
			"sl", t.StopLoss,
			"confidence", sig.Confidence,
			"reasoning", sig.Reasoning)
		// One new trade per strategy per cycle.
		return t, nil
	}
	return nil, nil
}

func (g *Generator) tradesByStrategy(ctx context.Context) (map[string][]trade.Trade, error) {
	trades, err := g.store.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	out := make(map[string][]trade.Trade)
	for _, t := range trades {
		a, err := g.store.GetAttribution(ctx, t.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get attribution: %w", err)
		}
		out[a.StrategyID] = append(out[a.StrategyID], t)
	}
	return out, nil
}
