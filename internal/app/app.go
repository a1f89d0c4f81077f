package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/camuig/paper-trader/internal/ai"
	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/price"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/storage/postgres"
	"github.com/camuig/paper-trader/internal/syncer"
	"github.com/camuig/paper-trader/internal/telegram"
	"github.com/camuig/paper-trader/internal/trade"
)

// App holds the wired services shared by the daemon and tradectl.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    storage.Store
	Oracle   *price.Oracle
	Stream   *price.Stream
	Notifier *telegram.Notifier
	Syncer   *syncer.Syncer

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	store, closeStore, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	a.Oracle, a.Stream = NewOracle(cfg, log)
	a.Notifier = telegram.NewNotifier(cfg, log)
	a.Syncer = syncer.New(a.Store, a.Oracle, NewEvaluator(cfg), a.Notifier, log.With("component", "syncer"))
	return a, nil
}

// Generator returns the AI signal generator, or nil when AI is disabled.
func (a *App) Generator() *ai.Generator {
	if !a.Config.AI.Enabled {
		return nil
	}
	return ai.NewGenerator(
		ai.NewClient(a.Config, a.Logger.With("component", "ai")),
		a.Oracle,
		a.Store,
		ai.GeneratorConfig{
			Symbol:        a.Config.Price.Symbol,
			PositionSize:  a.Config.Trading.DefaultPositionSize,
			MinConfidence: a.Config.AI.MinConfidence,
		},
		a.Logger.With("component", "ai"),
	)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func NewEvaluator(cfg *config.Config) *trade.Evaluator {
	return trade.NewEvaluator(trade.Policy{
		InvalidateOnPreEntrySLHit: cfg.Trading.InvalidateOnPreEntrySLHit,
		ExitAtLastTakeProfit:      cfg.Trading.ExitAtLastTakeProfit,
	})
}

// OpenStore opens the configured backend and applies its schema.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("storage ready", "driver", "postgres")
		return postgres.NewStore(pool), pool.Close, nil
	default:
		db, err := storage.NewDatabase(cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				if err := sqlDB.Close(); err != nil {
					log.Error("close database", "error", err)
				}
			}
		}
		log.Info("storage ready", "driver", "sqlite", "path", cfg.Storage.SQLitePath)
		return storage.NewRepository(db), closeDB, nil
	}
}

// NewOracle builds the price oracle. The stream provider is returned when
// enabled; the caller runs it.
func NewOracle(cfg *config.Config, log *logger.Logger) (*price.Oracle, *price.Stream) {
	httpClient := &http.Client{Timeout: cfg.PriceTimeout()}
	priceLog := log.With("component", "price")

	var providers []price.Provider
	var stream *price.Stream
	if cfg.Price.Stream.Enabled {
		stream = price.NewStream(cfg.Price.Stream.URL, cfg.Price.Symbol, cfg.StreamMaxAge(), priceLog)
		providers = append(providers, stream)
	}
	providers = append(providers,
		price.NewBinance(httpClient, cfg.Price.BinanceURL, cfg.Price.Symbol),
		price.NewCoinGecko(httpClient, cfg.Price.CoinGeckoURL, cfg.Price.CoinGeckoID),
	)

	oracle := price.NewOracle(providers, price.NewCache(cfg.PriceCacheTTL()), cfg.PriceTimeout(), priceLog)
	return oracle, stream
}

// DefaultStrategies are seeded when no names are given.
var DefaultStrategies = []trade.Strategy{
	{Name: "Trend Master 3000", Description: "Follows strong trends on 15m timeframe"},
	{Name: "Mean Reversion X", Description: "Buys oversold RSI and sells overbought"},
	{Name: "ETH Whale Tracker", Description: "Tracks large wallet movements"},
}

// SeedStrategies creates the named strategies that do not exist yet and
// returns the ones it created.
func SeedStrategies(ctx context.Context, store storage.Store, seeds []trade.Strategy, newID func() string) ([]trade.Strategy, error) {
	var created []trade.Strategy
	for _, s := range seeds {
		_, err := store.GetStrategyByName(ctx, s.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return created, fmt.Errorf("look up strategy %s: %w", s.Name, err)
		}
		s.ID = newID()
		if err := store.CreateStrategy(ctx, &s); err != nil {
			return created, fmt.Errorf("create strategy %s: %w", s.Name, err)
		}
		created = append(created, s)
	}
	return created, nil
}
