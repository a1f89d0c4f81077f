package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/price"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/trade"
)

var passTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeOracle struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (o *fakeOracle) CurrentPrice(context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, o.err
}

func (o *fakeOracle) set(p float64) {
	o.mu.Lock()
	o.price = p
	o.mu.Unlock()
}

type recordingNotifier struct {
	entered []string
	tps     []string
	closed  []trade.Closure
}

func (n *recordingNotifier) NotifyEntered(t *trade.Trade, _ float64) {
	n.entered = append(n.entered, t.ID)
}

func (n *recordingNotifier) NotifyTakeProfit(_ *trade.Trade, hit trade.TakeProfitHit) {
	n.tps = append(n.tps, hit.ID)
}

func (n *recordingNotifier) NotifyClosed(_ *trade.Trade, c trade.Closure) {
	n.closed = append(n.closed, c)
}

type fixture struct {
	repo     *storage.Repository
	oracle   *fakeOracle
	notifier *recordingNotifier
	syncer   *Syncer
}

func newFixture(t *testing.T, policy trade.Policy) *fixture {
	t.Helper()
	db, err := storage.NewDatabase(":memory:", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		repo:     storage.NewRepository(db),
		oracle:   &fakeOracle{},
		notifier: &recordingNotifier{},
	}
	f.syncer = f.newSyncer(f.repo, policy)
	return f
}

func (f *fixture) newSyncer(repo Repository, policy trade.Policy) *Syncer {
	clock := func() time.Time { return passTime }
	s := New(repo, f.oracle, trade.NewEvaluator(policy).WithClock(clock), f.notifier, logger.Discard())
	s.now = clock
	return s
}

func (f *fixture) strategy(t *testing.T, name string, balance float64) *trade.Strategy {
	t.Helper()
	s := &trade.Strategy{ID: id.New(), Name: name, Balance: balance, CreatedAt: passTime}
	require.NoError(t, f.repo.CreateStrategy(context.Background(), s))
	return s
}

func (f *fixture) trade(t *testing.T, strategyID string, setup trade.Setup) *trade.Trade {
	t.Helper()
	tr, err := trade.NewTrade(setup, id.New, passTime)
	require.NoError(t, err)
	require.NoError(t, f.repo.CreateTrade(context.Background(), tr, strategyID))
	return tr
}

func (f *fixture) pass(t *testing.T, p float64) *Report {
	t.Helper()
	f.oracle.set(p)
	report, err := f.syncer.RunPass(context.Background())
	require.NoError(t, err)
	return report
}

func (f *fixture) balance(t *testing.T, strategyID string) float64 {
	t.Helper()
	b, err := f.repo.GetStrategyBalance(context.Background(), strategyID)
	require.NoError(t, err)
	return b
}

func TestRunPassPartialThenStop(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	ctx := context.Background()
	st := f.strategy(t, "momentum", 1000)
	tr := f.trade(t, st.ID, trade.Setup{
		Direction:    trade.Long,
		EntryPrice:   100,
		StopLoss:     90,
		TakeProfits:  []float64{105, 110, 115},
		PositionSize: 30,
	})

	report := f.pass(t, 100)
	assert.Equal(t, 1, report.Entered)

	report = f.pass(t, 105)
	assert.Equal(t, 1, report.Partial)
	got, err := f.repo.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.PnL, 1e-9)
	assert.InDelta(t, 20, got.RemainingPosition, 1e-9)
	assert.True(t, got.TakeProfits[0].IsHit)

	report = f.pass(t, 95)
	assert.Equal(t, 1, report.Unchanged)

	report = f.pass(t, 90)
	require.Equal(t, 1, report.Closed)
	assert.Equal(t, trade.StatusTPPartialThenSL, report.Outcomes[0].To)
	assert.True(t, report.Outcomes[0].Settled)

	got, err = f.repo.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusTPPartialThenSL, got.Status)
	assert.InDelta(t, -1.5, got.PnL, 1e-9)
	assert.Equal(t, 0.0, got.RemainingPosition)
	require.NotNil(t, got.ExitPrice)
	assert.Equal(t, 90.0, *got.ExitPrice)

	assert.InDelta(t, 998.5, f.balance(t, st.ID), 1e-9)
	results, err := f.repo.ListResults(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, -1.5, results[0].PnL, 1e-9)

	assert.Equal(t, []string{tr.ID}, f.notifier.entered)
	assert.Len(t, f.notifier.tps, 1)
	require.Len(t, f.notifier.closed, 1)

	// Terminal trades are no longer listed.
	report = f.pass(t, 200)
	assert.Equal(t, 0, report.Evaluated)
	assert.InDelta(t, 998.5, f.balance(t, st.ID), 1e-9)
}

func TestRunPassSettlesSameStrategyInOnePass(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	st := f.strategy(t, "mixed", 100)

	winner := f.trade(t, st.ID, trade.Setup{
		Direction: trade.Long, EntryPrice: 100, StopLoss: 90, TakeProfits: []float64{105}, PositionSize: 100,
	})
	loser := f.trade(t, st.ID, trade.Setup{
		Direction: trade.Short, EntryPrice: 100, StopLoss: 102, TakeProfits: []float64{90}, PositionSize: 100,
	})

	// Long enters at >= 100, short at <= 100.
	report := f.pass(t, 100)
	assert.Equal(t, 2, report.Entered)

	report = f.pass(t, 105)
	assert.Equal(t, 2, report.Closed)

	byID := map[string]Outcome{}
	for _, o := range report.Outcomes {
		byID[o.TradeID] = o
	}
	assert.Equal(t, trade.StatusTPAllHit, byID[winner.ID].To)
	assert.InDelta(t, 5, byID[winner.ID].PnL, 1e-9)
	assert.Equal(t, trade.StatusSLHit, byID[loser.ID].To)
	assert.InDelta(t, -2, byID[loser.ID].PnL, 1e-9)

	assert.InDelta(t, 103, f.balance(t, st.ID), 1e-9)
}

func TestRunPassIsolatesTradeFailures(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	ctx := context.Background()

	broken := &trade.Trade{
		ID:                id.New(),
		Direction:         trade.Long,
		EntryPrice:        0,
		StopLoss:          90,
		Status:            trade.StatusPendingEntry,
		PositionSize:      1000,
		RemainingPosition: 1000,
		CreatedAt:         passTime,
	}
	require.NoError(t, f.repo.CreateTrade(ctx, broken, ""))
	good := f.trade(t, "", trade.Setup{Direction: trade.Long, EntryPrice: 2400, StopLoss: 2300, TakeProfits: []float64{2500}})

	report := f.pass(t, 2400)
	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Entered)

	got, err := f.repo.GetTrade(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusEntered, got.Status)
}

func TestRunPassPriceUnavailable(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	f.oracle.err = price.ErrUnavailable

	_, err := f.syncer.RunPass(context.Background())
	assert.ErrorIs(t, err, price.ErrUnavailable)
}

func TestRunPassUnattributedTradeClosesWithoutLedger(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	st := f.strategy(t, "bystander", 1000)
	f.trade(t, "", trade.Setup{Direction: trade.Short, EntryPrice: 100, StopLoss: 110, TakeProfits: []float64{90}, PositionSize: 10})

	f.pass(t, 100)
	report := f.pass(t, 90)
	require.Equal(t, 1, report.Closed)
	assert.False(t, report.Outcomes[0].Settled)
	assert.InDelta(t, 1, report.Outcomes[0].PnL, 1e-9)

	assert.Equal(t, 1000.0, f.balance(t, st.ID))
	results, err := f.repo.ListResults(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunPassPendingInvalidationPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy trade.Policy
		want   Result
		status trade.Status
	}{
		{"disabled", trade.Policy{}, ResultUnchanged, trade.StatusPendingEntry},
		{"enabled", trade.Policy{InvalidateOnPreEntrySLHit: true}, ResultCancelled, trade.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.policy)
			st := f.strategy(t, "s", 1000)
			// Short waits for a drop to 100; price spikes through its stop first.
			tr := f.trade(t, st.ID, trade.Setup{Direction: trade.Short, EntryPrice: 100, StopLoss: 110, TakeProfits: []float64{90}})

			report := f.pass(t, 111)
			require.Len(t, report.Outcomes, 1)
			assert.Equal(t, tt.want, report.Outcomes[0].Result)

			got, err := f.repo.GetTrade(context.Background(), tr.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, 1000.0, f.balance(t, st.ID))
		})
	}
}

// staleRepo simulates another writer changing the trade between read and write.
type staleRepo struct {
	*storage.Repository
}

func (r staleRepo) UpdateTrade(context.Context, string, trade.Status, trade.Patch) error {
	return storage.ErrStale
}

func TestRunPassStaleWriteRollsBack(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	ctx := context.Background()
	tr := f.trade(t, "", trade.Setup{Direction: trade.Long, EntryPrice: 100, StopLoss: 90, TakeProfits: []float64{105, 110}})
	f.pass(t, 100)

	f.syncer = f.newSyncer(staleRepo{f.repo}, trade.Policy{})
	report := f.pass(t, 105)
	require.Equal(t, 1, report.Stale)
	assert.Empty(t, f.notifier.tps)

	got, err := f.repo.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, got.TakeProfits[0].IsHit, "take-profit write must roll back with the trade")
	assert.Equal(t, 0.0, got.PnL)
}

func TestRunPassConcurrentPassesSettleOnce(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	st := f.strategy(t, "race", 1000)
	f.trade(t, st.ID, trade.Setup{Direction: trade.Long, EntryPrice: 100, StopLoss: 90, TakeProfits: []float64{110}, PositionSize: 100})
	f.pass(t, 100)
	f.oracle.set(110)

	var wg sync.WaitGroup
	reports := make([]*Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.syncer.RunPass(context.Background())
			assert.NoError(t, err)
			reports[i] = r
		}(i)
	}
	wg.Wait()

	closed := 0
	for _, r := range reports {
		closed += r.Closed
	}
	assert.Equal(t, 1, closed)
	assert.InDelta(t, 1010, f.balance(t, st.ID), 1e-9)

	results, err := f.repo.ListResults(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRunPassCancelledContext(t *testing.T) {
	f := newFixture(t, trade.Policy{})
	f.trade(t, "", trade.Setup{Direction: trade.Long, EntryPrice: 100, StopLoss: 90})
	f.oracle.set(100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.syncer.RunPass(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
