package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/price"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/syncer"
	"github.com/camuig/paper-trader/internal/trade"
)

type fakeQuoter struct {
	price float64
	err   error
}

func (q *fakeQuoter) Quote(context.Context) (price.Quote, error) {
	if q.err != nil {
		return price.Quote{}, q.err
	}
	return price.Quote{Price: q.price, Source: "test", At: time.Now()}, nil
}

func (q *fakeQuoter) CurrentPrice(ctx context.Context) (float64, error) {
	quote, err := q.Quote(ctx)
	return quote.Price, err
}

type testEnv struct {
	repo   *storage.Repository
	quoter *fakeQuoter
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.NewDatabase(":memory:", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{repo: storage.NewRepository(db), quoter: &fakeQuoter{price: 3000}}
	s := syncer.New(env.repo, env.quoter, trade.NewEvaluator(trade.Policy{}), nil, logger.Discard())
	srv := NewServer(env.repo, env.quoter, s, config.Default(), logger.Discard())

	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestPriceEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/price", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3000.0, body["price"])
	assert.Equal(t, "test", body["source"])

	env.quoter.err = price.ErrUnavailable
	resp, body = env.do(t, http.MethodGet, "/api/price", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "price unavailable")
}

func TestCreateTradeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	st := &trade.Strategy{ID: id.New(), Name: "manual", Balance: 1000}
	require.NoError(t, env.repo.CreateStrategy(ctx, st))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid_by_name", `{"direction":"long","entry_price":3000,"sl":2900,"tps":[3200,3100],"strategy":"manual"}`, http.StatusCreated},
		{"valid_unattributed", `{"direction":"short","entry_price":3000,"sl":3100,"tps":[2900]}`, http.StatusCreated},
		{"bad_levels", `{"direction":"long","entry_price":3000,"sl":3100}`, http.StatusBadRequest},
		{"unknown_field", `{"direction":"long","entry_price":3000,"sl":2900,"leverage":10}`, http.StatusBadRequest},
		{"unknown_strategy", `{"direction":"long","entry_price":3000,"sl":2900,"strategy":"ghost"}`, http.StatusNotFound},
		{"unknown_strategy_id", `{"direction":"long","entry_price":3000,"sl":2900,"strategy_id":"ghost"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPost, "/api/trades", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	trades, err := env.repo.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, 1000.0, trades[0].PositionSize)
	assert.Equal(t, 3100.0, trades[0].TakeProfits[0].Price)

	a, err := env.repo.GetAttribution(ctx, trades[0].ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, a.StrategyID)
}

func TestSyncAndListTrades(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/trades",
		`{"direction":"long","entry_price":3000,"sl":2900,"tps":[3100,3200],"position_size":1000}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/trades/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["updated"])

	env.quoter.price = 3150
	resp, body = env.do(t, http.MethodGet, "/api/trades/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := body["report"].(map[string]any)
	assert.Equal(t, 1.0, report["partial"])

	// Realized 16.67 on the first rung, 500 still open at +5%.
	resp, body = env.do(t, http.MethodGet, "/api/trades", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trades := body["trades"].([]any)
	require.Len(t, trades, 1)
	tv := trades[0].(map[string]any)
	assert.Equal(t, "entered", tv["status"])
	assert.InDelta(t, 16.67, tv["pnl"].(float64), 0.01)
	assert.InDelta(t, 25, tv["unrealized_pnl"].(float64), 1e-9)
	assert.InDelta(t, 41.67, tv["total_pnl"].(float64), 0.01)

	env.quoter.err = price.ErrUnavailable
	resp, _ = env.do(t, http.MethodPost, "/api/trades/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStrategiesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repo.CreateStrategy(context.Background(), &trade.Strategy{ID: id.New(), Name: "alpha", Balance: 1000}))

	resp, err := http.Get(env.server.URL + "/api/strategies")
	require.NoError(t, err)
	defer resp.Body.Close()

	var strategies []trade.Strategy
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&strategies))
	require.Len(t, strategies, 1)
	assert.Equal(t, "alpha", strategies[0].Name)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repo.CreateStrategy(context.Background(), &trade.Strategy{ID: id.New(), Name: "alpha", Balance: 1234.5}))
	resp, _ := env.do(t, http.MethodPost, "/api/trades", `{"direction":"long","entry_price":3000,"sl":2900,"tps":[3100]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err := http.Get(env.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "alpha")
	assert.Contains(t, html, "1234.50")
	assert.Contains(t, html, "pending_entry")

	resp, err = http.Get(env.server.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
