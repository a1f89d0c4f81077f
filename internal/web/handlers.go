package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/price"
	"github.com/camuig/paper-trader/internal/storage"
	"github.com/camuig/paper-trader/internal/trade"
)

// TradeView is a trade with its mark-to-market PnL at the current price.
type TradeView struct {
	trade.Trade
	CurrentPrice  float64 `json:"current_price,omitempty"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
}

type DashboardData struct {
	Quote        *price.Quote
	DailyPnL     float64
	TotalPnL     float64
	Strategies   []trade.Strategy
	OpenTrades   []TradeView
	RecentTrades []trade.Trade
}

var templateFuncs = template.FuncMap{
	"money": func(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) },
	"hits":  func(t trade.Trade) int { return t.HitCount() },
	"deref": func(v *float64) float64 { return *v },
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := DashboardData{}

	var current float64
	if q, err := s.quoter.Quote(ctx); err == nil {
		data.Quote = &q
		current = q.Price
	} else {
		s.logger.Warn("dashboard price", "error", err)
	}

	if dailyPnL, err := s.store.GetTodayPnL(ctx); err == nil {
		data.DailyPnL = dailyPnL
	}
	if totalPnL, err := s.store.GetTotalPnL(ctx); err == nil {
		data.TotalPnL = totalPnL
	}
	if strategies, err := s.store.ListStrategies(ctx); err == nil {
		data.Strategies = strategies
	}
	if open, err := s.store.ListTrades(ctx, trade.OpenStatuses...); err == nil {
		data.OpenTrades = views(open, current)
	}
	if recent, err := s.store.GetRecentTrades(ctx, 20); err == nil {
		data.RecentTrades = recent
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dashboard.Execute(w, data); err != nil {
		s.logger.Error("execute template", "error", err)
	}
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q, err := s.quoter.Quote(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

// handleListTrades returns trades with live PnL. ?status=entered filters;
// without it the open trades are returned.
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statuses := trade.OpenStatuses
	if raw := r.URL.Query()["status"]; len(raw) > 0 {
		statuses = make([]trade.Status, len(raw))
		for i, v := range raw {
			statuses[i] = trade.Status(v)
		}
	}

	trades, err := s.store.ListTrades(ctx, statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	var current float64
	if q, err := s.quoter.Quote(ctx); err == nil {
		current = q.Price
	} else {
		s.logger.Warn("live pnl without price", "error", err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"price":  current,
		"trades": views(trades, current),
	})
}

type createTradeRequest struct {
	trade.Setup
	StrategyID   string `json:"strategy_id,omitempty"`
	StrategyName string `json:"strategy,omitempty"`
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createTradeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	strategyID := req.StrategyID
	if strategyID == "" && req.StrategyName != "" {
		st, err := s.store.GetStrategyByName(ctx, req.StrategyName)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		strategyID = st.ID
	}

	if req.PositionSize == 0 {
		req.PositionSize = s.config.Trading.DefaultPositionSize
	}
	t, err := trade.NewTrade(req.Setup, id.New, time.Now())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.CreateTrade(ctx, t, strategyID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("trade created",
		"trade_id", t.ID,
		"direction", string(t.Direction),
		"entry", t.EntryPrice,
		"strategy_id", strategyID)
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.syncer.RunPass(r.Context())
	if err != nil {
		if errors.Is(err, price.ErrUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"updated": report.Updated(),
		"report":  report,
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := s.store.ListStrategies(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, strategies)
}

func views(trades []trade.Trade, current float64) []TradeView {
	out := make([]TradeView, 0, len(trades))
	for i := range trades {
		v := TradeView{Trade: trades[i], TotalPnL: trades[i].PnL}
		if current > 0 {
			v.CurrentPrice = current
			total := trade.UnrealizedPnL(&trades[i], current)
			v.UnrealizedPnL = trade.Round2(total - trades[i].PnL)
			v.TotalPnL = trade.Round2(total)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrDuplicate):
		s.writeError(w, http.StatusConflict, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
