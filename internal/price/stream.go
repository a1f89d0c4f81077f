package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camuig/paper-trader/internal/logger"
)

var errNoStreamPrice = errors.New("no recent trade on stream")

// Stream keeps the last trade price from a Binance trade stream. Its Price
// answers from memory and fails when the last trade is older than maxAge, so
// the oracle moves on to the REST providers while the socket is down.
type Stream struct {
	url          string
	maxAge       time.Duration
	readTimeout  time.Duration
	reconnectMin time.Duration
	reconnectMax time.Duration
	logger       *logger.Logger
	now          func() time.Time

	mu    sync.RWMutex
	last  float64
	lastT time.Time
}

func NewStream(baseURL, symbol string, maxAge time.Duration, log *logger.Logger) *Stream {
	return &Stream{
		url:          fmt.Sprintf("%s/%s@trade", strings.TrimRight(baseURL, "/"), strings.ToLower(symbol)),
		maxAge:       maxAge,
		readTimeout:  60 * time.Second,
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
		logger:       log,
		now:          time.Now,
	}
}

func (s *Stream) Name() string { return "binance-stream" }

func (s *Stream) Price(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastT.IsZero() || s.now().Sub(s.lastT) > s.maxAge {
		return 0, errNoStreamPrice
	}
	return s.last, nil
}

// Run connects and reads trades until ctx is cancelled, reconnecting with
// exponential backoff.
func (s *Stream) Run(ctx context.Context) {
	backoff := s.reconnectMin
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			s.logger.Info("price stream stopped")
			return
		}
		s.logger.Warn("price stream disconnected", "error", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > s.reconnectMax {
			backoff = s.reconnectMax
		}
	}
}

type tradeEvent struct {
	Event string `json:"e"`
	Price string `json:"p"`
	Time  int64  `json:"T"`
}

func (s *Stream) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	s.logger.Info("price stream connected", "url", s.url)

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		var ev tradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != "trade" {
			continue
		}
		v, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || v <= 0 {
			continue
		}
		s.mu.Lock()
		s.last = v
		s.lastT = s.now()
		s.mu.Unlock()
	}
}
