package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/paper-trader/internal/logger"
)

func TestStreamTracksLastTrade(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/ethusdt@trade", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","s":"ETHUSDT","p":"2400.10","T":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","s":"ETHUSDT","p":"2401.55","T":2}`))
		// Hold the connection until the client leaves.
		conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	s := NewStream(wsURL, "ETHUSDT", time.Minute, logger.Discard())

	_, err := s.Price(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		p, err := s.Price(context.Background())
		return err == nil && p == 2401.55
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStreamStalePrice(t *testing.T) {
	s := NewStream("ws://unused", "ETHUSDT", 10*time.Second, logger.Discard())
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	s.last = 2400
	s.lastT = now.Add(-11 * time.Second)

	_, err := s.Price(context.Background())
	assert.ErrorIs(t, err, errNoStreamPrice)

	s.lastT = now.Add(-5 * time.Second)
	p, err := s.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2400.0, p)
}
