package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinancePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2401.37000000"}`))
	}))
	defer srv.Close()

	p, err := NewBinance(srv.Client(), srv.URL, "ethusdt").Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2401.37, p)
}

func TestBinanceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewBinance(srv.Client(), srv.URL, "ETHUSDT").Price(context.Background())
	assert.ErrorContains(t, err, "429")
}

func TestBinanceMalformedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"n/a"}`))
	}))
	defer srv.Close()

	_, err := NewBinance(srv.Client(), srv.URL, "ETHUSDT").Price(context.Background())
	assert.Error(t, err)
}

func TestCoinGeckoPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"ethereum":{"usd":2399.12}}`))
	}))
	defer srv.Close()

	p, err := NewCoinGecko(srv.Client(), srv.URL, "ethereum").Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2399.12, p)
}

func TestCoinGeckoMissingCoin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewCoinGecko(srv.Client(), srv.URL, "ethereum").Price(context.Background())
	assert.ErrorContains(t, err, "no usd price")
}
