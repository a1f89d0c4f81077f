package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Binance reads the spot ticker price over REST.
type Binance struct {
	httpClient *http.Client
	baseURL    string
	symbol     string
}

func NewBinance(httpClient *http.Client, baseURL, symbol string) *Binance {
	return &Binance{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		symbol:     strings.ToUpper(symbol),
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Price(ctx context.Context) (float64, error) {
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, b.symbol)
	if err := getJSON(ctx, b.httpClient, url, &resp); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse binance price %q: %w", resp.Price, err)
	}
	return v, nil
}

// CoinGecko reads the USD simple price.
type CoinGecko struct {
	httpClient *http.Client
	baseURL    string
	coinID     string
}

func NewCoinGecko(httpClient *http.Client, baseURL, coinID string) *CoinGecko {
	return &CoinGecko{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		coinID:     coinID,
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Price(ctx context.Context) (float64, error) {
	var resp map[string]map[string]float64
	url := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd", c.baseURL, c.coinID)
	if err := getJSON(ctx, c.httpClient, url, &resp); err != nil {
		return 0, err
	}
	v, ok := resp[c.coinID]["usd"]
	if !ok {
		return 0, fmt.Errorf("coingecko response has no usd price for %s", c.coinID)
	}
	return v, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", req.URL.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
