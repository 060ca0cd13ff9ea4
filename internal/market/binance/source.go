// Package binance implements market.Source over the public spot REST API.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/market"
	symbolpkg "github.com/ccruz0/crypto-2.0-sub003/internal/pkg/symbol"

	gobinance "github.com/adshao/go-binance/v2"
)

const maxHistoryLimit = 1000

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

type Source struct {
	client *gobinance.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{client: client}
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	clean := toExchange(symbol)
	if clean == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.client.NewKlinesService().Symbol(clean).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func (s *Source) LastPrice(ctx context.Context, symbol string) (float64, error) {
	clean := toExchange(symbol)
	if clean == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	prices, err := s.client.NewListPricesService().Symbol(clean).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 || prices[0] == nil {
		return 0, fmt.Errorf("no price returned for %s", clean)
	}
	return parseFloat(prices[0].Price), nil
}

func (s *Source) Close() error { return nil }

// toExchange converts the canonical BASE_QUOTE form into the venue's
// underscore-free symbol (BTC_USDT -> BTCUSDT).
func toExchange(symbol string) string {
	normalized := symbolpkg.Normalize(symbol)
	return strings.ReplaceAll(normalized, "_", "")
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
