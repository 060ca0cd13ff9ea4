// Package signal turns candle history into buy/sell intents. It is a thin
// producer: everything downstream (throttling, guardrails, execution) treats
// its output as untrusted and re-checks before placing anything.
package signal

import (
	"fmt"
	"strings"

	"github.com/ccruz0/crypto-2.0-sub003/internal/market"

	talib "github.com/markcheno/go-talib"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Signal is one evaluation outcome for a symbol.
type Signal struct {
	Symbol string
	Action string
	Price  float64
	RSI    float64
	Reason string
}

// Config tunes the evaluator. Zero values fall back to the conventional
// 14-period RSI with 70/30 bands and a 20-period trend SMA.
type Config struct {
	RSIPeriod  int
	Overbought float64
	Oversold   float64
	SMAPeriod  int
}

func (c Config) withDefaults() Config {
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.Overbought <= 0 {
		c.Overbought = 70
	}
	if c.Oversold <= 0 {
		c.Oversold = 30
	}
	if c.SMAPeriod <= 0 {
		c.SMAPeriod = 20
	}
	return c
}

type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg.withDefaults()}
}

// MinCandles is the smallest history that produces a usable signal.
func (e *Evaluator) MinCandles() int {
	n := e.cfg.RSIPeriod + 1
	if e.cfg.SMAPeriod+1 > n {
		n = e.cfg.SMAPeriod + 1
	}
	return n
}

// Evaluate computes RSI and trend SMA over the candle closes. An oversold
// RSI below a rising price produces BUY, an overbought RSI produces SELL,
// anything else HOLD.
func (e *Evaluator) Evaluate(symbol string, candles []market.Candle) (Signal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	sig := Signal{Symbol: symbol, Action: ActionHold}
	if len(candles) < e.MinCandles() {
		return sig, fmt.Errorf("signal: insufficient candles for %s need %d got %d", symbol, e.MinCandles(), len(candles))
	}

	closes := market.Closes(candles)
	last := closes[len(closes)-1]
	sig.Price = last

	rsiSeries := talib.Rsi(closes, e.cfg.RSIPeriod)
	if len(rsiSeries) == 0 {
		return sig, fmt.Errorf("signal: empty rsi output for %s", symbol)
	}
	rsi := rsiSeries[len(rsiSeries)-1]
	sig.RSI = rsi

	smaSeries := talib.Sma(closes, e.cfg.SMAPeriod)
	sma := smaSeries[len(smaSeries)-1]

	switch {
	case rsi <= e.cfg.Oversold:
		sig.Action = ActionBuy
		sig.Reason = fmt.Sprintf("rsi %.1f below %.0f", rsi, e.cfg.Oversold)
	case rsi >= e.cfg.Overbought:
		sig.Action = ActionSell
		sig.Reason = fmt.Sprintf("rsi %.1f above %.0f", rsi, e.cfg.Overbought)
	case sma > 0 && last > sma:
		sig.Reason = fmt.Sprintf("price above sma%d with rsi %.1f neutral", e.cfg.SMAPeriod, rsi)
	default:
		sig.Reason = fmt.Sprintf("rsi %.1f neutral", rsi)
	}
	return sig, nil
}
