package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9982"
	defaultAppDBPath   = "data/tradegate.db"

	defaultExchangeTimeout = 15

	defaultMarketREST     = "https://api.binance.com"
	defaultMarketInterval = "15m"
	defaultMarketCandles  = 200
	defaultMarketTimeout  = 10

	defaultMaxOpenOrders   = 5
	defaultMaxOrdersPerDay = 3
	defaultMaxUSDPerOrder  = 500
	defaultMinOrderSpacing = 300

	defaultSymbolStrategy = "default"
	defaultTradeAmountUSD = 100
	defaultCooldownMin    = 60
	defaultMaxLeverage    = 10
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	for i := range c.Symbols {
		c.Symbols[i].applyDefaults()
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "exchange.timeout_seconds",
			need:  func() bool { return e.TimeoutSeconds <= 0 },
			apply: func() { e.TimeoutSeconds = defaultExchangeTimeout },
		},
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.interval", &m.Interval, defaultMarketInterval),
		fieldDefault{
			key:   "market.candle_limit",
			need:  func() bool { return m.CandleLimit <= 0 },
			apply: func() { m.CandleLimit = defaultMarketCandles },
		},
		fieldDefault{
			key:   "market.timeout_seconds",
			need:  func() bool { return m.TimeoutSeconds <= 0 },
			apply: func() { m.TimeoutSeconds = defaultMarketTimeout },
		},
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "trading.max_open_orders",
			need:  func() bool { return t.MaxOpenOrders <= 0 },
			apply: func() { t.MaxOpenOrders = defaultMaxOpenOrders },
		},
		fieldDefault{
			key:   "trading.max_orders_per_symbol_per_day",
			need:  func() bool { return t.MaxOrdersPerSymbolDay <= 0 },
			apply: func() { t.MaxOrdersPerSymbolDay = defaultMaxOrdersPerDay },
		},
		fieldDefault{
			key:   "trading.max_usd_per_order",
			need:  func() bool { return t.MaxUSDPerOrder <= 0 },
			apply: func() { t.MaxUSDPerOrder = defaultMaxUSDPerOrder },
		},
		fieldDefault{
			key:   "trading.min_seconds_between_orders",
			need:  func() bool { return t.MinSecondsBetween <= 0 },
			apply: func() { t.MinSecondsBetween = defaultMinOrderSpacing },
		},
	)
}

func (s *SymbolConfig) applyDefaults() {
	if s == nil {
		return
	}
	if strings.TrimSpace(s.Strategy) == "" {
		s.Strategy = defaultSymbolStrategy
	}
	if s.TradeAmountUSD <= 0 {
		s.TradeAmountUSD = defaultTradeAmountUSD
	}
	if s.CooldownMinutes <= 0 {
		s.CooldownMinutes = defaultCooldownMin
	}
	if s.MinPriceChange < 0 {
		s.MinPriceChange = 0
	}
	if s.MaxLeverage <= 0 {
		s.MaxLeverage = defaultMaxLeverage
	}
	if s.MaxOrdersPerDay < 0 {
		s.MaxOrdersPerDay = 0
	}
	if s.StopLossPct < 0 {
		s.StopLossPct = 0
	}
	if s.TakeProfitPct < 0 {
		s.TakeProfitPct = 0
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
