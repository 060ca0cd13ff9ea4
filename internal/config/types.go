package config

import "strings"

// Config is the root configuration for the trading gate service.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Market   MarketConfig   `mapstructure:"market"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Symbols  []SymbolConfig `mapstructure:"symbols"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
	DBPath   string `mapstructure:"db_path"`
}

// ExchangeConfig describes the private trading API endpoint.
type ExchangeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	APISecret      string `mapstructure:"api_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MarketConfig describes the public candle source used for signals.
type MarketConfig struct {
	RESTBaseURL    string `mapstructure:"rest_base_url"`
	Interval       string `mapstructure:"interval"`
	CandleLimit    int    `mapstructure:"candle_limit"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// TradingConfig carries the environment-level risk thresholds. Every order
// placement must clear these regardless of per-symbol settings.
type TradingConfig struct {
	LiveTrading           bool     `mapstructure:"live_trading"`
	KillSwitch            bool     `mapstructure:"kill_switch"`
	DryRun                bool     `mapstructure:"dry_run"`
	MaxOpenOrders         int      `mapstructure:"max_open_orders"`
	MaxOrdersPerSymbolDay int      `mapstructure:"max_orders_per_symbol_per_day"`
	MaxUSDPerOrder        float64  `mapstructure:"max_usd_per_order"`
	MinSecondsBetween     int      `mapstructure:"min_seconds_between_orders"`
	Allowlist             []string `mapstructure:"allowlist"`
	// CycleSeconds overrides the evaluation period. Zero means the loop
	// aligns to the candle interval from market.interval.
	CycleSeconds int `mapstructure:"cycle_seconds"`

	// TradeOverride is the optional environment-level final override: when
	// present and false it denies unconditionally; when present and true it
	// does not bypass the earlier checks. Nil means unset.
	TradeOverride *bool `mapstructure:"trade_override"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// SymbolConfig is one watched trading pair. All optional fields have explicit
// typed defaults applied by applyDefaults; nothing is probed dynamically at
// the use site.
type SymbolConfig struct {
	Symbol           string  `mapstructure:"symbol"`
	Strategy         string  `mapstructure:"strategy"`
	AlertEnabled     bool    `mapstructure:"alert_enabled"`
	BuyAlertEnabled  bool    `mapstructure:"buy_alert_enabled"`
	SellAlertEnabled bool    `mapstructure:"sell_alert_enabled"`
	TradeEnabled     bool    `mapstructure:"trade_enabled"`
	TradeAmountUSD   float64 `mapstructure:"trade_amount_usd"`
	CooldownMinutes  int     `mapstructure:"cooldown_minutes"`
	MinPriceChange   float64 `mapstructure:"min_price_change_pct"`
	MarginAllowed    bool    `mapstructure:"margin_allowed"`
	MaxLeverage      float64 `mapstructure:"max_leverage"`
	// StopLossPct and TakeProfitPct place protective SELL legs after an
	// entry BUY fills. Zero disables the leg.
	StopLossPct   float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct float64 `mapstructure:"take_profit_pct"`
	// MaxOrdersPerDay overrides trading.max_orders_per_symbol_per_day when
	// positive.
	MaxOrdersPerDay int `mapstructure:"max_orders_per_day"`
}

// StrategyKey returns the throttle strategy key, defaulting to "default".
func (s SymbolConfig) StrategyKey() string {
	key := strings.TrimSpace(s.Strategy)
	if key == "" {
		return "default"
	}
	return key
}

// FindSymbol returns the config for the normalized symbol name, or nil.
func (c *Config) FindSymbol(sym string) *SymbolConfig {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	for i := range c.Symbols {
		if strings.ToUpper(strings.TrimSpace(c.Symbols[i].Symbol)) == sym {
			return &c.Symbols[i]
		}
	}
	return nil
}

// keySet tracks the field paths explicitly present in the config file, so
// defaults never clobber an explicit false/zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault describes one field's default rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
