package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/config"
	"github.com/ccruz0/crypto-2.0-sub003/internal/engine"
	"github.com/ccruz0/crypto-2.0-sub003/internal/exchange"
	"github.com/ccruz0/crypto-2.0-sub003/internal/execution"
	"github.com/ccruz0/crypto-2.0-sub003/internal/guardrail"
	"github.com/ccruz0/crypto-2.0-sub003/internal/leverage"
	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/market"
	marketbinance "github.com/ccruz0/crypto-2.0-sub003/internal/market/binance"
	"github.com/ccruz0/crypto-2.0-sub003/internal/notifier"
	"github.com/ccruz0/crypto-2.0-sub003/internal/position"
	"github.com/ccruz0/crypto-2.0-sub003/internal/signal"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/sqlite"
	"github.com/ccruz0/crypto-2.0-sub003/internal/throttle"
	httpapi "github.com/ccruz0/crypto-2.0-sub003/internal/transport/http"
)

// AppBuilder assembles the service graph. Overrides exist so tests can swap
// the store and market source without touching the wiring.
type AppBuilder struct {
	cfgPath string
	cfg     *config.Config

	storeOverride  store.Store
	sourceOverride market.Source
	notifyOverride notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = st }
}

func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) { b.sourceOverride = src }
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifyOverride = n }
}

func NewAppBuilder(cfgPath string, cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfgPath: cfgPath, cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	st := b.storeOverride
	if st == nil {
		var err error
		st, err = sqlite.NewSqliteStore(cfg.App.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	source := b.sourceOverride
	if source == nil {
		source = marketbinance.New(marketbinance.Config{
			RESTBaseURL: cfg.Market.RESTBaseURL,
			HTTPTimeout: time.Duration(cfg.Market.TimeoutSeconds) * time.Second,
		})
	}

	notify := b.notifyOverride
	if notify == nil {
		if cfg.Notify.Telegram.Enabled {
			notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		} else {
			notify = notifier.Noop{}
		}
	}

	// The watcher's callback fires after the engine exists; the pointer is
	// filled in below.
	var eng *engine.Engine
	watcher := config.NewWatcher(b.cfgPath, cfg, func(newCfg *config.Config, changes []config.SymbolChange) {
		if eng != nil && len(changes) > 0 {
			eng.OnConfigChange(newCfg, changes)
		}
	})

	client := exchange.NewClient(cfg.Exchange)
	levCache := leverage.NewCache(st)
	executor := execution.NewExecutor(client, st, levCache)
	reconciler := position.NewReconciler(st)
	chain := guardrail.NewChain(watcher.Current, reconciler, st)
	gate := throttle.NewGate(st)
	evaluator := signal.NewEvaluator(signal.Config{})

	eng = engine.New(watcher.Current, source, evaluator, gate, chain, executor, client, st, notify)

	var httpSrv *httpapi.Server
	if cfg.App.HTTPAddr != "" {
		api := httpapi.NewAPI(eng, reconciler, st)
		srv, err := httpapi.NewServer(httpapi.ServerConfig{Addr: cfg.App.HTTPAddr, API: api})
		if err != nil {
			return nil, fmt.Errorf("building http server: %w", err)
		}
		httpSrv = srv
	}

	logger.Infof("app: built with %d symbols, live_trading=%v dry_run=%v",
		len(cfg.Symbols), cfg.Trading.LiveTrading, cfg.Trading.DryRun)

	return &App{
		cfgPath: b.cfgPath,
		watcher: watcher,
		st:      st,
		source:  source,
		engine:  eng,
		httpSrv: httpSrv,
	}, nil
}
