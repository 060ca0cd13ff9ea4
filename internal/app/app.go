// Package app wires configuration, storage, the exchange gateway and the
// evaluation engine into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/config"
	"github.com/ccruz0/crypto-2.0-sub003/internal/engine"
	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/market"
	"github.com/ccruz0/crypto-2.0-sub003/internal/scheduler"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	httpapi "github.com/ccruz0/crypto-2.0-sub003/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

const orderSyncInterval = 30 * time.Second

// App owns the long-running services: config watcher, scheduler, order
// sync loop and the diagnostics HTTP server.
type App struct {
	cfgPath string
	watcher *config.Watcher
	st      store.Store
	source  market.Source
	engine  *engine.Engine
	httpSrv *httpapi.Server
}

// NewApp builds the application from a loaded config (does not start it).
func NewApp(cfgPath string, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfgPath, cfg)
}

// Run blocks until ctx is canceled or a service fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	cfg := a.watcher.Current()
	cycle := cycleInterval(cfg)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.watcher.Run(ctx)
	})

	if a.httpSrv != nil {
		group.Go(func() error {
			logger.Infof("app: diagnostics http listening on %s", a.httpSrv.Addr())
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx, cycle, 2*time.Second)
		sched.RunImmediately = true
		// Dispatch without waiting: a stuck symbol must never stall the
		// tick loop. The engine's inflight map prevents per-symbol overlap.
		sched.Start(func() { go a.engine.RunCycle(ctx) })
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(orderSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.engine.SyncOrders(ctx)
			}
		}
	})

	return shutdownErr(group.Wait())
}

// cycleInterval picks the evaluation period: an explicit
// trading.cycle_seconds wins, otherwise the loop aligns to the candle
// interval so cycles fire just after candle close.
func cycleInterval(cfg *config.Config) time.Duration {
	if cfg.Trading.CycleSeconds > 0 {
		return time.Duration(cfg.Trading.CycleSeconds) * time.Second
	}
	if d, ok := scheduler.ParseIntervalDuration(cfg.Market.Interval); ok {
		return d
	}
	return time.Minute
}

// shutdownErr maps a cancellation-driven exit to a clean shutdown.
func shutdownErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store and market source.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.source != nil {
		_ = a.source.Close()
	}
	if a.st != nil {
		_ = a.st.Close()
	}
}

// Engine exposes the evaluation engine (for replay harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}
