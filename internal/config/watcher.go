package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// SymbolChange reports one watched pair whose whitelisted throttle fields
// changed between two loads of the config file.
type SymbolChange struct {
	Symbol   string
	Strategy string
	OldHash  string
	NewHash  string
}

// Watcher reloads the config file on filesystem change and reports which
// symbols changed their throttle-relevant fields.
type Watcher struct {
	path     string
	onReload func(cfg *Config, changes []SymbolChange)

	mu      sync.RWMutex
	current *Config
	hashes  map[string]string
}

func NewWatcher(path string, initial *Config, onReload func(*Config, []SymbolChange)) *Watcher {
	w := &Watcher{path: path, onReload: onReload, current: initial}
	w.hashes = symbolHashes(initial)
	return w
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run blocks until ctx is done, reloading on every write to the config file.
// Editors replace files rather than writing in place, so the parent directory
// is watched and events are debounced.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watcher: %v", err)
		case <-reload:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Errorf("config reload failed, keeping previous config: %v", err)
		return
	}
	w.mu.Lock()
	oldHashes := w.hashes
	w.current = cfg
	w.hashes = symbolHashes(cfg)
	newHashes := w.hashes
	w.mu.Unlock()

	changes := diffHashes(cfg, oldHashes, newHashes)
	logger.Infof("config reloaded: %d symbols, %d throttle-relevant changes", len(cfg.Symbols), len(changes))
	if w.onReload != nil {
		w.onReload(cfg, changes)
	}
}

func symbolHashes(cfg *Config) map[string]string {
	out := make(map[string]string)
	if cfg == nil {
		return out
	}
	for _, sc := range cfg.Symbols {
		out[sc.Symbol+"|"+sc.StrategyKey()] = sc.ThrottleHash()
	}
	return out
}

func diffHashes(cfg *Config, old, new map[string]string) []SymbolChange {
	var changes []SymbolChange
	for _, sc := range cfg.Symbols {
		key := sc.Symbol + "|" + sc.StrategyKey()
		oldHash, existed := old[key]
		if existed && oldHash == new[key] {
			continue
		}
		changes = append(changes, SymbolChange{
			Symbol:   sc.Symbol,
			Strategy: sc.StrategyKey(),
			OldHash:  oldHash,
			NewHash:  new[key],
		})
	}
	return changes
}
