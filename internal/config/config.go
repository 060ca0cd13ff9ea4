// Package config loads and validates the service configuration from YAML.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			flattenConfigKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}

func validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Trading.LiveTrading {
		if strings.TrimSpace(cfg.Exchange.APIKey) == "" || strings.TrimSpace(cfg.Exchange.APISecret) == "" {
			return fmt.Errorf("live trading requires exchange.api_key and exchange.api_secret")
		}
		if strings.TrimSpace(cfg.Exchange.BaseURL) == "" {
			return fmt.Errorf("live trading requires exchange.base_url")
		}
	}
	seen := make(map[string]bool, len(cfg.Symbols))
	for i := range cfg.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(cfg.Symbols[i].Symbol))
		if sym == "" {
			return fmt.Errorf("symbols[%d]: symbol cannot be empty", i)
		}
		if seen[sym] {
			return fmt.Errorf("symbols[%d]: duplicate symbol %s", i, sym)
		}
		seen[sym] = true
	}
	return nil
}
