package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// throttleWhitelist names the per-symbol fields whose change invalidates the
// throttle baseline for that pair. Fields outside this list (trade amount,
// leverage ceiling, ...) can change freely without re-arming anything.
var throttleWhitelist = []string{
	"strategy",
	"alert_enabled",
	"buy_alert_enabled",
	"sell_alert_enabled",
	"cooldown_minutes",
	"min_price_change_pct",
}

// ThrottleHash fingerprints the whitelisted fields of one symbol config. A
// throttle record stores the hash that produced it; a mismatch on reload
// triggers the reset protocol for that (symbol, strategy) key.
func (s SymbolConfig) ThrottleHash() string {
	parts := make([]string, 0, len(throttleWhitelist))
	for _, field := range throttleWhitelist {
		var val string
		switch field {
		case "strategy":
			val = s.StrategyKey()
		case "alert_enabled":
			val = fmt.Sprintf("%t", s.AlertEnabled)
		case "buy_alert_enabled":
			val = fmt.Sprintf("%t", s.BuyAlertEnabled)
		case "sell_alert_enabled":
			val = fmt.Sprintf("%t", s.SellAlertEnabled)
		case "cooldown_minutes":
			val = fmt.Sprintf("%d", s.CooldownMinutes)
		case "min_price_change_pct":
			val = fmt.Sprintf("%.6f", s.MinPriceChange)
		}
		parts = append(parts, field+"="+val)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:8])
}
