// Package symbol parses and normalizes trading pair identifiers.
//
// The exchange wire format is BASE_QUOTE (for example BTC_USDT). A bare base
// symbol with no quote suffix (for example "BTC") addresses exposure for that
// base currency across every quoted pair, so position queries never double
// count the same base spread over USDT/USDC/etc.
package symbol

import "strings"

var quoteCurrencies = []string{"USDT", "USDC", "USD", "BTC", "ETH", "CRO"}

type Symbol struct {
	Base  string
	Quote string
}

// Exchange returns the BASE_QUOTE wire form, or the bare base when no quote
// is known.
func (s Symbol) Exchange() string {
	if s.Base == "" {
		return ""
	}
	if s.Quote == "" {
		return s.Base
	}
	return s.Base + "_" + s.Quote
}

// IsBare reports whether the symbol names only a base currency.
func (s Symbol) IsBare() bool {
	return s.Base != "" && s.Quote == ""
}

// Parse accepts BASE_QUOTE, BASE/QUOTE, concatenated (BTCUSDT) and bare base
// forms.
func Parse(raw string) Symbol {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return Symbol{}
	}
	for _, sep := range []string{"_", "/", "-"} {
		if parts := strings.SplitN(raw, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(raw, quote) && len(raw) > len(quote) {
			return Symbol{Base: raw[:len(raw)-len(quote)], Quote: quote}
		}
	}
	return Symbol{Base: raw}
}

// Base returns the base currency of any accepted symbol form.
func Base(raw string) string {
	return Parse(raw).Base
}

// Normalize returns the canonical BASE_QUOTE (or bare base) form.
func Normalize(raw string) string {
	return Parse(raw).Exchange()
}

// SameExposure reports whether two symbols refer to the same exposure: equal
// normalized pairs always match, and a bare base matches every pair quoted on
// that base.
func SameExposure(a, b string) bool {
	sa, sb := Parse(a), Parse(b)
	if sa.Base == "" || sb.Base == "" || sa.Base != sb.Base {
		return false
	}
	if sa.IsBare() || sb.IsBare() {
		return true
	}
	return sa.Quote == sb.Quote
}

// NormalizeList normalizes and dedupes, keeping first-seen order.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
