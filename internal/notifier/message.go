package notifier

import (
	"fmt"
	"strings"
	"time"
)

const maxMessageLen = 3800

// OrderMessage is the standard push for a placed or rejected order.
type OrderMessage struct {
	Icon      string
	Title     string
	Symbol    string
	Side      string
	Price     float64
	Quantity  float64
	USDValue  float64
	OrderID   string
	Variant   string
	Reason    string
	DryRun    bool
	Timestamp time.Time
}

// RenderMarkdown produces the Telegram body, trimmed to the API limit.
func (m OrderMessage) RenderMarkdown() string {
	var b strings.Builder
	header := strings.TrimSpace(m.Icon + " " + m.Title)
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	if m.Symbol != "" {
		fmt.Fprintf(&b, "Pair: `%s` %s\n", m.Symbol, m.Side)
	}
	if m.Price > 0 {
		fmt.Fprintf(&b, "Price: %.8g  Qty: %.8g  (~$%.2f)\n", m.Price, m.Quantity, m.USDValue)
	}
	if m.OrderID != "" {
		fmt.Fprintf(&b, "Order: `%s`", m.OrderID)
		if m.Variant != "" {
			fmt.Fprintf(&b, " via %s", m.Variant)
		}
		b.WriteString("\n")
	}
	if m.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", m.Reason)
	}
	if m.DryRun {
		b.WriteString("Mode: dry run\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("Time: " + m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}
