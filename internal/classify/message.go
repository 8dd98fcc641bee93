package classify

import (
	"math"

	"github.com/shopspring/decimal"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/symbol"
)

var one = decimal.NewFromInt(1)

// FormatUSD renders a fiat amount. Values that round below one dollar keep
// two decimals, everything else has none. Halves round away from zero.
func FormatUSD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	d := decimal.NewFromFloat(v).Abs()
	if d.Round(2).LessThan(one) {
		return "$" + d.StringFixed(2)
	}
	return "$" + d.StringFixed(0)
}

// Title returns the notification title for a direction.
func Title(dir domain.NotificationType) string {
	switch dir {
	case domain.NotificationTypeBuy:
		return "Buy Transaction"
	case domain.NotificationTypeSell:
		return "Sell Transaction"
	case domain.NotificationTypeSwap:
		return "Swap Transaction"
	default:
		return "New Transaction"
	}
}

func verb(dir domain.NotificationType) string {
	switch dir {
	case domain.NotificationTypeBuy:
		return "bought"
	case domain.NotificationTypeSell:
		return "sold"
	case domain.NotificationTypeSwap:
		return "swapped"
	default:
		return ""
	}
}

// DisplayName is the watcher's nickname for address, or the shortened address.
func DisplayName(w domain.Watcher, address string) string {
	if w.Nickname != nil && *w.Nickname != "" {
		return *w.Nickname
	}
	return symbol.FallbackLabel(address)
}

// Message renders the notification body.
func Message(who string, dir domain.NotificationType, valueUSD float64, sym string) string {
	v := verb(dir)
	if v == "" || sym == "" {
		return who + " made a transaction worth " + FormatUSD(valueUSD)
	}
	return who + " " + v + " " + FormatUSD(valueUSD) + " of " + sym
}
