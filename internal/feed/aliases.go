// Package feed decodes raw broker push payloads into cache updates.
//
// The broker delivers the same logical field under different key names
// depending on payload shape version (SDK snake_case, REST dash-case, and
// older short names). Each logical field therefore has an explicit ordered
// candidate list; the first present value wins.
package feed

import (
	"strconv"

	"optiongate/internal/domain"

	"github.com/shopspring/decimal"
)

// Ordered candidate key names per logical field. Earlier entries correspond
// to newer payload shapes.
var (
	symbolAliases    = []string{"stock_code", "symbol"}
	strikeAliases    = []string{"strike_price", "strike-price", "strike"}
	rightAliases     = []string{"right", "option_type"}
	ltpAliases       = []string{"last_traded_price", "ltp"}
	oiAliases        = []string{"open_interest", "open-interest", "oi"}
	volumeAliases    = []string{"total_quantity_traded", "total-quantity-traded", "volume"}
	ivAliases        = []string{"implied_volatility", "implied-volatility", "iv"}
	bidAliases       = []string{"best_bid_price", "best-bid-price", "bid_price", "bid"}
	askAliases       = []string{"best_offer_price", "best-offer-price", "ask_price", "ask"}
	changePctAliases = []string{"change_percent", "change_pct"}
	feedTimeAliases  = []string{"exchange_feed_time", "feed_time"}

	// Side-channel fields on option ticks that may carry the underlying
	// index value, tried in order. Best-effort; see UnderlyingSpot.
	underlyingAliases = []string{
		"index_close_price",
		"UnderlyingValue",
		"underlying_value",
		"close_price",
		"index_price",
		"underlying_spot_price",
	}

	// Quote rows use yet another set of names for the traded price.
	quoteLTPAliases = []string{"ltp", "last_traded_price", "close", "last_price", "LastPrice"}
)

// SpotFloor is the magnitude threshold for accepting an underlying value:
// NIFTY trades above 1000, SENSEX above 10000. Values at or below it are
// assumed to be option premiums leaking through a shared field name.
var SpotFloor = decimal.NewFromInt(1000)

// firstString returns the first non-empty string value among the candidates.
func firstString(raw domain.RawTick, candidates []string) (string, bool) {
	for _, name := range candidates {
		if v, ok := raw[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// firstNumber returns the first value among the candidates that parses to a
// positive-or-zero number. Payloads carry numbers as float64, int or string
// depending on shape version.
func firstNumber(raw domain.RawTick, candidates []string) (decimal.Decimal, bool) {
	for _, name := range candidates {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		if n == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// strikeValue extracts a strike as an integer, truncating decimal forms.
func strikeValue(raw domain.RawTick, candidates []string) (int, bool) {
	for _, name := range candidates {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n), true
		case int:
			return n, true
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				continue
			}
			return int(f), true
		}
	}
	return 0, false
}
