package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Right is the option type suffix used in cache keys and delta rows.
type Right string

const (
	RightCall Right = "CE"
	RightPut  Right = "PE"

	// RightSpot marks the reserved pseudo-identity that carries the
	// underlying index price. It never appears in option chain rows.
	RightSpot Right = "SPOT"
)

// RightFromString normalizes any broker spelling ("call", "CE", "C") to a Right.
// Anything not starting with 'c' or 'C' is treated as a put.
func RightFromString(s string) Right {
	if strings.HasPrefix(strings.ToUpper(s), "C") {
		return RightCall
	}
	return RightPut
}

// BrokerRight returns the long form the broker REST API expects.
func (r Right) BrokerRight() string {
	if r == RightCall {
		return "Call"
	}
	return "Put"
}

// TickKey identifies one instrument in the tick cache: an option
// (symbol, strike, right) or the reserved spot identity (symbol only).
type TickKey struct {
	Symbol string
	Strike int
	Right  Right
}

// SpotKey returns the reserved spot identity for a symbol.
func SpotKey(symbol string) TickKey {
	return TickKey{Symbol: symbol, Right: RightSpot}
}

// IsSpot reports whether the key is a reserved spot identity.
func (k TickKey) IsSpot() bool {
	return k.Right == RightSpot
}

// String renders the wire encoding: "NIFTY:21500:CE" or "NIFTY:SPOT".
func (k TickKey) String() string {
	if k.IsSpot() {
		return k.Symbol + ":SPOT"
	}
	return fmt.Sprintf("%s:%d:%s", k.Symbol, k.Strike, k.Right)
}

// ParseTickKey parses the wire encoding back into a structured key.
// Strike values formatted as decimals ("21500.0") are truncated to an
// integer. Keys that do not fit either shape return a MalformedKeyError.
func ParseTickKey(s string) (TickKey, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[1] == string(RightSpot):
		return SpotKey(parts[0]), nil
	case len(parts) >= 3:
		strike, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return TickKey{}, &MalformedKeyError{Key: s}
		}
		return TickKey{Symbol: parts[0], Strike: int(strike), Right: Right(parts[2])}, nil
	default:
		return TickKey{}, &MalformedKeyError{Key: s}
	}
}

// TickRecord is the most recently known state of one instrument.
// Records are mutated by partial merge only, never replaced wholesale.
type TickRecord struct {
	LTP       decimal.Decimal `json:"ltp"`
	OI        decimal.Decimal `json:"oi"`
	Volume    decimal.Decimal `json:"volume"`
	IV        decimal.Decimal `json:"iv"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	ChangePct decimal.Decimal `json:"change_pct"`
	FeedTime  string          `json:"feed_time,omitempty"`
	// UpdatedAt is the local merge time in epoch seconds, stamped by the cache.
	UpdatedAt float64 `json:"last_updated"`
}

// TickUpdate is a partial tick: nil fields leave the existing record untouched.
type TickUpdate struct {
	LTP       *decimal.Decimal
	OI        *decimal.Decimal
	Volume    *decimal.Decimal
	IV        *decimal.Decimal
	Bid       *decimal.Decimal
	Ask       *decimal.Decimal
	ChangePct *decimal.Decimal
	FeedTime  *string
}

// ApplyTo merges the non-nil fields into rec.
func (u TickUpdate) ApplyTo(rec *TickRecord) {
	if u.LTP != nil {
		rec.LTP = *u.LTP
	}
	if u.OI != nil {
		rec.OI = *u.OI
	}
	if u.Volume != nil {
		rec.Volume = *u.Volume
	}
	if u.IV != nil {
		rec.IV = *u.IV
	}
	if u.Bid != nil {
		rec.Bid = *u.Bid
	}
	if u.Ask != nil {
		rec.Ask = *u.Ask
	}
	if u.ChangePct != nil {
		rec.ChangePct = *u.ChangePct
	}
	if u.FeedTime != nil {
		rec.FeedTime = *u.FeedTime
	}
}

// OptionRow is one flattened option chain entry produced by the cache delta.
type OptionRow struct {
	Symbol    string          `json:"stock_code"`
	Strike    int             `json:"strike"`
	Right     Right           `json:"right"`
	LTP       decimal.Decimal `json:"ltp"`
	OI        decimal.Decimal `json:"oi"`
	Volume    decimal.Decimal `json:"volume"`
	IV        decimal.Decimal `json:"iv"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	ChangePct decimal.Decimal `json:"change_pct"`
	UpdatedAt float64         `json:"last_updated"`
}
