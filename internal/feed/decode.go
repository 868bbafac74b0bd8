package feed

import (
	"strings"

	"optiongate/internal/domain"

	"github.com/shopspring/decimal"
)

// DecodeTick turns a raw push payload into a cache key and partial update.
// A payload without an identifying symbol is malformed and dropped; every
// price field is optional.
func DecodeTick(raw domain.RawTick) (domain.TickKey, domain.TickUpdate, error) {
	symbol, ok := firstString(raw, symbolAliases)
	if !ok {
		return domain.TickKey{}, domain.TickUpdate{}, &domain.MalformedTickError{Reason: "no stock_code or symbol field"}
	}
	symbol = strings.ToUpper(symbol)

	strike, _ := strikeValue(raw, strikeAliases)
	right := domain.RightCall
	if s, ok := firstString(raw, rightAliases); ok {
		right = domain.RightFromString(s)
	}

	key := domain.TickKey{Symbol: symbol, Strike: strike, Right: right}
	return key, decodeFields(raw), nil
}

// DecodeChainRow decodes one REST option-chain snapshot row. The snapshot
// query carries symbol and right itself, so only the strike identifies the
// row; rows without one are malformed.
func DecodeChainRow(symbol string, right domain.Right, raw domain.RawTick) (domain.TickKey, domain.TickUpdate, error) {
	strike, ok := strikeValue(raw, strikeAliases)
	if !ok {
		return domain.TickKey{}, domain.TickUpdate{}, &domain.MalformedTickError{Reason: "chain row without strike"}
	}

	key := domain.TickKey{Symbol: strings.ToUpper(symbol), Strike: strike, Right: right}
	return key, decodeFields(raw), nil
}

func decodeFields(raw domain.RawTick) domain.TickUpdate {
	var upd domain.TickUpdate
	if v, ok := firstNumber(raw, ltpAliases); ok {
		upd.LTP = &v
	}
	if v, ok := firstNumber(raw, oiAliases); ok {
		upd.OI = &v
	}
	if v, ok := firstNumber(raw, volumeAliases); ok {
		upd.Volume = &v
	}
	if v, ok := firstNumber(raw, ivAliases); ok {
		upd.IV = &v
	}
	if v, ok := firstNumber(raw, bidAliases); ok {
		upd.Bid = &v
	}
	if v, ok := firstNumber(raw, askAliases); ok {
		upd.Ask = &v
	}
	if v, ok := firstNumber(raw, changePctAliases); ok {
		upd.ChangePct = &v
	}
	if s, ok := firstString(raw, feedTimeAliases); ok {
		upd.FeedTime = &s
	}
	return upd
}

// UnderlyingSpot tries to extract the underlying index price that the broker
// smuggles onto option ticks. Best-effort heuristic: the first candidate
// field above the magnitude floor wins; there is no precise contract for
// which field carries it in which payload shape.
func UnderlyingSpot(raw domain.RawTick) (decimal.Decimal, bool) {
	for _, name := range underlyingAliases {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		d, ok := toDecimal(v)
		if ok && d.GreaterThan(SpotFloor) {
			return d, true
		}
	}
	return decimal.Zero, false
}

// QuoteLTP extracts a traded price from a REST quote row, requiring the
// same magnitude floor as UnderlyingSpot since it feeds the spot cache.
func QuoteLTP(raw domain.RawTick) (decimal.Decimal, bool) {
	for _, name := range quoteLTPAliases {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		d, ok := toDecimal(v)
		if ok && d.GreaterThan(SpotFloor) {
			return d, true
		}
	}
	return decimal.Zero, false
}
