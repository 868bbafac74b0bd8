package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ActionBuy  = "buy"
	ActionSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"

	ProductOptions = "options"

	ExchangeNFO = "NFO"
	ExchangeBFO = "BFO"
)

// OrderLeg is one single-instrument order within a (possibly multi-leg) strategy.
type OrderLeg struct {
	Symbol    string          `json:"stock_code"`
	Exchange  string          `json:"exchange_code"`
	Product   string          `json:"product"`
	Action    string          `json:"action"`
	OrderType string          `json:"order_type"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Stoploss  decimal.Decimal `json:"stoploss"`
	Expiry    string          `json:"expiry_date"`
	Strike    int             `json:"strike_price"`
	Right     string          `json:"right"`
	Remark    string          `json:"user_remark,omitempty"`
}

// Normalize fills the defaults the broker assumes for omitted fields.
func (l *OrderLeg) Normalize() {
	if l.Exchange == "" {
		l.Exchange = ExchangeNFO
	}
	if l.Product == "" {
		l.Product = ProductOptions
	}
	if l.Action == "" {
		l.Action = ActionBuy
	}
	l.Action = strings.ToLower(l.Action)
	if l.OrderType == "" {
		l.OrderType = OrderTypeMarket
	}
	// An omitted right means the call side, same as the broker's default.
	if l.Right == "" {
		l.Right = string(RightCall)
	}
	l.Right = RightFromString(l.Right).BrokerRight()
}

// Validate checks the fields the broker rejects hard on.
func (l *OrderLeg) Validate() error {
	if l.Symbol == "" {
		return fmt.Errorf("leg missing stock_code")
	}
	if l.Quantity <= 0 {
		return fmt.Errorf("leg missing or invalid quantity: %d", l.Quantity)
	}
	if l.Expiry == "" {
		return fmt.Errorf("leg missing expiry_date")
	}
	return nil
}

// Reversed returns the square-off counterpart of the leg: same instrument,
// opposite action.
func (l OrderLeg) Reversed() OrderLeg {
	out := l
	if strings.ToLower(l.Action) == ActionBuy {
		out.Action = ActionSell
	} else {
		out.Action = ActionBuy
	}
	out.Remark = "SquareOff"
	return out
}

// LegResult records the outcome of one leg submission. A strategy result
// always contains exactly one entry per input leg, ordered by LegIndex.
type LegResult struct {
	LegIndex int    `json:"leg_index"`
	Success  bool   `json:"success"`
	OrderID  string `json:"order_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ModifyRequest carries the mutable attributes of a pending order.
type ModifyRequest struct {
	OrderID  string          `json:"order_id"`
	Exchange string          `json:"exchange_code"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Stoploss decimal.Decimal `json:"stoploss"`
	Validity string          `json:"validity"`
}
