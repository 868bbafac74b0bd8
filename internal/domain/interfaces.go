package domain

import (
	"context"
	"time"
)

// SessionInfo is what the broker returns on successful session establishment.
type SessionInfo struct {
	SessionToken string `json:"session_token"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Credentials identifies one broker account for session establishment.
type Credentials struct {
	APIKey       string `json:"api_key"`
	APISecret    string `json:"api_secret"`
	SessionToken string `json:"session_token"`
}

// OptionChainRequest asks for a full option chain snapshot of one expiry/right.
type OptionChainRequest struct {
	Symbol   string
	Exchange string
	Expiry   string
	Right    Right
	Strike   string // empty for the whole chain
}

// QuoteRequest asks for a single instrument quote. An empty Expiry/Right/Strike
// combination queries the cash-market instrument (index spot).
type QuoteRequest struct {
	Symbol   string
	Exchange string
	Expiry   string
	Right    string
	Strike   string
}

// HistoricalRequest asks for OHLCV candles.
type HistoricalRequest struct {
	Symbol   string
	Exchange string
	Interval string
	From     string
	To       string
	Expiry   string
	Right    string
	Strike   string
}

// FeedSubscription is one push-feed registration.
type FeedSubscription struct {
	Symbol   string
	Exchange string
	Expiry   string
	Strike   int
	Right    Right
}

// SubscriptionKey is the dedupe identity of a feed subscription.
type SubscriptionKey struct {
	Symbol string
	Strike int
	Right  Right
	Expiry string
}

// Key returns the dedupe identity of the subscription.
func (s FeedSubscription) Key() SubscriptionKey {
	return SubscriptionKey{Symbol: s.Symbol, Strike: s.Strike, Right: s.Right, Expiry: s.Expiry}
}

// RawTick is one push payload as delivered by the broker SDK. Logical fields
// may arrive under several different key names depending on payload shape.
type RawTick map[string]any

// TickHandler consumes raw feed payloads.
type TickHandler func(ticks []RawTick)

// BrokerClient is the boundary to the broker's REST command surface and
// push-based market data feed. Implementations are synchronous; callers are
// expected to funnel every method through the session's pacing queue.
type BrokerClient interface {
	CreateSession(ctx context.Context, creds Credentials) (*SessionInfo, error)
	CloseSession()

	OptionChain(ctx context.Context, req OptionChainRequest) ([]RawTick, error)
	Quote(ctx context.Context, req QuoteRequest) ([]RawTick, error)

	PlaceOrder(ctx context.Context, leg OrderLeg) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID, exchange string) error
	ModifyOrder(ctx context.Context, req ModifyRequest) error

	OrderBook(ctx context.Context, exchange string, from, to time.Time) ([]RawTick, error)
	TradeBook(ctx context.Context, exchange string, from, to time.Time) ([]RawTick, error)
	Positions(ctx context.Context) ([]RawTick, error)
	Holdings(ctx context.Context) ([]RawTick, error)
	Funds(ctx context.Context) (RawTick, error)
	Historical(ctx context.Context, req HistoricalRequest) ([]RawTick, error)

	FeedConnect(ctx context.Context) error
	FeedDisconnect()
	FeedActive() bool
	Subscribe(ctx context.Context, sub FeedSubscription) error
	Unsubscribe(ctx context.Context, sub FeedSubscription) error
	OnTicks(h TickHandler)
}

// OrderJournal records order submission outcomes for post-trade review.
// Journal failures must never fail the order itself.
type OrderJournal interface {
	Record(leg OrderLeg, res LegResult) error
}
