// Package session owns the per-connection state of the gateway: one pacing
// queue, one tick cache and one feed subscription set, created on broker
// connect and torn down on disconnect.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"optiongate/internal/cache"
	"optiongate/internal/domain"
	"optiongate/internal/feed"
	"optiongate/internal/infra"
	"optiongate/internal/pacing"

	"github.com/shopspring/decimal"
)

const (
	// DefaultJoinTimeout bounds how long PlaceStrategy waits for one leg.
	DefaultJoinTimeout = 60 * time.Second

	// subscribeSpacing throttles consecutive feed subscribe writes.
	subscribeSpacing = 50 * time.Millisecond
)

// Config tunes one Session.
type Config struct {
	Pacing      pacing.Config
	JoinTimeout time.Duration
}

// RateStatus reports the pacing lane state, served by the rate-status query.
type RateStatus struct {
	CallsLastMinute int   `json:"calls_last_minute"`
	MaxPerMinute    int   `json:"max_per_minute"`
	MinIntervalMs   int64 `json:"min_interval_ms"`
	QueueDepth      int   `json:"queue_depth"`
}

// SubscribeResult summarizes one SubscribeOptionChain call.
type SubscribeResult struct {
	Subscribed int      `json:"subscribed"`
	TotalSubs  int      `json:"total_subs"`
	Errors     []string `json:"errors,omitempty"`
}

// Positions bundles the two portfolio queries the broker splits.
type Positions struct {
	Positions []domain.RawTick `json:"positions"`
	Holdings  []domain.RawTick `json:"holdings"`
}

// Session is the gateway's stateful core. One Session serves one broker
// account; concurrent multi-session use of a single Session is unsupported.
type Session struct {
	broker  domain.BrokerClient
	queue   *pacing.Queue
	cache   *cache.TickCache
	journal domain.OrderJournal

	joinTimeout time.Duration

	mu         sync.Mutex
	connected  bool
	subscribed map[domain.SubscriptionKey]domain.FeedSubscription
	feedOn     bool

	// feedMu serializes feed startup so concurrent subscribe calls cannot
	// both dial the broker feed.
	feedMu sync.Mutex
}

// New creates a Session around a broker client. journal may be nil.
func New(broker domain.BrokerClient, journal domain.OrderJournal, cfg Config) *Session {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	return &Session{
		broker:      broker,
		queue:       pacing.New(cfg.Pacing),
		cache:       cache.New(),
		journal:     journal,
		joinTimeout: cfg.JoinTimeout,
		subscribed:  make(map[domain.SubscriptionKey]domain.FeedSubscription),
	}
}

// Cache exposes the tick cache to relay observers.
func (s *Session) Cache() *cache.TickCache {
	return s.cache
}

// Connected reports whether a broker session is active.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// FeedActive reports push-feed liveness, carried on every relay frame.
func (s *Session) FeedActive() bool {
	return s.broker.FeedActive()
}

// SubscriptionCount returns the size of the active subscription set.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribed)
}

// Connect establishes the broker session and resets all session state.
func (s *Session) Connect(ctx context.Context, creds domain.Credentials) (*domain.SessionInfo, error) {
	v, err := s.queue.EnqueueMutating(func() (any, error) {
		info, err := s.broker.CreateSession(ctx, creds)
		if err != nil {
			return nil, &domain.BrokerCallError{Op: "create_session", Err: err}
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	info := v.(*domain.SessionInfo)

	s.cache.Clear()
	s.broker.OnTicks(s.handleTicks)

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	slog.Info("broker session established", slog.String("name", info.Name))
	return info, nil
}

// Disconnect tears the session down: feed stopped, subscriptions and cache
// cleared. The cache and subscription set are ephemeral by design, rebuilt
// on the next connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	wasOn := s.feedOn
	s.connected = false
	s.feedOn = false
	s.subscribed = make(map[domain.SubscriptionKey]domain.FeedSubscription)
	s.mu.Unlock()

	if wasOn {
		s.broker.FeedDisconnect()
		infra.GlobalMetrics.SetFeedLive(false)
	}
	s.broker.CloseSession()
	s.cache.Clear()
	slog.Info("broker session closed")
}

// Close releases the pacing lane. The Session is unusable afterwards.
func (s *Session) Close() {
	s.Disconnect()
	s.queue.Close()
}

func (s *Session) ensureConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domain.ErrNotConnected
	}
	return nil
}

// call funnels one broker call through the pacing lane.
func (s *Session) call(op string, mutating bool, fn func() (any, error)) (any, error) {
	wrapped := func() (any, error) {
		start := time.Now()
		v, err := fn()
		infra.GlobalMetrics.RecordBrokerCall(time.Since(start).Nanoseconds())
		if err != nil {
			infra.GlobalMetrics.RecordError()
			return nil, &domain.BrokerCallError{Op: op, Err: err}
		}
		return v, nil
	}
	if mutating {
		return s.queue.EnqueueMutating(wrapped)
	}
	return s.queue.Enqueue(wrapped)
}

// FetchOptionChain queries a full chain snapshot, seeds the tick cache from
// the rows and returns them. Meant to be called once per expiry change; live
// prices come from the push feed afterwards.
func (s *Session) FetchOptionChain(ctx context.Context, req domain.OptionChainRequest) ([]domain.RawTick, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	v, err := s.call("option_chain", false, func() (any, error) {
		return s.broker.OptionChain(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]domain.RawTick)

	for _, row := range rows {
		key, upd, err := feed.DecodeChainRow(req.Symbol, req.Right, row)
		if err != nil {
			slog.Debug("skipping chain row", slog.Any("error", err))
			continue
		}
		s.cache.Update(key, upd)
	}
	return rows, nil
}

// Quote queries a single instrument quote.
func (s *Session) Quote(ctx context.Context, req domain.QuoteRequest) ([]domain.RawTick, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	v, err := s.call("quote", false, func() (any, error) {
		return s.broker.Quote(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.RawTick), nil
}

// SpotPrice returns the live underlying index price. The cached feed value
// wins; only a cache miss spends a pacing slot on a REST quote, whose result
// then seeds the cache for the next caller.
func (s *Session) SpotPrice(ctx context.Context, symbol, exchange string) (decimal.Decimal, string, error) {
	if err := s.ensureConnected(); err != nil {
		return decimal.Zero, "", err
	}

	if cached, ok := s.cache.SpotPrices()[symbol]; ok && cached.GreaterThan(feed.SpotFloor) {
		return cached, "ws_tick", nil
	}

	rows, err := s.Quote(ctx, domain.QuoteRequest{Symbol: symbol, Exchange: exchange})
	if err != nil {
		return decimal.Zero, "", err
	}
	for _, row := range rows {
		ltp, ok := feed.QuoteLTP(row)
		if !ok {
			continue
		}
		s.cache.Update(domain.SpotKey(symbol), domain.TickUpdate{LTP: &ltp})
		return ltp, "rest_quote", nil
	}
	return decimal.Zero, "", &domain.BrokerCallError{
		Op:  "spot",
		Err: &domain.MalformedTickError{Reason: "no spot price in quote response for " + symbol},
	}
}

// CancelOrder cancels a pending order.
func (s *Session) CancelOrder(ctx context.Context, orderID, exchange string) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	if exchange == "" {
		exchange = domain.ExchangeNFO
	}
	_, err := s.call("cancel_order", true, func() (any, error) {
		return nil, s.broker.CancelOrder(ctx, orderID, exchange)
	})
	return err
}

// ModifyOrder updates price/quantity/stoploss of a pending order.
func (s *Session) ModifyOrder(ctx context.Context, req domain.ModifyRequest) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	if req.Validity == "" {
		req.Validity = "day"
	}
	_, err := s.call("modify_order", true, func() (any, error) {
		return nil, s.broker.ModifyOrder(ctx, req)
	})
	return err
}

// OrderBook returns today's orders.
func (s *Session) OrderBook(ctx context.Context) ([]domain.RawTick, error) {
	return s.book(ctx, "order_book", s.broker.OrderBook)
}

// TradeBook returns today's trades.
func (s *Session) TradeBook(ctx context.Context) ([]domain.RawTick, error) {
	return s.book(ctx, "trade_book", s.broker.TradeBook)
}

func (s *Session) book(ctx context.Context, op string,
	fn func(context.Context, string, time.Time, time.Time) ([]domain.RawTick, error)) ([]domain.RawTick, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.Add(24*time.Hour - time.Second)

	v, err := s.call(op, false, func() (any, error) {
		return fn(ctx, domain.ExchangeNFO, from, to)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.RawTick), nil
}

// PortfolioPositions bundles positions and holdings; two paced calls.
func (s *Session) PortfolioPositions(ctx context.Context) (*Positions, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	pv, err := s.call("positions", false, func() (any, error) {
		return s.broker.Positions(ctx)
	})
	if err != nil {
		return nil, err
	}
	hv, err := s.call("holdings", false, func() (any, error) {
		return s.broker.Holdings(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Positions{Positions: pv.([]domain.RawTick), Holdings: hv.([]domain.RawTick)}, nil
}

// Funds returns the available margin snapshot.
func (s *Session) Funds(ctx context.Context) (domain.RawTick, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	v, err := s.call("funds", false, func() (any, error) {
		return s.broker.Funds(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.RawTick), nil
}

// Historical returns OHLCV candles.
func (s *Session) Historical(ctx context.Context, req domain.HistoricalRequest) ([]domain.RawTick, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	v, err := s.call("historical", false, func() (any, error) {
		return s.broker.Historical(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.RawTick), nil
}

// RateStatus reports the pacing lane state.
func (s *Session) RateStatus() RateStatus {
	return RateStatus{
		CallsLastMinute: s.queue.CallsLastMinute(),
		MaxPerMinute:    s.queue.MaxPerMinute(),
		MinIntervalMs:   s.queue.MinInterval().Milliseconds(),
		QueueDepth:      s.queue.Depth(),
	}
}

// SubscribeOptionChain registers feed subscriptions for the strike×right
// grid, suppressing duplicates already in the subscription set. Subscribe
// writes go straight to the feed socket, not through the pacing lane.
func (s *Session) SubscribeOptionChain(ctx context.Context, symbol, exchange, expiry string, strikes []int, rights []domain.Right) (*SubscribeResult, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	if len(rights) == 0 {
		rights = []domain.Right{domain.RightCall, domain.RightPut}
	}

	if err := s.startFeed(ctx); err != nil {
		return nil, err
	}

	res := &SubscribeResult{}
	for _, strike := range strikes {
		for _, right := range rights {
			sub := domain.FeedSubscription{
				Symbol:   symbol,
				Exchange: exchange,
				Expiry:   expiry,
				Strike:   strike,
				Right:    right,
			}

			s.mu.Lock()
			_, dup := s.subscribed[sub.Key()]
			s.mu.Unlock()
			if dup {
				continue
			}

			if err := s.broker.Subscribe(ctx, sub); err != nil {
				res.Errors = append(res.Errors, sub.Key().Symbol+": "+err.Error())
				continue
			}

			s.mu.Lock()
			s.subscribed[sub.Key()] = sub
			s.mu.Unlock()
			res.Subscribed++

			time.Sleep(subscribeSpacing)
		}
	}

	res.TotalSubs = s.SubscriptionCount()
	return res, nil
}

// UnsubscribeAll drops every active feed subscription, best-effort.
func (s *Session) UnsubscribeAll(ctx context.Context) {
	s.mu.Lock()
	subs := make([]domain.FeedSubscription, 0, len(s.subscribed))
	for _, sub := range s.subscribed {
		subs = append(subs, sub)
	}
	s.subscribed = make(map[domain.SubscriptionKey]domain.FeedSubscription)
	s.mu.Unlock()

	for _, sub := range subs {
		if err := s.broker.Unsubscribe(ctx, sub); err != nil {
			slog.Debug("unsubscribe failed", slog.String("symbol", sub.Symbol), slog.Any("error", err))
		}
	}
}

func (s *Session) startFeed(ctx context.Context) error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.mu.Lock()
	on := s.feedOn
	s.mu.Unlock()
	if on {
		return nil
	}

	if err := s.broker.FeedConnect(ctx); err != nil {
		return &domain.BrokerCallError{Op: "feed_connect", Err: err}
	}

	s.mu.Lock()
	s.feedOn = true
	s.mu.Unlock()
	infra.GlobalMetrics.SetFeedLive(true)
	return nil
}

// handleTicks is the push-feed callback. Each tick is decoded through the
// field-alias table and merged into the cache; a tick that also carries the
// underlying index value additionally feeds the reserved spot identity.
// Malformed ticks are dropped without affecting the rest of the batch.
func (s *Session) handleTicks(ticks []domain.RawTick) {
	infra.GlobalMetrics.RecordTicks(len(ticks))
	for _, raw := range ticks {
		key, upd, err := feed.DecodeTick(raw)
		if err != nil {
			slog.Warn("dropping tick", slog.Any("error", err))
			continue
		}
		s.cache.Update(key, upd)

		if spot, ok := feed.UnderlyingSpot(raw); ok {
			s.cache.Update(domain.SpotKey(key.Symbol), domain.TickUpdate{LTP: &spot})
		}
	}
}
