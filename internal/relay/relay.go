// Package relay implements the change-driven push protocol that mirrors the
// tick cache to connected observers, plus the pull-based fallback query.
//
// The protocol is poll-based on purpose: each observer loop watches the
// cache version instead of registering with the cache, which keeps the
// cache free of per-observer state and is plenty fast for market-data rates.
package relay

import (
	"context"
	"log/slog"
	"time"

	"optiongate/internal/cache"
	"optiongate/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// DefaultInterval is the version poll period.
	DefaultInterval = 500 * time.Millisecond

	// DefaultHeartbeatEvery emits a liveness frame every Kth idle poll.
	DefaultHeartbeatEvery = 10
)

const (
	FrameTick      = "tick_update"
	FrameHeartbeat = "heartbeat"
)

// TickFrame is the full delta pushed when the cache version moved.
type TickFrame struct {
	Type       string                     `json:"type"`
	Version    int64                      `json:"version"`
	Ticks      []domain.OptionRow         `json:"ticks"`
	SpotPrices map[string]decimal.Decimal `json:"spot_prices"`
	TS         float64                    `json:"ts"`
	FeedLive   bool                       `json:"feedLive"`
}

// HeartbeatFrame tells an idle observer the relay and feed are alive.
type HeartbeatFrame struct {
	Type     string  `json:"type"`
	TS       float64 `json:"ts"`
	FeedLive bool    `json:"feedLive"`
}

// PullResponse answers the pull-based fallback query.
type PullResponse struct {
	Changed    bool                       `json:"changed"`
	Version    int64                      `json:"version"`
	Ticks      []domain.OptionRow         `json:"ticks,omitempty"`
	SpotPrices map[string]decimal.Decimal `json:"spot_prices,omitempty"`
	FeedLive   bool                       `json:"feedLive"`
}

// Sink is the observer transport. *websocket.Conn satisfies it.
type Sink interface {
	WriteJSON(v any) error
}

// Loop relays cache deltas to one observer. One Loop per connection; loops
// never block each other or the pacing lane.
type Loop struct {
	cache          *cache.TickCache
	feedLive       func() bool
	sink           Sink
	interval       time.Duration
	heartbeatEvery int
}

// NewLoop creates a relay loop for one observer connection.
func NewLoop(c *cache.TickCache, feedLive func() bool, sink Sink) *Loop {
	return &Loop{
		cache:          c,
		feedLive:       feedLive,
		sink:           sink,
		interval:       DefaultInterval,
		heartbeatEvery: DefaultHeartbeatEvery,
	}
}

// WithInterval overrides the poll period (tests, slow links).
func (l *Loop) WithInterval(d time.Duration) *Loop {
	if d > 0 {
		l.interval = d
	}
	return l
}

// Run polls the cache version until the context ends or a write fails.
// A changed version pushes a delta frame; every Kth idle poll pushes a
// heartbeat. A transport failure is terminal for this observer only.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	lastSeen := int64(-1)
	idle := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := l.cache.Version()
		if current == lastSeen {
			idle++
			if idle%l.heartbeatEvery == 0 {
				if err := l.sink.WriteJSON(HeartbeatFrame{
					Type:     FrameHeartbeat,
					TS:       epochSeconds(),
					FeedLive: l.feedLive(),
				}); err != nil {
					slog.Debug("relay observer gone", slog.Any("error", err))
					return
				}
			}
			continue
		}

		// One atomic read; the version always matches the rows it ships with.
		ticks, spots, version := l.cache.Delta()
		lastSeen = version
		if err := l.sink.WriteJSON(TickFrame{
			Type:       FrameTick,
			Version:    version,
			Ticks:      ticks,
			SpotPrices: spots,
			TS:         epochSeconds(),
			FeedLive:   l.feedLive(),
		}); err != nil {
			slog.Debug("relay observer gone", slog.Any("error", err))
			return
		}
	}
}

// Pull serves the pull-based companion query: cheap "unchanged" when the
// caller's version is current, the same delta payload as the push path
// otherwise.
func Pull(c *cache.TickCache, feedLive bool, sinceVersion int64) PullResponse {
	ticks, spots, version := c.Delta()
	if version <= sinceVersion {
		return PullResponse{Changed: false, Version: version, FeedLive: feedLive}
	}
	return PullResponse{
		Changed:    true,
		Version:    version,
		Ticks:      ticks,
		SpotPrices: spots,
		FeedLive:   feedLive,
	}
}

func epochSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
