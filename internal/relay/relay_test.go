package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"optiongate/internal/cache"
	"optiongate/internal/domain"

	"github.com/shopspring/decimal"
)

// captureSink records every frame written to it and can be armed to fail.
type captureSink struct {
	mu     sync.Mutex
	frames []any
	fail   bool
}

func (s *captureSink) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, v)
	return nil
}

func (s *captureSink) snapshot() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *captureSink) breakPipe() {
	s.mu.Lock()
	s.fail = true
	s.mu.Unlock()
}

func ltp(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestLoop_PushesDeltaOnVersionChange(t *testing.T) {
	c := cache.New()
	sink := &captureSink{}
	loop := NewLoop(c, func() bool { return true }, sink).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	// The very first poll relays the current state, even an empty cache.
	waitFor(t, func() bool { return len(sink.snapshot()) >= 1 })

	c.Update(domain.TickKey{Symbol: "NIFTY", Strike: 21500, Right: domain.RightCall},
		domain.TickUpdate{LTP: ltp(142)})
	c.Update(domain.SpotKey("NIFTY"), domain.TickUpdate{LTP: ltp(21480)})

	waitFor(t, func() bool {
		for _, f := range sink.snapshot() {
			tf, ok := f.(TickFrame)
			if ok && tf.Version >= 2 {
				return true
			}
		}
		return false
	})

	var last TickFrame
	for _, f := range sink.snapshot() {
		if tf, ok := f.(TickFrame); ok {
			last = tf
		}
	}
	if last.Type != FrameTick {
		t.Fatalf("frame type = %q, want %q", last.Type, FrameTick)
	}
	if len(last.Ticks) != 1 {
		t.Fatalf("ticks in frame = %d, want 1", len(last.Ticks))
	}
	if !last.FeedLive {
		t.Fatal("feed liveness flag not carried")
	}
	if got := last.SpotPrices["NIFTY"]; !got.Equal(decimal.NewFromInt(21480)) {
		t.Fatalf("spot in frame = %s, want 21480", got)
	}
}

func TestLoop_HeartbeatWhenIdle(t *testing.T) {
	c := cache.New()
	sink := &captureSink{}
	loop := NewLoop(c, func() bool { return false }, sink).WithInterval(2 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	// First poll drains the initial frame; after that the cache never moves,
	// so only heartbeats may follow.
	waitFor(t, func() bool {
		for _, f := range sink.snapshot() {
			if _, ok := f.(HeartbeatFrame); ok {
				return true
			}
		}
		return false
	})

	frames := sink.snapshot()
	tickFrames := 0
	for _, f := range frames {
		switch v := f.(type) {
		case TickFrame:
			tickFrames++
		case HeartbeatFrame:
			if v.Type != FrameHeartbeat {
				t.Fatalf("heartbeat type = %q", v.Type)
			}
			if v.FeedLive {
				t.Fatal("heartbeat reported a live feed for a dead one")
			}
		}
	}
	if tickFrames != 1 {
		t.Fatalf("tick frames while idle = %d, want exactly the initial one", tickFrames)
	}
}

func TestLoop_ExitsOnWriteFailure(t *testing.T) {
	c := cache.New()
	sink := &captureSink{}
	loop := NewLoop(c, func() bool { return true }, sink).WithInterval(2 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	waitFor(t, func() bool { return len(sink.snapshot()) >= 1 })
	sink.breakPipe()
	c.Update(domain.SpotKey("NIFTY"), domain.TickUpdate{LTP: ltp(21480)})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after the transport failed")
	}
}

func TestPull_UnchangedAndDelta(t *testing.T) {
	c := cache.New()
	c.Update(domain.TickKey{Symbol: "NIFTY", Strike: 21500, Right: domain.RightPut},
		domain.TickUpdate{LTP: ltp(98)})

	resp := Pull(c, true, 0)
	if !resp.Changed {
		t.Fatal("expected a delta for a stale caller version")
	}
	if resp.Version != 1 || len(resp.Ticks) != 1 {
		t.Fatalf("delta = version %d with %d ticks, want 1/1", resp.Version, len(resp.Ticks))
	}

	resp = Pull(c, true, resp.Version)
	if resp.Changed {
		t.Fatal("expected unchanged for a current caller version")
	}
	if resp.Ticks != nil || resp.SpotPrices != nil {
		t.Fatal("unchanged response must not carry a payload")
	}
}
