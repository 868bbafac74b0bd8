// Package pacing serializes broker calls through a single execution lane
// with a minimum spacing between consecutive call starts. This is the ban
// guard: every outbound REST call the gateway makes goes through one Queue.
package pacing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"optiongate/internal/domain"
)

const (
	DefaultMinInterval = 600 * time.Millisecond
	DefaultCapacity    = 50
	DefaultEnqueueWait = 45 * time.Second

	// stampWindow bounds the ring of recorded execution start times.
	stampWindow = 100
)

// ErrEvicted is delivered to a caller whose pending work was dropped to
// admit newer work under overflow.
var ErrEvicted = errors.New("pacing queue: evicted under overflow")

// Work is one opaque unit submitted to the queue.
type Work func() (any, error)

type outcome struct {
	value any
	err   error
}

type item struct {
	run      Work
	done     chan outcome // buffered; the lane never blocks on delivery
	mutating bool
}

// Config tunes one Queue. Zero values fall back to the defaults above.
type Config struct {
	// MinInterval is the minimum spacing between consecutive execution starts.
	MinInterval time.Duration
	// Capacity bounds the number of pending items. On overflow the oldest
	// still-pending item is evicted to admit the new one.
	Capacity int
	// EnqueueWait is how long a caller blocks for its result before giving
	// up with a PacingTimeoutError. The work itself is never cancelled.
	EnqueueWait time.Duration
}

func (c *Config) withDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.EnqueueWait <= 0 {
		c.EnqueueWait = DefaultEnqueueWait
	}
}

// Queue is a single-lane, FIFO, bounded work queue. One background goroutine
// pulls items in admission order and enforces the pacing interval.
type Queue struct {
	cfg Config

	mu        sync.Mutex
	pending   []*item
	closed    bool
	lastStart time.Time
	stamps    [stampWindow]time.Time
	stampIdx  int
	stampN    int

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Queue and starts its execution lane.
func New(cfg Config) *Queue {
	cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}
	q.wg.Add(1)
	go q.lane(ctx)
	return q
}

// Enqueue submits read-only work (quotes, books, snapshots) and blocks the
// caller until it executes or the enqueue wait elapses.
func (q *Queue) Enqueue(w Work) (any, error) {
	return q.submit(w, false)
}

// EnqueueMutating submits order-affecting work. Mutating items are the last
// candidates for overflow eviction: a stale quote refresh is dropped before
// a queued order call.
func (q *Queue) EnqueueMutating(w Work) (any, error) {
	return q.submit(w, true)
}

func (q *Queue) submit(w Work, mutating bool) (any, error) {
	it := &item{run: w, done: make(chan outcome, 1), mutating: mutating}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, domain.ErrQueueClosed
	}
	if len(q.pending) >= q.cfg.Capacity {
		q.evictLocked()
	}
	q.pending = append(q.pending, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case out := <-it.done:
		return out.value, out.err
	case <-time.After(q.cfg.EnqueueWait):
		// The item stays queued and may still execute; only the waiting stops.
		return nil, &domain.PacingTimeoutError{Wait: q.cfg.EnqueueWait}
	}
}

// evictLocked drops the oldest pending item, preferring non-mutating work.
// Only when every pending item is order-mutating is the oldest overall dropped.
func (q *Queue) evictLocked() {
	idx := 0
	for i, it := range q.pending {
		if !it.mutating {
			idx = i
			break
		}
	}
	victim := q.pending[idx]
	q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	victim.done <- outcome{err: ErrEvicted}
	slog.Warn("pacing queue overflow, evicted pending item",
		slog.Bool("mutating", victim.mutating), slog.Int("depth", len(q.pending)))
}

func (q *Queue) lane(ctx context.Context) {
	defer q.wg.Done()

	for {
		it := q.next(ctx)
		if it == nil {
			q.drain()
			return
		}

		q.mu.Lock()
		wait := time.Duration(0)
		if !q.lastStart.IsZero() {
			wait = q.cfg.MinInterval - time.Since(q.lastStart)
		}
		q.mu.Unlock()

		if wait > 0 {
			select {
			case <-ctx.Done():
				it.done <- outcome{err: domain.ErrQueueClosed}
				q.drain()
				return
			case <-time.After(wait):
			}
		}

		q.mu.Lock()
		q.lastStart = time.Now()
		q.stamps[q.stampIdx] = q.lastStart
		q.stampIdx = (q.stampIdx + 1) % stampWindow
		if q.stampN < stampWindow {
			q.stampN++
		}
		q.mu.Unlock()

		v, err := runGuarded(it.run)
		it.done <- outcome{value: v, err: err}
	}
}

// runGuarded keeps a panicking unit of work from killing the lane.
func runGuarded(w Work) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pacing work panicked: %v", r)
		}
	}()
	return w()
}

// next blocks until an item is available or the queue shuts down.
func (q *Queue) next(ctx context.Context) *item {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			it := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return it
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		}
	}
}

// drain fails all still-pending callers after shutdown.
func (q *Queue) drain() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.closed = true
	q.mu.Unlock()

	for _, it := range pending {
		it.done <- outcome{err: domain.ErrQueueClosed}
	}
}

// Close stops the lane. Pending callers receive ErrQueueClosed; the item
// currently executing is allowed to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

// Depth returns the number of items currently pending.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// CallsLastMinute counts recorded execution starts within the trailing 60s.
func (q *Queue) CallsLastMinute() int {
	cutoff := time.Now().Add(-time.Minute)

	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := 0; i < q.stampN; i++ {
		if q.stamps[i].After(cutoff) {
			n++
		}
	}
	return n
}

// MinInterval reports the configured pacing interval.
func (q *Queue) MinInterval() time.Duration {
	return q.cfg.MinInterval
}

// MaxPerMinute derives the call budget the pacing interval enforces.
func (q *Queue) MaxPerMinute() int {
	return int(time.Minute / q.cfg.MinInterval)
}
