// Package cache holds the versioned in-memory snapshot of live market data.
// It is the single source of truth for both push-feed updates and REST
// snapshot seeding; observers use the version counter as a cheap change token.
package cache

import (
	"sort"
	"sync"
	"time"

	"optiongate/internal/domain"

	"github.com/shopspring/decimal"
)

// TickCache is a concurrency-safe, versioned key→record store.
type TickCache struct {
	mu      sync.RWMutex
	ticks   map[domain.TickKey]*domain.TickRecord
	version int64
}

// New creates an empty TickCache at version zero.
func New() *TickCache {
	return &TickCache{
		ticks: make(map[domain.TickKey]*domain.TickRecord),
	}
}

// Update merges the partial update into the record for key, creating it if
// absent, stamps the local update time and increments the version by exactly
// one. The write is atomic against concurrent readers and writers.
func (c *TickCache) Update(key domain.TickKey, upd domain.TickUpdate) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.ticks[key]
	if !ok {
		rec = &domain.TickRecord{}
		c.ticks[key] = rec
	}
	upd.ApplyTo(rec)
	rec.UpdatedAt = epochSeconds()
	c.version++
	return c.version
}

// Snapshot returns a copy of the full table and the current version as one
// atomic pair.
func (c *TickCache) Snapshot() (map[domain.TickKey]domain.TickRecord, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[domain.TickKey]domain.TickRecord, len(c.ticks))
	for k, v := range c.ticks {
		out[k] = *v
	}
	return out, c.version
}

// Version is a cheap read of the current version.
func (c *TickCache) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of cached records, spot identities included.
func (c *TickCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}

// Clear removes all entries and resets the version to zero. Called at
// session boundaries only.
func (c *TickCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = make(map[domain.TickKey]*domain.TickRecord)
	c.version = 0
}

// Delta produces the full wire payload as one atomic read: sorted option
// rows, spot prices and the version they belong to, all under a single
// lock acquisition so a frame can never carry rows newer than its version.
func (c *TickCache) Delta() ([]domain.OptionRow, map[string]decimal.Decimal, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.optionRowsLocked(), c.spotPricesLocked(), c.version
}

// OptionRows flattens the table into option chain rows, sorted by symbol,
// strike and right for a stable wire order. Reserved spot identities are
// excluded; they are retrievable through SpotPrices.
func (c *TickCache) OptionRows() []domain.OptionRow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.optionRowsLocked()
}

func (c *TickCache) optionRowsLocked() []domain.OptionRow {
	rows := make([]domain.OptionRow, 0, len(c.ticks))
	for key, rec := range c.ticks {
		if key.IsSpot() {
			continue
		}
		rows = append(rows, domain.OptionRow{
			Symbol:    key.Symbol,
			Strike:    key.Strike,
			Right:     key.Right,
			LTP:       rec.LTP,
			OI:        rec.OI,
			Volume:    rec.Volume,
			IV:        rec.IV,
			Bid:       rec.Bid,
			Ask:       rec.Ask,
			ChangePct: rec.ChangePct,
			UpdatedAt: rec.UpdatedAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		if rows[i].Strike != rows[j].Strike {
			return rows[i].Strike < rows[j].Strike
		}
		return rows[i].Right < rows[j].Right
	})
	return rows
}

// SpotPrices returns the underlying index prices captured under reserved
// spot identities, keyed by symbol. Ordinary option rows never appear here.
func (c *TickCache) SpotPrices() map[string]decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spotPricesLocked()
}

func (c *TickCache) spotPricesLocked() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for key, rec := range c.ticks {
		if key.IsSpot() && rec.LTP.IsPositive() {
			out[key.Symbol] = rec.LTP
		}
	}
	return out
}

func epochSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
