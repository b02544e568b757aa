// Package alertstate decides whether a qualifying deviation should be alerted.
package alertstate

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCapacity is the number of signal keys kept before the set is cleared.
const DefaultCapacity = 100

// Tracker holds per-symbol last-fire times and the set of signal keys already
// sent. It is owned by a single poll loop and is not safe for concurrent use.
//
// Cooldown is keyed by symbol; de-duplication is keyed by symbol plus the
// deviation rounded to two decimals. When the key set grows past its capacity
// it is cleared entirely rather than evicted.
type Tracker struct {
	cooldown time.Duration
	capacity int
	lastFire map[string]time.Time
	seen     map[string]struct{}
	clears   int
}

// New constructs a Tracker. capacity <= 0 selects DefaultCapacity.
func New(cooldown time.Duration, capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		cooldown: cooldown,
		capacity: capacity,
		lastFire: make(map[string]time.Time),
		seen:     make(map[string]struct{}),
	}
}

// SignalKey identifies an alert for de-duplication.
func SignalKey(symbol string, deviation decimal.Decimal) string {
	return symbol + "_" + deviation.StringFixed(2)
}

// ShouldFire reports whether an alert for symbol at deviation may be sent at
// now, and records it as sent when it may.
func (t *Tracker) ShouldFire(symbol string, deviation decimal.Decimal, now time.Time) bool {
	key := SignalKey(symbol, deviation)

	if last, ok := t.lastFire[symbol]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	if _, dup := t.seen[key]; dup {
		return false
	}

	t.lastFire[symbol] = now
	t.seen[key] = struct{}{}
	if len(t.seen) > t.capacity {
		clear(t.seen)
		t.clears++
	}
	return true
}

// Stats is a snapshot of tracker bookkeeping.
type Stats struct {
	Symbols    int
	SignalKeys int
	Clears     int
}

// Stats returns current counts.
func (t *Tracker) Stats() Stats {
	return Stats{
		Symbols:    len(t.lastFire),
		SignalKeys: len(t.seen),
		Clears:     t.clears,
	}
}
