// Package resources holds the village's bounded named counters. The turn
// counter and era live here too, as plain entries advanced by the engine.
package resources

import (
	"maps"
	"math"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
)

// Well-known resource ids.
const (
	Food       = "food"
	Wood       = "wood"
	Stone      = "stone"
	Morale     = "morale"
	Population = "population"
	Turn       = "turn"
	Era        = "era"
)

// Ledger stores resource amounts. Ids without a definition are unbounded.
type Ledger struct {
	defs    map[string]content.ResourceDef
	amounts map[string]float64
	bus     *bus.Bus
}

// New creates a ledger with every defined resource at its clamped zero.
func New(defs []content.ResourceDef, b *bus.Bus) *Ledger {
	l := &Ledger{
		defs:    make(map[string]content.ResourceDef, len(defs)),
		amounts: make(map[string]float64, len(defs)+2),
		bus:     b,
	}
	for _, d := range defs {
		l.defs[d.ID] = d
	}
	l.reset(nil)
	return l
}

// Reset restores starting values for a new game: turn 1, first era.
func (l *Ledger) Reset(starting map[string]float64) {
	l.reset(starting)
	l.publish()
}

func (l *Ledger) reset(starting map[string]float64) {
	clear(l.amounts)
	for id, d := range l.defs {
		l.amounts[id] = d.Clamp(0)
	}
	for id, v := range starting {
		l.amounts[id] = l.clamp(id, v)
	}
	l.amounts[Turn] = 1
	l.amounts[Era] = float64(content.EraVillage)
}

func (l *Ledger) clamp(id string, v float64) float64 {
	if d, ok := l.defs[id]; ok {
		return d.Clamp(v)
	}
	return v
}

// Get returns the amount of id, zero if never set.
func (l *Ledger) Get(id string) float64 {
	return l.amounts[id]
}

// Set stores v clamped to the resource's bounds.
func (l *Ledger) Set(id string, v float64) {
	l.amounts[id] = l.clamp(id, v)
	l.publish()
}

// Add applies a delta through Set.
func (l *Ledger) Add(id string, delta float64) {
	l.Set(id, l.amounts[id]+delta)
}

// Remove subtracts amount through Set.
func (l *Ledger) Remove(id string, amount float64) {
	l.Set(id, l.amounts[id]-amount)
}

// Apply adds every delta and publishes once.
func (l *Ledger) Apply(deltas map[string]float64) {
	if len(deltas) == 0 {
		return
	}
	for id, d := range deltas {
		l.amounts[id] = l.clamp(id, l.amounts[id]+d)
	}
	l.publish()
}

// HasEnough reports whether every cost entry is covered.
func (l *Ledger) HasEnough(cost map[string]float64) bool {
	for id, amt := range cost {
		if l.amounts[id] < amt {
			return false
		}
	}
	return true
}

// Spend deducts every entry of cost, or nothing if any entry is short.
func (l *Ledger) Spend(cost map[string]float64) bool {
	if !l.HasEnough(cost) {
		return false
	}
	for id, amt := range cost {
		l.amounts[id] = l.clamp(id, l.amounts[id]-amt)
	}
	l.publish()
	return true
}

// Snapshot returns a copy of every amount, including turn and era.
func (l *Ledger) Snapshot() map[string]float64 {
	return maps.Clone(l.amounts)
}

// Restore replaces the ledger contents with a saved snapshot.
func (l *Ledger) Restore(saved map[string]float64) {
	l.reset(nil)
	for id, v := range saved {
		l.amounts[id] = l.clamp(id, v)
	}
	l.publish()
}

// Turn returns the current turn number.
func (l *Ledger) Turn() int {
	return int(l.amounts[Turn])
}

// NextTurn advances the turn counter and returns the new value.
func (l *Ledger) NextTurn() int {
	l.amounts[Turn]++
	l.publish()
	return l.Turn()
}

// Era returns the current progression era.
func (l *Ledger) Era() content.Era {
	return content.Era(math.Max(0, l.amounts[Era]))
}

// SetEra stores the progression era.
func (l *Ledger) SetEra(e content.Era) {
	l.amounts[Era] = float64(e)
	l.publish()
}

// Defined reports whether id has a definition.
func (l *Ledger) Defined(id string) bool {
	_, ok := l.defs[id]
	return ok
}

func (l *Ledger) publish() {
	l.bus.Publish(bus.ResourcesUpdated, l.Snapshot())
}
