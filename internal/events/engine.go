// Package events evaluates story triggers, rolls weighted random events,
// fires seasonal events and resolves event choices. It owns the run's flag set.
package events

import (
	"log/slog"
	"slices"
	"time"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/entropy"
)

// Ledger is the slice of the resource ledger events touch.
type Ledger interface {
	Get(id string) float64
	HasEnough(cost map[string]float64) bool
	Apply(deltas map[string]float64)
}

// WorldView is the read-only state an event check needs, collected by the
// caller.
type WorldView struct {
	Season     string
	Era        content.Era
	Population float64
	Buildings  int
}

// HistoryEntry records one triggered event.
type HistoryEntry struct {
	ID        string `json:"id"`
	Turn      int    `json:"turn"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// State is the persisted part of the engine.
type State struct {
	History []HistoryEntry `json:"history"`
	Flags   []string       `json:"flags"`
}

// Notification payloads.
type (
	Triggered struct {
		Event content.EventDef
		Turn  int
	}
	Seasonal struct {
		Event     content.EventDef
		Automatic bool
	}
)

// Engine holds the event catalogs and the run's history and flags.
type Engine struct {
	story    []content.EventDef
	random   []content.EventDef
	seasonal []content.EventDef
	byID     map[string]content.EventDef

	history []HistoryEntry
	flags   *Flags

	rng         entropy.Source
	checkChance float64
	now         func() time.Time
	bus         *bus.Bus
}

// New creates an engine. checkChance is the per-turn probability that a
// random event is rolled at all.
func New(c *content.Catalog, rng entropy.Source, checkChance float64, b *bus.Bus) *Engine {
	e := &Engine{
		story:       c.Story,
		random:      c.Random,
		seasonal:    c.Seasonal,
		byID:        make(map[string]content.EventDef),
		flags:       NewFlags(),
		rng:         rng,
		checkChance: checkChance,
		now:         time.Now,
		bus:         b,
	}
	for _, list := range [][]content.EventDef{c.Story, c.Random, c.Seasonal} {
		for _, ev := range list {
			e.byID[ev.ID] = ev
		}
	}
	return e
}

// SetClock replaces the timestamp source for history entries.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Event looks up any event by id.
func (e *Engine) Event(id string) (content.EventDef, bool) {
	ev, ok := e.byID[id]
	return ev, ok
}

// CheckEvents returns at most one story event followed by at most one random
// event. Story events are flagged as they trigger so they never fire twice.
func (e *Engine) CheckEvents(view WorldView) []content.EventDef {
	var out []content.EventDef
	if ev, ok := e.CheckStory(view); ok {
		out = append(out, ev)
	}
	if e.rng.Float64() < e.checkChance {
		if ev, ok := e.SelectRandom(view.Season, view.Era); ok {
			out = append(out, ev)
		}
	}
	return out
}

// CheckStory returns the first unflagged story event whose conditions hold and
// flags it.
func (e *Engine) CheckStory(view WorldView) (content.EventDef, bool) {
	for _, ev := range e.story {
		if e.flags.Has(ev.ID) {
			continue
		}
		if e.conditionsHold(ev.Trigger, view) {
			e.flags.Add(ev.ID)
			slog.Debug("story event triggered", "event", ev.ID)
			return ev, true
		}
	}
	return content.EventDef{}, false
}

// conditionsHold requires every present condition. Events without conditions
// never trigger on their own.
func (e *Engine) conditionsHold(c *content.TriggerConditions, view WorldView) bool {
	if c == nil {
		return false
	}
	if c.Population > 0 && view.Population < c.Population {
		return false
	}
	if c.Buildings > 0 && view.Buildings < c.Buildings {
		return false
	}
	if c.Era != nil && *c.Era != view.Era {
		return false
	}
	return e.flags.Holds(c.Flag)
}

// SelectRandom filters random events by era and season and draws one weighted
// by probability, walking the candidates in catalog order.
func (e *Engine) SelectRandom(season string, era content.Era) (content.EventDef, bool) {
	var eligible []content.EventDef
	total := 0.0
	for _, ev := range e.random {
		if len(ev.Eras) > 0 && !slices.Contains(ev.Eras, era) {
			continue
		}
		if len(ev.Seasons) > 0 && !slices.Contains(ev.Seasons, season) {
			continue
		}
		eligible = append(eligible, ev)
		total += ev.Probability
	}
	if len(eligible) == 0 || total <= 0 {
		return content.EventDef{}, false
	}

	remaining := e.rng.Float64() * total
	for _, ev := range eligible {
		remaining -= ev.Probability
		if remaining <= 0 {
			return ev, true
		}
	}
	// Floating-point drift.
	return eligible[len(eligible)-1], true
}

// TriggerSeasonal fires the seasonal event for season, if any. Automatic
// events apply their effects at once; others are returned as pending.
func (e *Engine) TriggerSeasonal(season string, turn int, ledger Ledger) (content.EventDef, bool) {
	for _, ev := range e.seasonal {
		if ev.Season != season {
			continue
		}
		e.record(ev.ID, turn)
		if ev.Automatic || !ev.HasChoices() {
			e.ApplyEffects(ev.Effects, ledger)
			e.bus.Publish(bus.EventSeasonal, Seasonal{Event: ev, Automatic: true})
			return ev, false
		}
		e.bus.Publish(bus.EventSeasonal, Seasonal{Event: ev})
		return ev, true
	}
	return content.EventDef{}, false
}

// Trigger records ev in the history and announces it.
func (e *Engine) Trigger(ev content.EventDef, turn int) {
	e.record(ev.ID, turn)
	e.bus.Publish(bus.EventTriggered, Triggered{Event: ev, Turn: turn})
}

func (e *Engine) record(id string, turn int) {
	e.history = append(e.history, HistoryEntry{ID: id, Turn: turn, Timestamp: e.now().UnixMilli()})
}

// ApplyEffects writes deltas to the ledger, sets the event flag and announces
// lore.
func (e *Engine) ApplyEffects(fx content.Effects, ledger Ledger) {
	ledger.Apply(fx.Deltas)
	if fx.Flag != "" {
		e.flags.Add(fx.Flag)
	}
	if fx.Lore != "" {
		e.bus.Publish(bus.LoreUnlocked, content.LoreUnlocked{LoreID: fx.Lore})
	}
}

// SetFlag adds a flag.
func (e *Engine) SetFlag(id string) {
	e.flags.Add(id)
}

// HasFlag reports whether a flag is set.
func (e *Engine) HasFlag(id string) bool {
	return e.flags.Has(id)
}

// History returns a copy of the trigger history.
func (e *Engine) History() []HistoryEntry {
	return append([]HistoryEntry(nil), e.history...)
}

// Reset clears history and flags for a new game.
func (e *Engine) Reset() {
	e.history = nil
	e.flags = NewFlags()
}

// SaveState returns the persisted state.
func (e *Engine) SaveState() State {
	return State{History: e.History(), Flags: e.flags.List()}
}

// LoadState replaces history and flags.
func (e *Engine) LoadState(s State) {
	e.history = append([]HistoryEntry(nil), s.History...)
	e.flags = NewFlags(s.Flags...)
}
