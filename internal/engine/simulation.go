// Package engine ties the sub-systems together and sequences them every turn.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/fjordheim/internal/buildings"
	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/config"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/creatures"
	"github.com/talgya/fjordheim/internal/dialogue"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/events"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/seasons"
	"github.com/talgya/fjordheim/internal/world"
)

// Orchestrator-level failures.
var (
	ErrGameOver       = errors.New("game over: start a new game")
	ErrTurnInProgress = errors.New("turn in progress")
)

// Game over reasons.
const (
	ReasonPerished  = "All villagers have perished."
	ReasonAbandoned = "The villagers have lost all hope and abandoned the village."
)

// maxLog bounds the in-memory log of notable occurrences.
const maxLog = 1000

// LogEntry is a notable occurrence kept for status queries.
type LogEntry struct {
	Turn        int    `json:"turn"`
	Description string `json:"description"`
	Category    string `json:"category"` // "season", "event", "starvation", "creature", "era", "growth", "combat"
}

// Notification payloads.
type (
	Started struct {
		Name string
		Turn int
	}
	Over struct {
		Reason string
		Turn   int
	}
	Starvation struct {
		Deaths  int
		Deficit float64
	}
	EraAdvanced struct {
		From content.Era
		To   content.Era
	}
	Saved struct {
		Turn int
	}
)

// Options wires a Simulation.
type Options struct {
	Catalog *content.Catalog
	Balance config.Balance
	Map     *world.Map
	RNG     entropy.Source
	Bus     *bus.Bus
	Name    string
}

// Simulation owns every sub-system and the run state between turns.
type Simulation struct {
	Name    string
	Catalog *content.Catalog
	Balance config.Balance
	Map     *world.Map
	Bus     *bus.Bus

	Ledger    *resources.Ledger
	Buildings *buildings.Registry
	Events    *events.Engine
	Dialogue  *dialogue.Engine
	Seasons   *seasons.Clock
	Creatures *creatures.Director

	Log []LogEntry

	// AutoSave receives the snapshot at the end of every turn. Nil disables it.
	AutoSave func(Snapshot) error

	pending   []content.EventDef
	over      bool
	reason    string
	busy      bool
	talkingTo string // creature whose dialogue is running
	now       func() time.Time
}

// New builds a Simulation. Call NewGame or Load before the first turn.
func New(opts Options) (*Simulation, error) {
	if opts.Catalog == nil || opts.Map == nil || opts.RNG == nil {
		return nil, fmt.Errorf("new simulation: catalog, map and rng are required")
	}
	if err := opts.Balance.Validate(); err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	clock, err := seasons.New(opts.Catalog.Seasons, opts.Balance.SeasonDuration, opts.Bus)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	ev := events.New(opts.Catalog, opts.RNG, opts.Balance.EventCheckChance, opts.Bus)
	s := &Simulation{
		Name:      opts.Name,
		Catalog:   opts.Catalog,
		Balance:   opts.Balance,
		Map:       opts.Map,
		Bus:       opts.Bus,
		Ledger:    resources.New(opts.Catalog.Resources, opts.Bus),
		Buildings: buildings.New(opts.Catalog.Buildings, opts.Bus),
		Events:    ev,
		Dialogue:  dialogue.New(opts.Catalog.Dialogues, ev, opts.RNG, opts.Bus),
		Seasons:   clock,
		Creatures: creatures.New(opts.Catalog.Creatures, opts.Balance.CreatureSpawnChance, opts.RNG, opts.Bus),
		now:       time.Now,
	}
	return s, nil
}

// SetClock replaces the wall clock used for snapshot and history timestamps.
func (s *Simulation) SetClock(now func() time.Time) {
	s.now = now
	s.Events.SetClock(now)
}

// NewGame resets every sub-system and lays out the starting village at the
// best site on the map. It is refused while a turn or command is running.
func (s *Simulation) NewGame() error {
	done, err := s.hold()
	if err != nil {
		return err
	}
	defer done()
	s.reset()
	return nil
}

func (s *Simulation) reset() {
	s.Dialogue.End()
	s.Ledger.Reset(s.Balance.StartingResources)
	s.Buildings.Reset()
	s.Events.Reset()
	s.Seasons.Reset()
	s.Creatures.Reset()
	s.pending = nil
	s.over, s.reason = false, ""
	s.talkingTo = ""
	s.Log = nil

	site, ok := world.FindVillageSite(s.Map)
	if !ok {
		site.Coord = world.Coord{X: s.Map.Width / 2, Y: s.Map.Height / 2}
	}
	for _, sb := range s.Balance.StartingLayout {
		c := world.Coord{X: site.Coord.X + sb.DX, Y: site.Coord.Y + sb.DY}
		if _, err := s.Buildings.PlaceStarting(s.Map, c, sb.Building); err != nil {
			slog.Warn("starting building skipped", "building", sb.Building, "x", c.X, "y", c.Y, "error", err)
		}
	}

	slog.Info("new game",
		"name", s.Name,
		"site_x", site.Coord.X,
		"site_y", site.Coord.Y,
		"buildings", s.Buildings.Count(),
		"season", s.Seasons.CurrentID(),
	)
	s.Bus.Publish(bus.GameStarted, Started{Name: s.Name, Turn: s.Ledger.Turn()})
}

// Turn returns the current turn number.
func (s *Simulation) Turn() int {
	return s.Ledger.Turn()
}

// IsOver reports whether the run has ended, and why.
func (s *Simulation) IsOver() (bool, string) {
	return s.over, s.reason
}

// Pending returns the events awaiting a player decision, oldest first.
func (s *Simulation) Pending() []content.EventDef {
	return append([]content.EventDef(nil), s.pending...)
}

// Strength is the village's fighting power: half the population plus every
// completed building's defense effect.
func (s *Simulation) Strength() float64 {
	return s.Ledger.Get(resources.Population)/2 + s.Buildings.TotalEffect("defense")
}

// IdleVillagers is population not assigned to any building.
func (s *Simulation) IdleVillagers() int {
	return max(int(s.Ledger.Get(resources.Population))-s.Buildings.TotalWorkers(), 0)
}

// LogSince returns the log entries from turn onwards.
func (s *Simulation) LogSince(turn int) []LogEntry {
	i := len(s.Log)
	for i > 0 && s.Log[i-1].Turn >= turn {
		i--
	}
	return append([]LogEntry(nil), s.Log[i:]...)
}

// record appends to the log, keeping the most recent entries.
func (s *Simulation) record(turn int, category, format string, args ...any) {
	s.Log = append(s.Log, LogEntry{Turn: turn, Category: category, Description: fmt.Sprintf(format, args...)})
	if len(s.Log) > maxLog {
		s.Log = s.Log[len(s.Log)-maxLog:]
	}
}

// begin guards against re-entry from notification handlers. The returned
// func must be deferred.
func (s *Simulation) begin() (func(), error) {
	if s.busy {
		return nil, ErrTurnInProgress
	}
	if s.over {
		return nil, ErrGameOver
	}
	return s.hold()
}

// hold marks the simulation busy without the game-over gate, for NewGame and
// Load, which replace a finished run.
func (s *Simulation) hold() (func(), error) {
	if s.busy {
		return nil, ErrTurnInProgress
	}
	s.busy = true
	return func() { s.busy = false }, nil
}

// dismissSpeaker sends away the creature once its dialogue has ended.
func (s *Simulation) dismissSpeaker() {
	if s.talkingTo == "" || s.Dialogue.Active() {
		return
	}
	id := s.talkingTo
	s.talkingTo = ""
	s.Creatures.Remove(id)
}
