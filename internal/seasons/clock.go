// Package seasons implements the cyclic season clock. Each season lasts its own
// duration_turns, or the clock's default when unset.
package seasons

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
)

// Changed is the season:changed payload.
type Changed struct {
	From content.SeasonDef
	To   content.SeasonDef
}

// State is the persisted clock position.
type State struct {
	CurrentSeasonIndex   int `json:"currentSeasonIndex"`
	TurnsInCurrentSeason int `json:"turnsInCurrentSeason"`
}

// Clock tracks the current season.
type Clock struct {
	seasons         []content.SeasonDef
	defaultDuration int
	index           int
	elapsed         int
	bus             *bus.Bus
}

// New creates a clock at the first season.
func New(seasons []content.SeasonDef, defaultDuration int, b *bus.Bus) (*Clock, error) {
	if len(seasons) == 0 {
		return nil, fmt.Errorf("season clock: no seasons")
	}
	if defaultDuration <= 0 {
		return nil, fmt.Errorf("season clock: default duration %d must be positive", defaultDuration)
	}
	return &Clock{seasons: seasons, defaultDuration: defaultDuration, bus: b}, nil
}

// Current returns the active season.
func (c *Clock) Current() content.SeasonDef {
	return c.seasons[c.index]
}

// CurrentID returns the active season's id.
func (c *Clock) CurrentID() string {
	return c.seasons[c.index].ID
}

// Modifiers returns a copy of the active season's effect map.
func (c *Clock) Modifiers() map[string]float64 {
	m := maps.Clone(c.seasons[c.index].Effects)
	if m == nil {
		m = map[string]float64{}
	}
	return m
}

// Duration returns how many turns the active season lasts.
func (c *Clock) Duration() int {
	if d := c.seasons[c.index].DurationTurns; d > 0 {
		return d
	}
	return c.defaultDuration
}

// Progress returns the fraction of the active season already elapsed.
func (c *Clock) Progress() float64 {
	return float64(c.elapsed) / float64(c.Duration())
}

// ProcessTurn counts one turn and advances the season once its duration is
// reached. It returns the new season and true on a change.
func (c *Clock) ProcessTurn() (content.SeasonDef, bool) {
	c.elapsed++
	if c.elapsed < c.Duration() {
		return c.Current(), false
	}

	from := c.Current()
	c.index = (c.index + 1) % len(c.seasons)
	c.elapsed = 0
	to := c.Current()

	slog.Info("season change", "from", from.ID, "to", to.ID)
	c.bus.Publish(bus.SeasonChanged, Changed{From: from, To: to})
	return to, true
}

// Reset returns the clock to the first season.
func (c *Clock) Reset() {
	c.index, c.elapsed = 0, 0
}

// Save returns the clock position.
func (c *Clock) Save() State {
	return State{CurrentSeasonIndex: c.index, TurnsInCurrentSeason: c.elapsed}
}

// Load restores a saved position.
func (c *Clock) Load(s State) error {
	if s.CurrentSeasonIndex < 0 || s.CurrentSeasonIndex >= len(c.seasons) {
		return fmt.Errorf("season index %d out of range [0,%d)", s.CurrentSeasonIndex, len(c.seasons))
	}
	if s.TurnsInCurrentSeason < 0 {
		return fmt.Errorf("negative turns in season: %d", s.TurnsInCurrentSeason)
	}
	c.index, c.elapsed = s.CurrentSeasonIndex, s.TurnsInCurrentSeason
	return nil
}
