package engine

import (
	"log/slog"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/events"
	"github.com/talgya/fjordheim/internal/resources"
)

// TurnReport summarises what one EndTurn did.
type TurnReport struct {
	Turn          int                `json:"turn"`
	Season        string             `json:"season"`
	SeasonChanged string             `json:"seasonChanged,omitempty"`
	Seasonal      string             `json:"seasonal,omitempty"`
	Production    map[string]float64 `json:"production"`
	Consumed      float64            `json:"consumed"`
	Deaths        int                `json:"deaths,omitempty"`
	Births        int                `json:"births,omitempty"`
	Events        []string           `json:"events,omitempty"`
	Pending       []string           `json:"pending,omitempty"`
	Spawned       string             `json:"spawned,omitempty"`
	EraAdvanced   string             `json:"eraAdvanced,omitempty"`
	GameOver      string             `json:"gameOver,omitempty"`
	Resources     map[string]float64 `json:"resources"`
}

// EndTurn runs one full turn. The steps run in a fixed order and each sees the
// effects of the ones before it:
//
//  1. advance the turn counter
//  2. take the season, era and modifiers for this turn, then advance the
//     season clock (a season change fires its seasonal event)
//  3. building production with this turn's modifiers
//  4. food consumption
//  5. starvation
//  6. story and random events, outside the grace period; choice-less events
//     apply at once, the rest wait for the player
//  7. creature spawns, outside the grace period
//  8. population growth and era progression
//  9. game over check
//  10. autosave
func (s *Simulation) EndTurn() (TurnReport, error) {
	done, err := s.begin()
	if err != nil {
		return TurnReport{}, err
	}
	defer done()

	turn := s.Ledger.NextTurn()
	rep := TurnReport{Turn: turn}

	season := s.Seasons.Current()
	era := s.Ledger.Era()
	mods := s.Seasons.Modifiers()
	rep.Season = season.ID
	if next, changed := s.Seasons.ProcessTurn(); changed {
		rep.SeasonChanged = next.ID
		s.record(turn, "season", "%s has come", next.Name)
		if ev, pending := s.Events.TriggerSeasonal(next.ID, turn, s.Ledger); ev.ID != "" {
			rep.Seasonal = ev.ID
			if pending {
				s.pending = append(s.pending, ev)
			}
			s.record(turn, "event", "%s", ev.Title)
		}
	}

	rep.Production = s.Buildings.ProcessTurn(s.Ledger, mods)

	rep.Consumed, rep.Deaths = s.consumeFood(turn)

	inGrace := turn <= s.Balance.GracePeriodTurns+1
	if !inGrace {
		view := events.WorldView{
			Season:     season.ID,
			Era:        era,
			Population: s.Ledger.Get(resources.Population),
			Buildings:  s.Buildings.Count(),
		}
		for _, ev := range s.Events.CheckEvents(view) {
			s.Events.Trigger(ev, turn)
			rep.Events = append(rep.Events, ev.ID)
			s.record(turn, "event", "%s", ev.Title)
			if ev.HasChoices() {
				s.pending = append(s.pending, ev)
				continue
			}
			s.Events.ApplyEffects(ev.Effects, s.Ledger)
		}

		if c, ok := s.Creatures.CheckSpawns(season.ID, era, s.Map); ok {
			rep.Spawned = c.DefinitionID
			s.record(turn, "creature", "a %s appeared at (%d,%d)", c.DefinitionID, c.X, c.Y)
		}
	}

	rep.Births = s.grow(turn)
	if next, ok := s.advanceEra(turn); ok {
		rep.EraAdvanced = next.String()
	}

	if reason, over := s.checkGameOver(turn); over {
		rep.GameOver = reason
	}

	for _, ev := range s.pending {
		rep.Pending = append(rep.Pending, ev.ID)
	}
	rep.Resources = s.Ledger.Snapshot()

	slog.Info("turn report",
		"turn", turn,
		"season", rep.Season,
		"population", rep.Resources[resources.Population],
		"food", rep.Resources[resources.Food],
		"morale", rep.Resources[resources.Morale],
		"deaths", rep.Deaths,
		"births", rep.Births,
		"events", len(rep.Events),
		"pending", len(rep.Pending),
	)

	s.autoSave()
	return rep, nil
}

// checkGameOver ends the run when the village is empty or has lost all hope.
func (s *Simulation) checkGameOver(turn int) (string, bool) {
	var reason string
	switch {
	case s.Ledger.Get(resources.Population) <= 0:
		reason = ReasonPerished
	case s.Ledger.Get(resources.Morale) <= 0:
		reason = ReasonAbandoned
	default:
		return "", false
	}
	s.over, s.reason = true, reason
	s.Dialogue.End()
	s.record(turn, "game", "%s", reason)
	slog.Info("game over", "turn", turn, "reason", reason)
	s.Bus.Publish(bus.GameOver, Over{Reason: reason, Turn: turn})
	return reason, true
}

// autoSave hands the snapshot to the configured saver. A failed save is
// logged and does not fail the turn.
func (s *Simulation) autoSave() {
	if s.AutoSave == nil {
		return
	}
	if err := s.AutoSave(s.Snapshot()); err != nil {
		slog.Error("autosave failed", "turn", s.Ledger.Turn(), "error", err)
		return
	}
	s.Bus.Publish(bus.GameSaved, Saved{Turn: s.Ledger.Turn()})
}
