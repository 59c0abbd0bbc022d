// Player commands between turns. Every command is refused once the run is
// over and while another command or turn is running.
package engine

import (
	"log/slog"
	"slices"

	"github.com/talgya/fjordheim/internal/buildings"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/creatures"
	"github.com/talgya/fjordheim/internal/dialogue"
	"github.com/talgya/fjordheim/internal/events"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

// AvailableBuildings lists the blueprints the village can build right now.
func (s *Simulation) AvailableBuildings() []content.BuildingDef {
	return s.Buildings.Available(s.Ledger.Era(), s.Events.HasFlag)
}

// SelectBuilding enters placement mode for id.
func (s *Simulation) SelectBuilding(id string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := s.availableDefinition("select building", id); err != nil {
		return err
	}
	return s.Buildings.EnterPlacementMode(id)
}

// CancelPlacement leaves placement mode.
func (s *Simulation) CancelPlacement() error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()
	s.Buildings.ExitPlacementMode()
	return nil
}

// PlaceBuilding builds id at c, charging its cost. An empty id places the
// blueprint selected with SelectBuilding.
func (s *Simulation) PlaceBuilding(c world.Coord, id string) (buildings.Building, error) {
	done, err := s.begin()
	if err != nil {
		return buildings.Building{}, err
	}
	defer done()

	const op = "place building"
	if id == "" {
		selected, ok := s.Buildings.Placing()
		if !ok {
			return buildings.Building{}, simerr.Rejected(op, "no building selected")
		}
		id = selected
	}
	def, err := s.availableDefinition(op, id)
	if err != nil {
		return buildings.Building{}, err
	}
	b, err := s.Buildings.Place(s.Map, c, id, s.Ledger)
	if err != nil {
		return buildings.Building{}, err
	}
	s.record(s.Ledger.Turn(), "building", "%s raised at (%d,%d)", def.Name, c.X, c.Y)
	return b, nil
}

// availableDefinition looks up id and checks the current era unlocks it.
func (s *Simulation) availableDefinition(op, id string) (content.BuildingDef, error) {
	def, ok := s.Buildings.Definition(id)
	if !ok {
		slog.Warn("unknown building", "building", id)
		return content.BuildingDef{}, simerr.NotFound(op, "building", id)
	}
	if !slices.ContainsFunc(s.AvailableBuildings(), func(d content.BuildingDef) bool { return d.ID == id }) {
		return content.BuildingDef{}, simerr.Rejected(op, "%s is not available in the %s era", def.ID, s.Ledger.Era())
	}
	return def, nil
}

// AssignWorker moves an idle villager into the building at c.
func (s *Simulation) AssignWorker(c world.Coord) (buildings.Building, error) {
	done, err := s.begin()
	if err != nil {
		return buildings.Building{}, err
	}
	defer done()
	return s.Buildings.AssignWorker(c, s.IdleVillagers())
}

// RemoveWorker sends a worker at c back to idle.
func (s *Simulation) RemoveWorker(c world.Coord) (buildings.Building, error) {
	done, err := s.begin()
	if err != nil {
		return buildings.Building{}, err
	}
	defer done()
	return s.Buildings.RemoveWorker(c)
}

// Upgrade improves the building at c.
func (s *Simulation) Upgrade(c world.Coord) (buildings.Building, error) {
	done, err := s.begin()
	if err != nil {
		return buildings.Building{}, err
	}
	defer done()
	b, err := s.Buildings.Upgrade(c, s.Ledger.Era(), s.Ledger)
	if err != nil {
		return buildings.Building{}, err
	}
	s.record(s.Ledger.Turn(), "building", "%s upgraded at (%d,%d)", b.DefinitionID, c.X, c.Y)
	return b, nil
}

// ResolveEvent answers pending event id with choice idx. A rejected choice
// leaves the event pending.
func (s *Simulation) ResolveEvent(id string, idx int) (events.Outcome, error) {
	done, err := s.begin()
	if err != nil {
		return events.Outcome{}, err
	}
	defer done()

	const op = "resolve event"
	i := slices.IndexFunc(s.pending, func(ev content.EventDef) bool { return ev.ID == id })
	if i < 0 {
		return events.Outcome{}, simerr.NotFound(op, "pending event", id)
	}
	out, err := s.Events.ResolveChoice(s.pending[i], idx, s.Ledger)
	if err != nil {
		return events.Outcome{}, err
	}
	s.pending = slices.Delete(s.pending, i, i+1)
	s.record(s.Ledger.Turn(), "event", "%s: %s", id, s.choiceText(id, idx))
	return out, nil
}

func (s *Simulation) choiceText(id string, idx int) string {
	ev, _ := s.Events.Event(id)
	if idx >= 0 && idx < len(ev.Choices) {
		return ev.Choices[idx].Text
	}
	return ""
}

// StartDialogue opens dialogue id outside of any creature encounter.
func (s *Simulation) StartDialogue(id string) (dialogue.View, error) {
	done, err := s.begin()
	if err != nil {
		return dialogue.View{}, err
	}
	defer done()
	if err := s.Dialogue.Start(id, s.Ledger); err != nil {
		return dialogue.View{}, err
	}
	v, _ := s.Dialogue.View(s.Ledger)
	return v, nil
}

// SelectDialogueChoice answers the active dialogue. The view is returned with
// ok false when the dialogue ended.
func (s *Simulation) SelectDialogueChoice(idx int) (dialogue.View, bool, error) {
	done, err := s.begin()
	if err != nil {
		return dialogue.View{}, false, err
	}
	defer done()
	if err := s.Dialogue.SelectChoice(idx, s.Ledger); err != nil {
		return dialogue.View{}, false, err
	}
	defer s.dismissSpeaker()
	v, ok := s.Dialogue.View(s.Ledger)
	return v, ok, nil
}

// ResolveDialogueCombat fights the enemy named by the active combat node and
// continues the dialogue on the outcome.
func (s *Simulation) ResolveDialogueCombat() (creatures.CombatResult, error) {
	done, err := s.begin()
	if err != nil {
		return creatures.CombatResult{}, err
	}
	defer done()

	v, ok := s.Dialogue.View(s.Ledger)
	if !ok || !v.InCombat {
		return creatures.CombatResult{}, simerr.Rejected("resolve dialogue combat", "no combat in progress")
	}
	def, ok := s.Creatures.Definition(v.Enemy)
	if !ok {
		slog.Warn("combat enemy not found", "dialogue", v.DialogueID, "enemy", v.Enemy)
		def = content.CreatureDef{ID: v.Enemy}
	}
	res := s.Creatures.Duel(def, s.Strength())
	if c, ok := s.Creatures.Get(s.talkingTo); ok {
		res.Creature = c
	}
	s.applyCombat(res)
	if err := s.Dialogue.ResolveCombat(res.Won, s.Ledger); err != nil {
		return creatures.CombatResult{}, err
	}
	s.dismissSpeaker()
	return res, nil
}

// InteractWithCreature engages creature id. A dialogue interaction keeps the
// creature on the map until the conversation ends.
func (s *Simulation) InteractWithCreature(id string) (creatures.Interaction, error) {
	done, err := s.begin()
	if err != nil {
		return creatures.Interaction{}, err
	}
	defer done()
	in, err := s.Creatures.Interact(id, s.Dialogue, s.Ledger)
	if err != nil {
		return creatures.Interaction{}, err
	}
	if in.Type == creatures.InteractDialogue {
		s.talkingTo = id
		s.dismissSpeaker()
	}
	return in, nil
}

// Trade completes offer idx with creature id.
func (s *Simulation) Trade(id string, idx int) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()
	c, _ := s.Creatures.Get(id)
	if err := s.Creatures.Trade(id, idx, s.Ledger); err != nil {
		return err
	}
	s.record(s.Ledger.Turn(), "creature", "traded with a %s", c.DefinitionID)
	return nil
}

// Fight attacks hostile creature id with the village's strength.
func (s *Simulation) Fight(id string) (creatures.CombatResult, error) {
	done, err := s.begin()
	if err != nil {
		return creatures.CombatResult{}, err
	}
	defer done()
	res, err := s.Creatures.Fight(id, s.Strength())
	if err != nil {
		return creatures.CombatResult{}, err
	}
	if s.talkingTo == id {
		s.talkingTo = ""
	}
	s.applyCombat(res)
	return res, nil
}

// applyCombat charges a lost fight: morale and one villager.
func (s *Simulation) applyCombat(res creatures.CombatResult) {
	turn := s.Ledger.Turn()
	if res.Won {
		s.record(turn, "combat", "the village drove off a %s", res.Enemy)
		return
	}
	s.Ledger.Apply(map[string]float64{
		resources.Morale:     -s.Balance.CombatLossMorale,
		resources.Population: -1,
	})
	s.Buildings.ReleaseWorkers(int(s.Ledger.Get(resources.Population)))
	s.record(turn, "combat", "a %s overcame the village", res.Enemy)
}
