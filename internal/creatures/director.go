// Package creatures spawns visitors at the map edge and resolves interactions
// with them: dialogue first, then combat for hostile creatures, then trade.
package creatures

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/dialogue"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

// DefaultHealth is used when a blueprint has no combat stats.
const DefaultHealth = 100

// Interaction types.
const (
	InteractDialogue = "dialogue"
	InteractCombat   = "combat"
	InteractTrade    = "trade"
)

// Creature is a live instance. The blueprint is referenced by id only.
type Creature struct {
	ID           string  `json:"id"`
	DefinitionID string  `json:"definitionId"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Health       float64 `json:"health"`
}

// Interaction is the creature:interaction payload.
type Interaction struct {
	Type     string               `json:"type"`
	Creature Creature             `json:"creature"`
	Dialogue string               `json:"dialogue,omitempty"`
	Stats    *content.CombatStats `json:"stats,omitempty"`
	Offers   []content.TradeOffer `json:"offers,omitempty"`
}

// Removed is the creature:removed payload.
type Removed struct {
	Creature Creature
}

// Dialogues is what the director needs from the dialogue engine.
type Dialogues interface {
	Has(id string) bool
	Start(id string, ledger dialogue.Ledger) error
}

// Ledger is the slice of the resource ledger trades touch.
type Ledger interface {
	dialogue.Ledger
	Spend(cost map[string]float64) bool
}

// Director owns the creatures currently on the map.
type Director struct {
	defs      map[string]content.CreatureDef
	order     []string
	creatures []*Creature
	chance    float64
	rng       entropy.Source
	bus       *bus.Bus
}

// New creates a director. chance is the per-turn spawn probability.
func New(defs []content.CreatureDef, chance float64, rng entropy.Source, b *bus.Bus) *Director {
	d := &Director{
		defs:   make(map[string]content.CreatureDef, len(defs)),
		chance: chance,
		rng:    rng,
		bus:    b,
	}
	for _, def := range defs {
		d.defs[def.ID] = def
		d.order = append(d.order, def.ID)
	}
	return d
}

// Definition looks up a blueprint.
func (d *Director) Definition(id string) (content.CreatureDef, bool) {
	def, ok := d.defs[id]
	return def, ok
}

// CheckSpawns rolls once against the spawn chance and, on success, spawns a
// uniformly chosen eligible creature on the map edge.
func (d *Director) CheckSpawns(season string, era content.Era, m *world.Map) (Creature, bool) {
	if d.rng.Float64() >= d.chance {
		return Creature{}, false
	}
	eligible := d.Eligible(season, era)
	if len(eligible) == 0 {
		return Creature{}, false
	}
	def := eligible[d.rng.Intn(len(eligible))]
	return d.Spawn(def, m), true
}

// Eligible filters blueprints by minimum era and season, in catalog order.
func (d *Director) Eligible(season string, era content.Era) []content.CreatureDef {
	var out []content.CreatureDef
	for _, id := range d.order {
		def := d.defs[id]
		if !def.SpawnConditions.MinEra.Unlocks(era) {
			continue
		}
		if s := def.SpawnConditions.Seasons; len(s) > 0 && !slices.Contains(s, season) {
			continue
		}
		out = append(out, def)
	}
	return out
}

// Spawn places a new instance of def on a random map edge.
func (d *Director) Spawn(def content.CreatureDef, m *world.Map) Creature {
	pos := d.edgePosition(m)
	health := float64(DefaultHealth)
	if def.CombatStats != nil && def.CombatStats.Health > 0 {
		health = def.CombatStats.Health
	}
	c := &Creature{
		ID:           d.newID(def.ID),
		DefinitionID: def.ID,
		X:            pos.X,
		Y:            pos.Y,
		Health:       health,
	}
	d.creatures = append(d.creatures, c)
	slog.Debug("creature spawned", "creature", def.ID, "id", c.ID, "x", c.X, "y", c.Y)
	d.bus.Publish(bus.CreatureSpawned, *c)
	return *c
}

// newID draws a uuid from the injected source so seeded runs repeat.
func (d *Director) newID(defID string) string {
	u, err := uuid.NewRandomFromReader(d.rng)
	if err != nil {
		return fmt.Sprintf("%s-%d", defID, len(d.creatures))
	}
	return u.String()
}

// edgePosition picks an edge uniformly, then a tile along it uniformly.
func (d *Director) edgePosition(m *world.Map) world.Coord {
	w, h := max(m.Width, 1), max(m.Height, 1)
	switch d.rng.Intn(4) {
	case 0: // top
		return world.Coord{X: d.rng.Intn(w), Y: 0}
	case 1: // right
		return world.Coord{X: w - 1, Y: d.rng.Intn(h)}
	case 2: // bottom
		return world.Coord{X: d.rng.Intn(w), Y: h - 1}
	default: // left
		return world.Coord{X: 0, Y: d.rng.Intn(h)}
	}
}

// Get returns the instance with id.
func (d *Director) Get(id string) (Creature, bool) {
	if c := d.find(id); c != nil {
		return *c, true
	}
	return Creature{}, false
}

func (d *Director) find(id string) *Creature {
	for _, c := range d.creatures {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Creatures returns copies of every live instance in spawn order.
func (d *Director) Creatures() []Creature {
	out := make([]Creature, len(d.creatures))
	for i, c := range d.creatures {
		out[i] = *c
	}
	return out
}

// Interact resolves how the player engages creature id. A blueprint with a
// known dialogue starts it; otherwise hostile creatures fight and creatures
// with offers trade. Creatures with none of these are rejected.
func (d *Director) Interact(id string, dialogues Dialogues, ledger Ledger) (Interaction, error) {
	const op = "interact with creature"
	c := d.find(id)
	if c == nil {
		return Interaction{}, simerr.NotFound(op, "creature", id)
	}
	def := d.defs[c.DefinitionID]

	var in Interaction
	switch {
	case def.Dialogue != "" && dialogues != nil && dialogues.Has(def.Dialogue):
		if err := dialogues.Start(def.Dialogue, ledger); err != nil {
			return Interaction{}, err
		}
		in = Interaction{Type: InteractDialogue, Creature: *c, Dialogue: def.Dialogue}
	case def.Hostility == content.Hostile:
		in = Interaction{Type: InteractCombat, Creature: *c, Stats: def.CombatStats}
	case len(def.TradeOffers) > 0:
		in = Interaction{Type: InteractTrade, Creature: *c, Offers: def.TradeOffers}
	default:
		return Interaction{}, simerr.Rejected(op, "%s has nothing to say", def.ID)
	}
	d.bus.Publish(bus.CreatureInteraction, in)
	return in, nil
}

// Trade completes offer idx of creature id and sends the creature away.
func (d *Director) Trade(id string, idx int, ledger Ledger) error {
	const op = "trade with creature"
	c := d.find(id)
	if c == nil {
		return simerr.NotFound(op, "creature", id)
	}
	offers := d.defs[c.DefinitionID].TradeOffers
	if idx < 0 || idx >= len(offers) {
		return simerr.Rejected(op, "offer %d out of range", idx)
	}
	offer := offers[idx]
	if !ledger.Spend(offer.Give) {
		return simerr.Rejected(op, "insufficient resources")
	}
	ledger.Apply(offer.Receive)
	d.Remove(id)
	return nil
}

// Remove deletes creature id. It reports whether the creature existed.
func (d *Director) Remove(id string) bool {
	for i, c := range d.creatures {
		if c.ID == id {
			d.creatures = slices.Delete(d.creatures, i, i+1)
			d.bus.Publish(bus.CreatureRemoved, Removed{Creature: *c})
			return true
		}
	}
	return false
}

// Reset removes every creature without notification.
func (d *Director) Reset() {
	d.creatures = nil
}

// SaveState returns every instance for the snapshot.
func (d *Director) SaveState() []Creature {
	return d.Creatures()
}

// LoadState replaces the live creatures. Unknown blueprints are an error.
func (d *Director) LoadState(saved []Creature) error {
	d.creatures = nil
	for _, c := range saved {
		if _, ok := d.defs[c.DefinitionID]; !ok {
			d.creatures = nil
			return simerr.NotFound("load creatures", "creature", c.DefinitionID)
		}
		d.creatures = append(d.creatures, &c)
	}
	return nil
}
