package creatures

import (
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/simerr"
)

// CombatResult reports the outcome of a fight.
type CombatResult struct {
	Won      bool     `json:"won"`
	Enemy    string   `json:"enemy"`
	Creature Creature `json:"creature"`
	// Attack is the enemy's attack, used by the caller to size losses.
	Attack float64 `json:"attack"`
}

// Duel rolls a fight between the village's strength and def. The village wins
// with probability strength / (strength + attack + defense). A blueprint
// without combat stats is always beaten.
func (d *Director) Duel(def content.CreatureDef, strength float64) CombatResult {
	res := CombatResult{Enemy: def.ID}
	if def.CombatStats == nil {
		res.Won = true
		return res
	}
	res.Attack = def.CombatStats.Attack
	enemy := def.CombatStats.Attack + def.CombatStats.Defense
	if strength <= 0 {
		return res
	}
	res.Won = d.rng.Float64() < strength/(strength+enemy)
	return res
}

// Fight duels creature id. Win or lose, the creature leaves the map.
func (d *Director) Fight(id string, strength float64) (CombatResult, error) {
	const op = "fight creature"
	c := d.find(id)
	if c == nil {
		return CombatResult{}, simerr.NotFound(op, "creature", id)
	}
	def := d.defs[c.DefinitionID]
	if def.Hostility != content.Hostile {
		return CombatResult{}, simerr.Rejected(op, "%s is not hostile", def.ID)
	}
	res := d.Duel(def, strength)
	if res.Won {
		c.Health = 0
	}
	res.Creature = *c
	d.Remove(id)
	return res, nil
}
