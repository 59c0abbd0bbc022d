package buildings

import (
	"fmt"
	"math"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

// ModifierKey returns the season modifier key for a resource.
func ModifierKey(resource string) string {
	return resource + "_production_modifier"
}

// ProcessTurn advances construction and collects production. Buildings still
// under construction tick down and produce nothing. Output is summed across
// all buildings first and applied to the ledger once, floored per resource.
// The returned map holds the unfloored totals.
func (r *Registry) ProcessTurn(ledger Ledger, modifiers map[string]float64) map[string]float64 {
	production := make(map[string]float64)
	for _, b := range r.buildings {
		if b.ConstructionTurnsLeft > 0 {
			b.ConstructionTurnsLeft--
			continue
		}
		d, ok := r.defs[b.DefinitionID]
		if !ok {
			continue
		}
		for res, amount := range d.Production {
			mod, ok := modifiers[ModifierKey(res)]
			if !ok {
				mod = 1
			}
			production[res] += amount * mod * float64(max(b.Workers, 1))
		}
	}

	deltas := make(map[string]float64, len(production))
	for res, amount := range production {
		if f := math.Floor(amount); f != 0 {
			deltas[res] = f
		}
	}
	ledger.Apply(deltas)
	return production
}

// TotalEffect sums a passive effect across completed buildings.
func (r *Registry) TotalEffect(name string) float64 {
	total := 0.0
	for _, b := range r.buildings {
		if !b.Complete() {
			continue
		}
		total += r.defs[b.DefinitionID].Effects[name]
	}
	return total
}

// TotalWorkers returns how many villagers are employed.
func (r *Registry) TotalWorkers() int {
	n := 0
	for _, b := range r.buildings {
		n += b.Workers
	}
	return n
}

// AssignWorker moves one idle villager into the building at c.
func (r *Registry) AssignWorker(c world.Coord, idle int) (Building, error) {
	const op = "assign worker"
	b, ok := r.byPos[c]
	if !ok {
		return Building{}, simerr.NotFound(op, "building at", fmt.Sprintf("%d,%d", c.X, c.Y))
	}
	d := r.defs[b.DefinitionID]
	if b.Workers >= d.Workers.Max {
		return Building{}, simerr.Rejected(op, "%s has no free worker slots", b.DefinitionID)
	}
	if idle <= 0 {
		return Building{}, simerr.Rejected(op, "no idle villagers")
	}
	b.Workers++
	r.bus.Publish(bus.BuildingWorkersChanged, WorkersChanged{Building: *b})
	return *b, nil
}

// RemoveWorker sends one worker at c back to idle.
func (r *Registry) RemoveWorker(c world.Coord) (Building, error) {
	const op = "remove worker"
	b, ok := r.byPos[c]
	if !ok {
		return Building{}, simerr.NotFound(op, "building at", fmt.Sprintf("%d,%d", c.X, c.Y))
	}
	if b.Workers == 0 {
		return Building{}, simerr.Rejected(op, "%s has no workers", b.DefinitionID)
	}
	b.Workers--
	r.bus.Publish(bus.BuildingWorkersChanged, WorkersChanged{Building: *b})
	return *b, nil
}

// ReleaseWorkers removes workers until no more than limit remain employed,
// taking from the most recently placed buildings first. It returns how many
// were released.
func (r *Registry) ReleaseWorkers(limit int) int {
	released := 0
	for i := len(r.buildings) - 1; i >= 0 && r.TotalWorkers() > limit; i-- {
		b := r.buildings[i]
		if b.Workers == 0 {
			continue
		}
		for b.Workers > 0 && r.TotalWorkers() > limit {
			b.Workers--
			released++
		}
		r.bus.Publish(bus.BuildingWorkersChanged, WorkersChanged{Building: *b})
	}
	return released
}

// Upgrade replaces the building at c with its upgrades_to blueprint, charging
// that blueprint's cost and restarting construction.
func (r *Registry) Upgrade(c world.Coord, era content.Era, ledger Ledger) (Building, error) {
	const op = "upgrade building"
	b, ok := r.byPos[c]
	if !ok {
		return Building{}, simerr.NotFound(op, "building at", fmt.Sprintf("%d,%d", c.X, c.Y))
	}
	if !b.Complete() {
		return Building{}, simerr.Rejected(op, "%s is still under construction", b.DefinitionID)
	}
	from := r.defs[b.DefinitionID]
	if from.UpgradesTo == "" {
		return Building{}, simerr.Rejected(op, "%s has no upgrade", from.ID)
	}
	to, ok := r.defs[from.UpgradesTo]
	if !ok {
		return Building{}, simerr.NotFound(op, "building", from.UpgradesTo)
	}
	if !to.Era.Unlocks(era) {
		return Building{}, simerr.Rejected(op, "%s requires the %s era", to.ID, to.Era)
	}
	if !ledger.Spend(to.Cost) {
		r.bus.Publish(bus.BuildingInsufficientResources, InsufficientResources{DefinitionID: to.ID, Cost: to.Cost})
		return Building{}, simerr.Rejected(op, "not enough resources for %s", to.ID)
	}
	b.DefinitionID = to.ID
	b.Level++
	b.ConstructionTurnsLeft = max(to.BuildTime, 0)
	b.Workers = min(b.Workers, to.Workers.Max)
	r.bus.Publish(bus.BuildingUpgraded, Upgraded{From: from.ID, Building: *b})
	return *b, nil
}
