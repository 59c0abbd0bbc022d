// Package buildings tracks placed building instances: placement validation
// against terrain and occupancy, construction, workers, upgrades and the
// per-turn production pass.
package buildings

import (
	"log/slog"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

// Placement rule tags.
const (
	RuleAdjacentToWater    = "adjacent_to_water"
	RuleNotAdjacentToWater = "not_adjacent_to_water"
	ruleBuildOnPrefix      = "can_build_on_"
	RuleBuildOnWater       = ruleBuildOnPrefix + "water"
)

// Building is a placed instance. The blueprint is referenced by id only.
type Building struct {
	DefinitionID          string `json:"id"`
	X                     int    `json:"x"`
	Y                     int    `json:"y"`
	Level                 int    `json:"level"`
	Workers               int    `json:"workers"`
	ConstructionTurnsLeft int    `json:"constructionTurnsLeft"`
}

// Pos returns the building's tile.
func (b Building) Pos() world.Coord {
	return world.Coord{X: b.X, Y: b.Y}
}

// Complete reports whether construction has finished.
func (b Building) Complete() bool {
	return b.ConstructionTurnsLeft <= 0
}

// Ledger is the slice of the resource ledger the registry needs.
type Ledger interface {
	HasEnough(cost map[string]float64) bool
	Spend(cost map[string]float64) bool
	Apply(deltas map[string]float64)
}

// Notification payloads.
type (
	Placed struct {
		Building Building
		Name     string
	}
	PlacementStarted struct {
		Definition content.BuildingDef
	}
	InsufficientResources struct {
		DefinitionID string
		Cost         map[string]float64
	}
	WorkersChanged struct {
		Building Building
	}
	Upgraded struct {
		From     string
		Building Building
	}
)

// Registry owns every placed building.
type Registry struct {
	defs      map[string]content.BuildingDef
	order     []string
	buildings []*Building
	byPos     map[world.Coord]*Building
	placing   string
	bus       *bus.Bus
}

// New creates an empty registry over the given blueprints.
func New(defs []content.BuildingDef, b *bus.Bus) *Registry {
	r := &Registry{
		defs:  make(map[string]content.BuildingDef, len(defs)),
		byPos: make(map[world.Coord]*Building),
		bus:   b,
	}
	for _, d := range defs {
		r.defs[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r
}

// Definition looks up a blueprint.
func (r *Registry) Definition(id string) (content.BuildingDef, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// Available lists blueprints unlocked by era, in catalog order. Blueprints
// marked requires_unlock also need their id in unlocked.
func (r *Registry) Available(era content.Era, unlocked func(id string) bool) []content.BuildingDef {
	var out []content.BuildingDef
	for _, id := range r.order {
		d := r.defs[id]
		if !d.Era.Unlocks(era) {
			continue
		}
		if d.RequiresUnlock && (unlocked == nil || !unlocked(d.ID)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// EnterPlacementMode selects a blueprint for placement.
func (r *Registry) EnterPlacementMode(id string) error {
	d, ok := r.defs[id]
	if !ok {
		return simerr.NotFound("enter placement mode", "building", id)
	}
	r.placing = id
	r.bus.Publish(bus.BuildingPlacementStarted, PlacementStarted{Definition: d})
	return nil
}

// ExitPlacementMode clears the selection.
func (r *Registry) ExitPlacementMode() {
	r.placing = ""
	r.bus.Publish(bus.BuildingPlacementCancelled, nil)
}

// Placing returns the blueprint selected for placement, if any.
func (r *Registry) Placing() (string, bool) {
	return r.placing, r.placing != ""
}

// ValidatePlacement checks bounds, terrain, water adjacency and occupancy.
func (r *Registry) ValidatePlacement(m *world.Map, c world.Coord, id string) error {
	const op = "validate placement"
	d, ok := r.defs[id]
	if !ok {
		return simerr.NotFound(op, "building", id)
	}
	tile := m.Get(c)
	if tile == nil {
		return simerr.Rejected(op, "(%d,%d) is outside the map", c.X, c.Y)
	}
	if !terrainAllowed(d, tile.Terrain) {
		return simerr.Rejected(op, "%s cannot be built on %s", id, tile.Terrain)
	}
	if d.HasRule(RuleAdjacentToWater) && !m.AdjacentTo(c, world.TerrainWater) {
		return simerr.Rejected(op, "%s must be next to water", id)
	}
	if d.HasRule(RuleNotAdjacentToWater) && m.AdjacentTo(c, world.TerrainWater) {
		return simerr.Rejected(op, "%s must not be next to water", id)
	}
	if _, taken := r.byPos[c]; taken {
		return simerr.Rejected(op, "(%d,%d) is occupied", c.X, c.Y)
	}
	return nil
}

// IsValidPlacement is ValidatePlacement as a predicate.
func (r *Registry) IsValidPlacement(m *world.Map, c world.Coord, id string) bool {
	return r.ValidatePlacement(m, c, id) == nil
}

// terrainAllowed: water builders go only on water; everything else needs grass,
// path, or a matching can_build_on_<terrain> tag.
func terrainAllowed(d content.BuildingDef, t world.Terrain) bool {
	if d.HasRule(RuleBuildOnWater) {
		return t == world.TerrainWater
	}
	if t == world.TerrainGrass || t == world.TerrainPath {
		return true
	}
	return d.HasRule(ruleBuildOnPrefix + t.Name())
}

// Place validates, charges the blueprint cost and starts construction.
func (r *Registry) Place(m *world.Map, c world.Coord, id string, ledger Ledger) (Building, error) {
	const op = "place building"
	if err := r.ValidatePlacement(m, c, id); err != nil {
		return Building{}, err
	}
	d := r.defs[id]
	if !ledger.Spend(d.Cost) {
		r.bus.Publish(bus.BuildingInsufficientResources, InsufficientResources{DefinitionID: id, Cost: d.Cost})
		return Building{}, simerr.Rejected(op, "not enough resources for %s", id)
	}
	b := r.add(Building{
		DefinitionID:          id,
		X:                     c.X,
		Y:                     c.Y,
		Level:                 1,
		ConstructionTurnsLeft: max(d.BuildTime, 0),
	})
	if r.placing == id {
		r.placing = ""
	}
	slog.Debug("building placed", "building", id, "x", c.X, "y", c.Y, "build_time", d.BuildTime)
	r.bus.Publish(bus.BuildingPlaced, Placed{Building: *b, Name: d.Name})
	return *b, nil
}

// PlaceStarting adds a free, already-built instance for the scripted opening
// layout. Only bounds and occupancy are checked.
func (r *Registry) PlaceStarting(m *world.Map, c world.Coord, id string) (Building, error) {
	const op = "place starting building"
	if _, ok := r.defs[id]; !ok {
		return Building{}, simerr.NotFound(op, "building", id)
	}
	if !m.InBounds(c) {
		return Building{}, simerr.Rejected(op, "(%d,%d) is outside the map", c.X, c.Y)
	}
	if _, taken := r.byPos[c]; taken {
		return Building{}, simerr.Rejected(op, "(%d,%d) is occupied", c.X, c.Y)
	}
	b := r.add(Building{DefinitionID: id, X: c.X, Y: c.Y, Level: 1})
	return *b, nil
}

func (r *Registry) add(b Building) *Building {
	p := &b
	r.buildings = append(r.buildings, p)
	r.byPos[b.Pos()] = p
	return p
}

// At returns the building on c.
func (r *Registry) At(c world.Coord) (Building, bool) {
	b, ok := r.byPos[c]
	if !ok {
		return Building{}, false
	}
	return *b, true
}

// Buildings returns copies of every instance in placement order.
func (r *Registry) Buildings() []Building {
	out := make([]Building, len(r.buildings))
	for i, b := range r.buildings {
		out[i] = *b
	}
	return out
}

// Count returns the number of placed buildings, finished or not.
func (r *Registry) Count() int {
	return len(r.buildings)
}

// CountOf returns how many instances of a blueprint exist.
func (r *Registry) CountOf(id string) int {
	n := 0
	for _, b := range r.buildings {
		if b.DefinitionID == id {
			n++
		}
	}
	return n
}

// Reset removes every instance.
func (r *Registry) Reset() {
	r.buildings = nil
	clear(r.byPos)
	r.placing = ""
}
