package buildings

import (
	"fmt"

	"github.com/talgya/fjordheim/internal/simerr"
)

// SaveState returns every instance for the snapshot.
func (r *Registry) SaveState() []Building {
	return r.Buildings()
}

// LoadState replaces the registry contents. Every instance must name a known
// blueprint and occupy a distinct tile.
func (r *Registry) LoadState(saved []Building) error {
	const op = "load buildings"
	r.Reset()
	for _, b := range saved {
		d, ok := r.defs[b.DefinitionID]
		if !ok {
			r.Reset()
			return simerr.NotFound(op, "building", b.DefinitionID)
		}
		if _, taken := r.byPos[b.Pos()]; taken {
			r.Reset()
			return fmt.Errorf("%s: two buildings at (%d,%d)", op, b.X, b.Y)
		}
		if b.Workers < 0 || b.Workers > d.Workers.Max {
			r.Reset()
			return fmt.Errorf("%s: %s has %d workers, max %d", op, b.DefinitionID, b.Workers, d.Workers.Max)
		}
		r.add(b)
	}
	return nil
}
