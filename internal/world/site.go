// Village site selection: finds a good spot for the starting layout and
// names the village.
package world

import (
	"math/rand"
	"sort"
)

// Site is a candidate village center.
type Site struct {
	Coord Coord
	Score float64
}

// siteRadius is how far around a tile the scorer looks.
const siteRadius = 3

// FindVillageSite returns the best-scoring buildable tile. Ties are broken by
// row-major order so the result is stable for a given map. ok is false when
// the map has no grass or path at all.
func FindVillageSite(m *Map) (Site, bool) {
	var candidates []Site
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := Coord{X: x, Y: y}
			if s := siteScore(m, c); s > 0 {
				candidates = append(candidates, Site{Coord: c, Score: s})
			}
		}
	}
	if len(candidates) == 0 {
		return Site{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates[0], true
}

// siteScore prefers open grass with water, forest and mountains within reach,
// and penalises sitting on the map edge.
func siteScore(m *Map, c Coord) float64 {
	tile := m.Get(c)
	if tile == nil {
		return 0
	}
	score := 0.0
	switch tile.Terrain {
	case TerrainGrass:
		score += 3.0
	case TerrainPath:
		score += 2.5
	default:
		return 0
	}

	seen := make(map[Terrain]bool)
	open := 0
	for dy := -siteRadius; dy <= siteRadius; dy++ {
		for dx := -siteRadius; dx <= siteRadius; dx++ {
			n := Coord{X: c.X + dx, Y: c.Y + dy}
			nt := m.Get(n)
			if nt == nil {
				continue
			}
			seen[nt.Terrain] = true
			if distance(c, n) <= 1 && (nt.Terrain == TerrainGrass || nt.Terrain == TerrainPath) {
				open++
			}
		}
	}
	if seen[TerrainWater] {
		score += 1.5
	}
	if seen[TerrainForest] {
		score += 1.0
	}
	if seen[TerrainMountain] {
		score += 0.5
	}
	score += float64(open) * 0.2

	if c.X == 0 || c.Y == 0 || c.X == m.Width-1 || c.Y == m.Height-1 {
		score -= 2.0
	}
	return score
}

// VillageName produces a procedural name by combining syllables.
func VillageName(rng *rand.Rand) string {
	prefixes := []string{
		"Frost", "Storm", "Iron", "Ash", "Raven", "Wolf", "Elk", "Salt",
		"Stone", "Birch", "Grey", "Whale", "Bear", "Thorn", "Ice",
	}
	suffixes := []string{
		"heim", "vik", "fjord", "stad", "by", "holm", "nes", "dal",
		"havn", "berg", "strand", "vang",
	}
	return prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
}
