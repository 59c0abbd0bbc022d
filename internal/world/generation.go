// Terrain generation using layered simplex noise.
// Elevation drives water, grass and mountains; a second layer scatters forest.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds map generation parameters.
type GenConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Seed        int64   `yaml:"-"`
	SeaLevel    float64 `yaml:"sea_level"`    // elevation below which tiles are water
	MountainLvl float64 `yaml:"mountain_lvl"` // elevation above which tiles are mountain
	ForestLvl   float64 `yaml:"forest_lvl"`   // forest noise threshold on grass
	FjordWidth  int     `yaml:"fjord_width"`  // columns of guaranteed water on the west edge
}

// DefaultGenConfig returns the standard village map.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:       24,
		Height:      24,
		SeaLevel:    0.28,
		MountainLvl: 0.78,
		ForestLvl:   0.62,
		FjordWidth:  2,
	}
}

// SmallTestConfig returns a tiny map for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:       10,
		Height:      10,
		Seed:        42,
		SeaLevel:    0.30,
		MountainLvl: 0.80,
		ForestLvl:   0.65,
		FjordWidth:  1,
	}
}

// Generate creates a complete map with terrain and a path through the middle.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	elevNoise := opensimplex.NewNormalized(seed)
	forestNoise := opensimplex.NewNormalized(seed + 1)

	m := NewMap(cfg.Width, cfg.Height)
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			fx, fy := float64(x), float64(y)
			elev := octaveNoise(elevNoise, fx, fy, 4, 0.09, 0.5)

			// Slope up away from the fjord so water gathers in the west.
			elev = elev*0.7 + (fx/float64(max(cfg.Width-1, 1)))*0.3

			tile := m.Get(Coord{X: x, Y: y})
			tile.Elevation = elev
			tile.Terrain = deriveTerrain(elev, octaveNoise(forestNoise, fx, fy, 2, 0.15, 0.5), cfg)
			if x < cfg.FjordWidth {
				tile.Terrain = TerrainWater
			}
		}
	}

	carvePath(m, cfg.FjordWidth)
	return m
}

func deriveTerrain(elev, forest float64, cfg GenConfig) Terrain {
	if elev < cfg.SeaLevel {
		return TerrainWater
	}
	if elev > cfg.MountainLvl {
		return TerrainMountain
	}
	if forest > cfg.ForestLvl {
		return TerrainForest
	}
	return TerrainGrass
}

// carvePath lays a path along the middle row from the shore inland, stopping
// at the first mountain.
func carvePath(m *Map, from int) {
	y := m.Height / 2
	for x := from; x < m.Width; x++ {
		tile := m.Get(Coord{X: x, Y: y})
		if tile == nil || tile.Terrain == TerrainMountain {
			return
		}
		if tile.Terrain != TerrainWater {
			tile.Terrain = TerrainPath
		}
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, t := range m.tiles {
		counts[t.Terrain]++
	}
	return counts
}

// distance is the Chebyshev distance between two tiles.
func distance(a, b Coord) int {
	return max(int(math.Abs(float64(a.X-b.X))), int(math.Abs(float64(a.Y-b.Y))))
}
