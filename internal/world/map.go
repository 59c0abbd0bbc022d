// Package world provides the square tile grid the village is built on.
// Coordinates are (x, y) with the origin at the top-left corner.
package world

import (
	"fmt"
	"strings"
)

// Coord is a tile position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Neighbors4 returns the orthogonal neighbors, including out-of-bounds ones.
func (c Coord) Neighbors4() [4]Coord {
	return [4]Coord{
		{X: c.X + 1, Y: c.Y},
		{X: c.X - 1, Y: c.Y},
		{X: c.X, Y: c.Y + 1},
		{X: c.X, Y: c.Y - 1},
	}
}

// Terrain types for tiles.
type Terrain uint8

const (
	TerrainGrass Terrain = iota
	TerrainPath
	TerrainForest
	TerrainMountain
	TerrainWater
)

var terrainNames = [...]string{"grass", "path", "forest", "mountain", "water"}

// Name returns the lowercase terrain name used in placement tags.
func (t Terrain) Name() string {
	if int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return "unknown"
}

func (t Terrain) String() string { return t.Name() }

// ParseTerrain maps a name back to a Terrain.
func ParseTerrain(name string) (Terrain, bool) {
	for i, n := range terrainNames {
		if n == name {
			return Terrain(i), true
		}
	}
	return 0, false
}

// glyph is the single-character form used by FromRows and Rows.
func (t Terrain) glyph() byte {
	return terrainNames[t][0]
}

// Tile is one cell of the map.
type Tile struct {
	Terrain   Terrain `json:"terrain"`
	Elevation float64 `json:"elevation"`
}

// Map holds the tile grid. Tiles are stored row-major.
type Map struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	tiles  []Tile
}

// NewMap creates a grass-filled map.
func NewMap(width, height int) *Map {
	return &Map{
		Width:  width,
		Height: height,
		tiles:  make([]Tile, width*height),
	}
}

// FromRows builds a map from rows of terrain glyphs:
// g=grass p=path f=forest m=mountain w=water.
func FromRows(rows ...string) (*Map, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("from rows: empty map")
	}
	m := NewMap(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != m.Width {
			return nil, fmt.Errorf("from rows: row %d has width %d, want %d", y, len(row), m.Width)
		}
		for x := 0; x < len(row); x++ {
			t, ok := terrainForGlyph(row[x])
			if !ok {
				return nil, fmt.Errorf("from rows: unknown terrain %q at (%d,%d)", row[x], x, y)
			}
			m.tiles[y*m.Width+x].Terrain = t
		}
	}
	return m, nil
}

func terrainForGlyph(b byte) (Terrain, bool) {
	for i := range terrainNames {
		if Terrain(i).glyph() == b {
			return Terrain(i), true
		}
	}
	return 0, false
}

// InBounds returns true if the coordinate lies on the map.
func (m *Map) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < m.Width && c.Y < m.Height
}

// Get returns the tile at c, or nil if out of bounds.
func (m *Map) Get(c Coord) *Tile {
	if !m.InBounds(c) {
		return nil
	}
	return &m.tiles[c.Y*m.Width+c.X]
}

// SetTerrain changes the terrain at c. Out-of-bounds writes are ignored.
func (m *Map) SetTerrain(c Coord, t Terrain) {
	if tile := m.Get(c); tile != nil {
		tile.Terrain = t
	}
}

// AdjacentTo reports whether any in-bounds orthogonal neighbor of c has terrain t.
func (m *Map) AdjacentTo(c Coord, t Terrain) bool {
	for _, n := range c.Neighbors4() {
		if tile := m.Get(n); tile != nil && tile.Terrain == t {
			return true
		}
	}
	return false
}

// Rows renders the map in the FromRows glyph format.
func (m *Map) Rows() []string {
	out := make([]string, m.Height)
	var sb strings.Builder
	for y := 0; y < m.Height; y++ {
		sb.Reset()
		for x := 0; x < m.Width; x++ {
			sb.WriteByte(m.tiles[y*m.Width+x].Terrain.glyph())
		}
		out[y] = sb.String()
	}
	return out
}

// TileCount returns the total number of tiles in the map.
func (m *Map) TileCount() int {
	return len(m.tiles)
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%dx%d)", m.Width, m.Height)
}
