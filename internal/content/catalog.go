package content

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data
var embedded embed.FS

// Catalog is the full set of static tables for a run.
type Catalog struct {
	Resources []ResourceDef
	Buildings []BuildingDef
	Creatures []CreatureDef
	Seasons   []SeasonDef
	Story     []EventDef
	Random    []EventDef
	Seasonal  []EventDef
	Dialogues map[string]*DialogueGraph
}

// Default loads the catalog embedded in the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("embedded content: %w", err)
	}
	return Load(sub)
}

// Load reads a catalog laid out as:
//
//	resources.yaml buildings.yaml creatures.yaml seasons.yaml
//	events/story.yaml events/random.yaml events/seasonal.yaml
//	dialogues/*.yaml
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{Dialogues: make(map[string]*DialogueGraph)}

	var res struct {
		Resources []ResourceDef `yaml:"resources"`
	}
	var bld struct {
		Buildings []BuildingDef `yaml:"buildings"`
	}
	var crt struct {
		Creatures []CreatureDef `yaml:"creatures"`
	}
	var sea struct {
		Seasons []SeasonDef `yaml:"seasons"`
	}
	files := []struct {
		name string
		into any
	}{
		{"resources.yaml", &res},
		{"buildings.yaml", &bld},
		{"creatures.yaml", &crt},
		{"seasons.yaml", &sea},
	}
	for _, f := range files {
		if err := decodeFile(fsys, f.name, f.into); err != nil {
			return nil, err
		}
	}
	c.Resources, c.Buildings, c.Creatures, c.Seasons = res.Resources, bld.Buildings, crt.Creatures, sea.Seasons

	for _, cat := range []EventCategory{CategoryStory, CategoryRandom, CategorySeasonal} {
		var ev struct {
			Events []EventDef `yaml:"events"`
		}
		if err := decodeFile(fsys, path.Join("events", string(cat)+".yaml"), &ev); err != nil {
			return nil, err
		}
		for i := range ev.Events {
			ev.Events[i].Category = cat
		}
		switch cat {
		case CategoryStory:
			c.Story = ev.Events
		case CategoryRandom:
			c.Random = ev.Events
		case CategorySeasonal:
			c.Seasonal = ev.Events
		}
	}

	names, err := fs.Glob(fsys, "dialogues/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list dialogues: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		g := &DialogueGraph{}
		if err := decodeFile(fsys, name, g); err != nil {
			return nil, err
		}
		c.AddDialogue(g)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("content loaded",
		"resources", len(c.Resources),
		"buildings", len(c.Buildings),
		"creatures", len(c.Creatures),
		"seasons", len(c.Seasons),
		"story", len(c.Story),
		"random", len(c.Random),
		"seasonal", len(c.Seasonal),
		"dialogues", len(c.Dialogues),
	)
	return c, nil
}

// AddDialogue registers a graph, filling node ids from their keys. Dangling
// references are logged; they end the conversation at runtime.
func (c *Catalog) AddDialogue(g *DialogueGraph) {
	if c.Dialogues == nil {
		c.Dialogues = make(map[string]*DialogueGraph)
	}
	for id, n := range g.Nodes {
		if n != nil {
			n.ID = id
		}
	}
	for _, ref := range g.DanglingRefs() {
		slog.Warn("dialogue reference does not resolve", "dialogue", g.ID, "ref", ref)
	}
	c.Dialogues[g.ID] = g
}

// Validate checks structural rules the simulation relies on.
func (c *Catalog) Validate() error {
	if len(c.Seasons) == 0 {
		return fmt.Errorf("validate content: no seasons defined")
	}
	seen := make(map[string]bool)
	for _, b := range c.Buildings {
		if b.ID == "" {
			return fmt.Errorf("validate content: building without id")
		}
		if seen[b.ID] {
			return fmt.Errorf("validate content: duplicate building %q", b.ID)
		}
		seen[b.ID] = true
	}
	for _, b := range c.Buildings {
		if b.UpgradesTo != "" && !seen[b.UpgradesTo] {
			return fmt.Errorf("validate content: building %q upgrades to unknown %q", b.ID, b.UpgradesTo)
		}
	}
	for _, e := range c.Random {
		if e.Probability < 0 {
			return fmt.Errorf("validate content: event %q has negative probability", e.ID)
		}
	}
	return nil
}

// Building looks up a blueprint by id.
func (c *Catalog) Building(id string) (BuildingDef, bool) {
	for _, b := range c.Buildings {
		if b.ID == id {
			return b, true
		}
	}
	return BuildingDef{}, false
}

func decodeFile(fsys fs.FS, name string, into any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
