// Package content defines the static catalogs the simulation reads: resources,
// buildings, events, seasons, creatures and dialogue graphs. Catalogs are loaded
// from YAML and never mutated by the simulation.
package content

// ResourceDef declares a ledger entry and its optional bounds.
type ResourceDef struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name"`
	Min  *float64 `yaml:"min,omitempty"`
	Max  *float64 `yaml:"max,omitempty"`
}

// Clamp bounds v to the definition's limits.
func (r ResourceDef) Clamp(v float64) float64 {
	if r.Min != nil && v < *r.Min {
		v = *r.Min
	}
	if r.Max != nil && v > *r.Max {
		v = *r.Max
	}
	return v
}

// WorkerSlots caps how many villagers a building employs.
type WorkerSlots struct {
	Max int `yaml:"max"`
}

// BuildingDef is an immutable building blueprint.
type BuildingDef struct {
	ID             string             `yaml:"id"`
	Name           string             `yaml:"name"`
	Era            Era                `yaml:"era"`
	Cost           map[string]float64 `yaml:"cost"`
	Production     map[string]float64 `yaml:"production"`
	Effects        map[string]float64 `yaml:"effects"`
	PlacementRules []string           `yaml:"placement_rules"`
	Workers        WorkerSlots        `yaml:"workers"`
	BuildTime      int                `yaml:"build_time"`
	UpgradesTo     string             `yaml:"upgrades_to,omitempty"`
	RequiresUnlock bool               `yaml:"requires_unlock,omitempty"`
}

// HasRule reports whether the blueprint carries the placement tag.
func (b BuildingDef) HasRule(rule string) bool {
	for _, r := range b.PlacementRules {
		if r == rule {
			return true
		}
	}
	return false
}

// EventCategory separates the three event catalogs.
type EventCategory string

const (
	CategoryStory    EventCategory = "story"
	CategoryRandom   EventCategory = "random"
	CategorySeasonal EventCategory = "seasonal"
)

// TriggerConditions gate story events. Zero-valued fields are absent.
// Flag may be prefixed with "!" to require the flag be unset.
type TriggerConditions struct {
	Population float64 `yaml:"population,omitempty"`
	Buildings  int     `yaml:"buildings,omitempty"`
	Era        *Era    `yaml:"era,omitempty"`
	Flag       string  `yaml:"flag,omitempty"`
}

// Choice is a selectable option on an event or a dialogue node.
type Choice struct {
	Text           string             `yaml:"text"`
	Requires       map[string]float64 `yaml:"requires,omitempty"`
	Effects        Effects            `yaml:"effects,omitempty"`
	Next           string             `yaml:"next,omitempty"`
	Risk           *float64           `yaml:"risk,omitempty"`
	SuccessEffects Effects            `yaml:"success_effects,omitempty"`
	FailureEffects Effects            `yaml:"failure_effects,omitempty"`
	FailureMessage string             `yaml:"failure_message,omitempty"`
	SkillCheck     *SkillCheck        `yaml:"skill_check,omitempty"`
	Success        string             `yaml:"success,omitempty"`
	Failure        string             `yaml:"failure,omitempty"`
}

// EventDef is a story, random or seasonal event.
type EventDef struct {
	ID          string             `yaml:"id"`
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Category    EventCategory      `yaml:"category"`
	Trigger     *TriggerConditions `yaml:"trigger_conditions,omitempty"`
	Probability float64            `yaml:"probability,omitempty"`
	Eras        []Era              `yaml:"era,omitempty"`
	Seasons     []string           `yaml:"seasons,omitempty"`
	Season      string             `yaml:"season,omitempty"` // seasonal category
	Automatic   bool               `yaml:"automatic,omitempty"`
	Effects     Effects            `yaml:"effects,omitempty"`
	Choices     []Choice           `yaml:"choices,omitempty"`
}

// HasChoices reports whether the event waits for a player decision.
func (e EventDef) HasChoices() bool {
	return len(e.Choices) > 0
}

// SeasonDef is one entry of the cyclic season list.
type SeasonDef struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	DurationTurns int                `yaml:"duration_turns,omitempty"`
	Effects       map[string]float64 `yaml:"effects"`
}

// SpawnConditions restrict when a creature may appear. An empty season list
// allows every season.
type SpawnConditions struct {
	MinEra  Era      `yaml:"min_era"`
	Seasons []string `yaml:"seasons,omitempty"`
}

// CombatStats for hostile encounters.
type CombatStats struct {
	Health  float64 `yaml:"health"`
	Attack  float64 `yaml:"attack"`
	Defense float64 `yaml:"defense"`
}

// TradeOffer exchanges village resources for creature goods.
type TradeOffer struct {
	Give    map[string]float64 `yaml:"give"`
	Receive map[string]float64 `yaml:"receive"`
}

// Hostility values.
const (
	Hostile  = "hostile"
	Neutral  = "neutral"
	Friendly = "friendly"
)

// CreatureDef is a creature blueprint.
type CreatureDef struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	SpawnConditions SpawnConditions `yaml:"spawn_conditions"`
	CombatStats     *CombatStats    `yaml:"combat_stats,omitempty"`
	Dialogue        string          `yaml:"dialogue,omitempty"` // dialogue graph id
	Hostility       string          `yaml:"hostility"`
	TradeOffers     []TradeOffer    `yaml:"trade_offers,omitempty"`
}

// DialogueNode is one step of a conversation.
type DialogueNode struct {
	ID       string   `yaml:"-"`
	Speaker  string   `yaml:"speaker"`
	Portrait string   `yaml:"portrait,omitempty"`
	Text     string   `yaml:"text"`
	Effects  Effects  `yaml:"effects,omitempty"`
	Choices  []Choice `yaml:"choices,omitempty"`
	Action   string   `yaml:"action,omitempty"`
	Enemy    string   `yaml:"enemy,omitempty"`
	OnWin    string   `yaml:"on_win,omitempty"`
	OnLose   string   `yaml:"on_lose,omitempty"`
	End      bool     `yaml:"end,omitempty"`
}

// ActionStartCombat hands the encounter to the combat resolver.
const ActionStartCombat = "start_combat"

// DialogueGraph is a branching conversation keyed by node id.
type DialogueGraph struct {
	ID        string                   `yaml:"id"`
	StartNode string                   `yaml:"start_node"`
	Nodes     map[string]*DialogueNode `yaml:"nodes"`
}

// Node resolves a node id within the graph.
func (g *DialogueGraph) Node(id string) (*DialogueNode, bool) {
	if g == nil || id == "" {
		return nil, false
	}
	n, ok := g.Nodes[id]
	return n, ok && n != nil
}

// DanglingRefs lists every next/success/failure/on_win/on_lose/start target that
// does not resolve inside the graph.
func (g *DialogueGraph) DanglingRefs() []string {
	var out []string
	check := func(from, id string) {
		if id == "" {
			return
		}
		if _, ok := g.Node(id); !ok {
			out = append(out, from+"->"+id)
		}
	}
	if _, ok := g.Node(g.StartNode); !ok {
		out = append(out, "start->"+g.StartNode)
	}
	for nid, n := range g.Nodes {
		if n == nil {
			continue
		}
		check(nid, n.OnWin)
		check(nid, n.OnLose)
		for _, c := range n.Choices {
			check(nid, c.Next)
			check(nid, c.Success)
			check(nid, c.Failure)
		}
	}
	return out
}
