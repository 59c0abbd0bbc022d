package content

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Special effect keys. Every other key is a resource delta.
const (
	EffectEventFlag    = "event_flag"
	EffectLoreUnlocked = "lore_unlocked"
)

// Effects is the decoded form of an effect map. In YAML it is written flat:
//
//	effects: {food: -5, morale: 10, event_flag: met_troll}
type Effects struct {
	Deltas map[string]float64
	Flag   string
	Lore   string
}

// Empty reports whether applying e would do nothing.
func (e Effects) Empty() bool {
	return len(e.Deltas) == 0 && e.Flag == "" && e.Lore == ""
}

// Keys returns the resource ids touched by e, sorted.
func (e Effects) Keys() []string {
	return slices.Sorted(maps.Keys(e.Deltas))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Effects) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: effects must be a mapping", node.Line)
	}
	*e = Effects{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case EffectEventFlag:
			e.Flag = val.Value
		case EffectLoreUnlocked:
			e.Lore = val.Value
		default:
			f, err := strconv.ParseFloat(val.Value, 64)
			if err != nil {
				return fmt.Errorf("line %d: effect %q: %w", val.Line, key, err)
			}
			if e.Deltas == nil {
				e.Deltas = make(map[string]float64)
			}
			e.Deltas[key] = f
		}
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e Effects) MarshalYAML() (any, error) {
	out := make(map[string]any, len(e.Deltas)+2)
	for k, v := range e.Deltas {
		out[k] = v
	}
	if e.Flag != "" {
		out[EffectEventFlag] = e.Flag
	}
	if e.Lore != "" {
		out[EffectLoreUnlocked] = e.Lore
	}
	return out, nil
}

// SkillCheck is a single skill→threshold requirement. Only the first entry of
// the YAML mapping is used.
type SkillCheck struct {
	Skill     string
	Threshold float64
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SkillCheck) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) < 2 {
		return fmt.Errorf("line %d: skill_check must be a non-empty mapping", node.Line)
	}
	f, err := strconv.ParseFloat(node.Content[1].Value, 64)
	if err != nil {
		return fmt.Errorf("line %d: skill_check threshold: %w", node.Line, err)
	}
	*s = SkillCheck{Skill: node.Content[0].Value, Threshold: f}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s SkillCheck) MarshalYAML() (any, error) {
	return map[string]float64{s.Skill: s.Threshold}, nil
}

// PlayerLevel derives the skill bonus from population: one level per five villagers.
func PlayerLevel(population float64) float64 {
	if population <= 0 {
		return 0
	}
	return float64(int(population / 5))
}

// Roll performs the check: uniform(0,10) + player level against the threshold.
func (s SkillCheck) Roll(rng interface{ Float64() float64 }, population float64) bool {
	roll := rng.Float64()*10 + PlayerLevel(population)
	return roll >= s.Threshold
}

// LoreUnlocked is the lore:unlocked payload published by any system applying
// a lore_unlocked effect.
type LoreUnlocked struct {
	LoreID string
}
