// Package config assembles run configuration: game balance from defaults and
// an optional YAML file, runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/world"
)

// StartingBuilding places a free building relative to the village site.
type StartingBuilding struct {
	Building string `yaml:"building"`
	DX       int    `yaml:"dx"`
	DY       int    `yaml:"dy"`
}

// EraThreshold is what the village needs to enter an era.
type EraThreshold struct {
	Era        content.Era `yaml:"era"`
	Population float64     `yaml:"population"`
	Buildings  int         `yaml:"buildings"`
}

// Growth controls population growth into free housing.
type Growth struct {
	PerTurn   float64 `yaml:"per_turn"` // 0 disables growth
	MinFood   float64 `yaml:"min_food"`
	MinMorale float64 `yaml:"min_morale"`
}

// Balance holds the gameplay numbers.
type Balance struct {
	StartingResources       map[string]float64 `yaml:"starting_resources"`
	FoodPerVillager         float64            `yaml:"food_per_villager"`
	StarvationMoralePenalty float64            `yaml:"starvation_morale_penalty"`
	GracePeriodTurns        int                `yaml:"grace_period_turns"`
	EventCheckChance        float64            `yaml:"event_check_chance"`
	CreatureSpawnChance     float64            `yaml:"creature_spawn_chance"`
	SeasonDuration          int                `yaml:"season_duration"`
	CombatLossMorale        float64            `yaml:"combat_loss_morale"`
	Growth                  Growth             `yaml:"growth"`
	Map                     world.GenConfig    `yaml:"map"`
	StartingLayout          []StartingBuilding `yaml:"starting_layout"`
	EraThresholds           []EraThreshold     `yaml:"era_thresholds"`
}

// Runtime holds process settings read from the environment.
type Runtime struct {
	Seed             int64         `env:"VILLAGESIM_SEED"`
	DBPath           string        `env:"VILLAGESIM_DB_PATH"           envDefault:"data/village.db"`
	Port             int           `env:"VILLAGESIM_PORT"              envDefault:"8080"`
	AdminKey         string        `env:"VILLAGESIM_ADMIN_KEY"`
	ContentDir       string        `env:"VILLAGESIM_CONTENT_DIR"`
	BalanceFile      string        `env:"VILLAGESIM_BALANCE_FILE"`
	SaveSlot         string        `env:"VILLAGESIM_SAVE_SLOT"         envDefault:"autosave"`
	AutoplayTurns    int           `env:"VILLAGESIM_AUTOPLAY_TURNS"`
	AutoplayInterval time.Duration `env:"VILLAGESIM_AUTOPLAY_INTERVAL" envDefault:"0s"`
	LogLevel         string        `env:"VILLAGESIM_LOG_LEVEL"         envDefault:"info"`
	CORSOrigins      []string      `env:"VILLAGESIM_CORS_ORIGINS"      envSeparator:","`
}

// Config is the complete configuration for a run.
type Config struct {
	Balance Balance
	Runtime Runtime
}

// DefaultBalance returns the standard game balance.
func DefaultBalance() Balance {
	return Balance{
		StartingResources: map[string]float64{
			"food":       40,
			"wood":       30,
			"stone":      10,
			"morale":     70,
			"population": 5,
		},
		FoodPerVillager:         1,
		StarvationMoralePenalty: 15,
		GracePeriodTurns:        3,
		EventCheckChance:        0.3,
		CreatureSpawnChance:     0.1,
		SeasonDuration:          10,
		CombatLossMorale:        10,
		Growth: Growth{
			PerTurn:   1,
			MinFood:   20,
			MinMorale: 40,
		},
		Map: world.DefaultGenConfig(),
		StartingLayout: []StartingBuilding{
			{Building: "villager_hut", DX: 0, DY: 0},
			{Building: "villager_hut", DX: 1, DY: 0},
			{Building: "farm", DX: 0, DY: 1},
		},
		EraThresholds: []EraThreshold{
			{Era: content.EraSettlement, Population: 10, Buildings: 6},
			{Era: content.EraTown, Population: 25, Buildings: 14},
			{Era: content.EraKingdom, Population: 60, Buildings: 30},
		},
	}
}

// Load reads the environment, then layers the balance file (if any) over the
// default balance.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom is Load with an explicit environment, for tests.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg.Runtime, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Balance = DefaultBalance()
	if cfg.Runtime.BalanceFile != "" {
		data, err := os.ReadFile(cfg.Runtime.BalanceFile)
		if err != nil {
			return Config{}, fmt.Errorf("read balance file: %w", err)
		}
		if err := cfg.Balance.Merge(data); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Balance.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge decodes YAML over b. Keys absent from data keep their current value.
func (b *Balance) Merge(data []byte) error {
	if err := yaml.Unmarshal(data, b); err != nil {
		return fmt.Errorf("parse balance: %w", err)
	}
	return nil
}

// Validate checks the balance for values the simulation cannot run with.
func (b Balance) Validate() error {
	switch {
	case b.FoodPerVillager <= 0:
		return fmt.Errorf("balance: food_per_villager must be positive, got %v", b.FoodPerVillager)
	case b.SeasonDuration <= 0:
		return fmt.Errorf("balance: season_duration must be positive, got %d", b.SeasonDuration)
	case b.GracePeriodTurns < 0:
		return fmt.Errorf("balance: grace_period_turns must not be negative, got %d", b.GracePeriodTurns)
	case b.EventCheckChance < 0 || b.EventCheckChance > 1:
		return fmt.Errorf("balance: event_check_chance %v outside [0,1]", b.EventCheckChance)
	case b.CreatureSpawnChance < 0 || b.CreatureSpawnChance > 1:
		return fmt.Errorf("balance: creature_spawn_chance %v outside [0,1]", b.CreatureSpawnChance)
	case b.Map.Width <= 0 || b.Map.Height <= 0:
		return fmt.Errorf("balance: map must have positive size, got %dx%d", b.Map.Width, b.Map.Height)
	}
	for i := 1; i < len(b.EraThresholds); i++ {
		if b.EraThresholds[i].Era <= b.EraThresholds[i-1].Era {
			return fmt.Errorf("balance: era_thresholds must be in era order")
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (r Runtime) SlogLevel() slog.Level {
	switch strings.ToLower(r.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
