// Population dynamics: feeding, starvation, growth into free housing and era
// progression.
package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/resources"
)

// consumeFood feeds the village. When the store runs short, enough villagers
// die to cover the deficit, morale takes the starvation penalty and food is
// left at zero. Workers beyond the surviving population are released.
func (s *Simulation) consumeFood(turn int) (consumed float64, deaths int) {
	rate := s.Balance.FoodPerVillager
	pop := s.Ledger.Get(resources.Population)
	consumed = pop * rate
	remaining := s.Ledger.Get(resources.Food) - consumed
	if remaining >= 0 {
		s.Ledger.Remove(resources.Food, consumed)
		return consumed, 0
	}

	deficit := -remaining
	dead := math.Min(math.Ceil(deficit/rate), pop)
	s.Ledger.Apply(map[string]float64{
		resources.Population: -dead,
		resources.Morale:     -s.Balance.StarvationMoralePenalty,
	})
	s.Ledger.Set(resources.Food, 0)
	released := s.Buildings.ReleaseWorkers(int(s.Ledger.Get(resources.Population)))

	deaths = int(dead)
	s.record(turn, "starvation", "%d villagers starved", deaths)
	slog.Warn("starvation", "turn", turn, "deaths", deaths, "deficit", deficit, "workers_released", released)
	s.Bus.Publish(bus.EventStarvation, Starvation{Deaths: deaths, Deficit: deficit})
	return consumed, deaths
}

// grow adds villagers into free housing while the village is fed and content.
func (s *Simulation) grow(turn int) int {
	g := s.Balance.Growth
	pop := s.Ledger.Get(resources.Population)
	if g.PerTurn <= 0 || pop <= 0 {
		return 0
	}
	if s.Ledger.Get(resources.Food) < g.MinFood || s.Ledger.Get(resources.Morale) < g.MinMorale {
		return 0
	}
	room := s.Buildings.TotalEffect("housing") - pop
	n := math.Floor(math.Min(g.PerTurn, room))
	if n <= 0 {
		return 0
	}
	s.Ledger.Add(resources.Population, n)
	s.record(turn, "growth", "%d newcomers settled", int(n))
	return int(n)
}

// advanceEra moves to the next era once its population and building
// thresholds are met. At most one era is gained per turn.
func (s *Simulation) advanceEra(turn int) (content.Era, bool) {
	cur := s.Ledger.Era()
	next, ok := cur.Next()
	if !ok {
		return cur, false
	}
	for _, t := range s.Balance.EraThresholds {
		if t.Era != next {
			continue
		}
		if s.Ledger.Get(resources.Population) < t.Population || s.Buildings.Count() < t.Buildings {
			return cur, false
		}
		s.Ledger.SetEra(next)
		s.record(turn, "era", "the village has grown into a %s", next)
		slog.Info("era advanced", "turn", turn, "from", cur, "to", next)
		s.Bus.Publish(bus.EraAdvanced, EraAdvanced{From: cur, To: next})
		return next, true
	}
	return cur, false
}
