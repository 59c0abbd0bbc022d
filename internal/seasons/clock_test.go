package seasons

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
)

func testSeasons() []content.SeasonDef {
	return []content.SeasonDef{
		{ID: "summer", Effects: map[string]float64{"food_production_modifier": 1.5}},
		{ID: "winter", DurationTurns: 1, Effects: map[string]float64{"food_production_modifier": 0.5}},
	}
}

func TestClockAdvancesAndWraps(t *testing.T) {
	b := bus.New()
	rec := bus.Record(b)
	c, err := New(testSeasons(), 2, b)
	require.NoError(t, err)

	_, changed := c.ProcessTurn()
	assert.False(t, changed)
	assert.Equal(t, 0.5, c.Progress())

	s, changed := c.ProcessTurn()
	assert.True(t, changed)
	assert.Equal(t, "winter", s.ID)

	// Winter overrides the duration with a single turn.
	s, changed = c.ProcessTurn()
	assert.True(t, changed)
	assert.Equal(t, "summer", s.ID)

	require.Equal(t, 2, rec.Count(bus.SeasonChanged))
	last, _ := rec.Last(bus.SeasonChanged)
	assert.Equal(t, "winter", last.Payload.(Changed).From.ID)
}

func TestModifiersAreCopies(t *testing.T) {
	c, err := New(testSeasons(), 2, nil)
	require.NoError(t, err)
	m := c.Modifiers()
	m["food_production_modifier"] = 100
	assert.Equal(t, 1.5, c.Modifiers()["food_production_modifier"])
}

func TestSaveLoad(t *testing.T) {
	c, err := New(testSeasons(), 3, nil)
	require.NoError(t, err)
	c.ProcessTurn()

	saved := c.Save()
	assert.Equal(t, State{CurrentSeasonIndex: 0, TurnsInCurrentSeason: 1}, saved)

	c.Reset()
	require.NoError(t, c.Load(saved))
	assert.Equal(t, saved, c.Save())

	assert.Error(t, c.Load(State{CurrentSeasonIndex: 5}))
	assert.Error(t, c.Load(State{TurnsInCurrentSeason: -1}))
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil, 3, nil)
	assert.Error(t, err)
	_, err = New(testSeasons(), 0, nil)
	assert.Error(t, err)
}
