package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
)

func era(e content.Era) *content.Era { return &e }
func risk(r float64) *float64 { return &r }

func newLedger(start map[string]float64) *resources.Ledger {
	l := resources.New(nil, nil)
	l.Reset(start)
	return l
}

func TestStoryEventTriggersOnce(t *testing.T) {
	c := &content.Catalog{Story: []content.EventDef{
		{ID: "X", Trigger: &content.TriggerConditions{Population: 5}},
	}}
	e := New(c, entropy.NewSequence(0.99), 0, nil)
	view := WorldView{Population: 10}

	fired := 0
	for turn := 0; turn < 500; turn++ {
		for _, ev := range e.CheckEvents(view) {
			if ev.ID == "X" {
				fired++
			}
		}
	}
	assert.Equal(t, 1, fired)
	assert.True(t, e.HasFlag("X"))
}

func TestStoryConditionsAreConjunctive(t *testing.T) {
	c := &content.Catalog{Story: []content.EventDef{
		{ID: "untriggered"},
		{ID: "needs_all", Trigger: &content.TriggerConditions{
			Population: 5, Buildings: 3, Era: era(content.EraSettlement), Flag: "!rationing",
		}},
		{ID: "after_feast", Trigger: &content.TriggerConditions{Flag: "feast"}},
	}}
	e := New(c, entropy.NewSequence(0), 0, nil)

	_, ok := e.CheckStory(WorldView{Population: 5, Buildings: 3, Era: content.EraVillage})
	assert.False(t, ok, "era must match exactly")
	_, ok = e.CheckStory(WorldView{Population: 5, Buildings: 2, Era: content.EraSettlement})
	assert.False(t, ok)

	e.SetFlag("rationing")
	_, ok = e.CheckStory(WorldView{Population: 5, Buildings: 3, Era: content.EraSettlement})
	assert.False(t, ok, "negated flag present")

	e.SetFlag("feast")
	ev, ok := e.CheckStory(WorldView{})
	require.True(t, ok)
	assert.Equal(t, "after_feast", ev.ID)
}

func TestOneStoryEventPerCheck(t *testing.T) {
	c := &content.Catalog{Story: []content.EventDef{
		{ID: "a", Trigger: &content.TriggerConditions{Population: 1}},
		{ID: "b", Trigger: &content.TriggerConditions{Population: 1}},
	}}
	e := New(c, entropy.NewSequence(0.5), 0, nil)
	evs := e.CheckEvents(WorldView{Population: 3})
	require.Len(t, evs, 1)
	assert.Equal(t, "a", evs[0].ID)
	evs = e.CheckEvents(WorldView{Population: 3})
	require.Len(t, evs, 1)
	assert.Equal(t, "b", evs[0].ID)
}

func TestWeightedRandomSelection(t *testing.T) {
	c := &content.Catalog{Random: []content.EventDef{
		{ID: "A", Probability: 1},
		{ID: "B", Probability: 3},
	}}
	e := New(c, entropy.NewSeeded(1234), 1, nil)

	const trials = 20000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		ev, ok := e.SelectRandom("spring", content.EraVillage)
		require.True(t, ok)
		counts[ev.ID]++
	}
	assert.InDelta(t, 0.25, float64(counts["A"])/trials, 0.02)
	assert.InDelta(t, 0.75, float64(counts["B"])/trials, 0.02)
}

func TestRandomSelectionBoundaries(t *testing.T) {
	c := &content.Catalog{Random: []content.EventDef{
		{ID: "A", Probability: 1},
		{ID: "B", Probability: 3},
		{ID: "winter_only", Probability: 100, Seasons: []string{"winter"}},
		{ID: "town_only", Probability: 100, Eras: []content.Era{content.EraTown}},
	}}
	// u = 0.25*4 = 1 lands exactly on A's boundary.
	e := New(c, entropy.NewSequence(0.25, 0.2501, 0.9999), 1, nil)

	ev, _ := e.SelectRandom("spring", content.EraVillage)
	assert.Equal(t, "A", ev.ID)
	ev, _ = e.SelectRandom("spring", content.EraVillage)
	assert.Equal(t, "B", ev.ID)
	ev, _ = e.SelectRandom("spring", content.EraVillage)
	assert.Equal(t, "B", ev.ID)

	empty := New(&content.Catalog{Random: []content.EventDef{{ID: "w", Probability: 1, Seasons: []string{"winter"}}}}, entropy.NewSequence(0), 1, nil)
	_, ok := empty.SelectRandom("summer", content.EraVillage)
	assert.False(t, ok)
}

func TestCheckChanceGatesRandom(t *testing.T) {
	c := &content.Catalog{Random: []content.EventDef{{ID: "A", Probability: 1}}}
	e := New(c, entropy.NewSequence(0.5), 0.4, nil)
	assert.Empty(t, e.CheckEvents(WorldView{}))

	e = New(c, entropy.NewSequence(0.3), 0.4, nil)
	assert.Len(t, e.CheckEvents(WorldView{}), 1)
}

func TestSeasonalAutomaticApplies(t *testing.T) {
	b := bus.New()
	rec := bus.Record(b)
	c := &content.Catalog{Seasonal: []content.EventDef{
		{ID: "winter_arrives", Season: "winter", Automatic: true, Effects: content.Effects{Deltas: map[string]float64{"morale": -5}}},
		{ID: "midsummer", Season: "summer", Choices: []content.Choice{{Text: "rites"}}},
	}}
	e := New(c, entropy.NewSequence(0), 0, b)
	l := newLedger(map[string]float64{"morale": 50})

	_, pending := e.TriggerSeasonal("winter", 4, l)
	assert.False(t, pending)
	assert.Equal(t, 45.0, l.Get("morale"))

	ev, pending := e.TriggerSeasonal("summer", 8, l)
	assert.True(t, pending)
	assert.Equal(t, "midsummer", ev.ID)

	_, pending = e.TriggerSeasonal("autumn", 9, l)
	assert.False(t, pending)

	assert.Equal(t, 2, rec.Count(bus.EventSeasonal))
	assert.Len(t, e.History(), 2)
}

func TestResolveRiskChoice(t *testing.T) {
	ev := content.EventDef{ID: "wolves", Choices: []content.Choice{{
		Text:           "fight",
		Risk:           risk(0.4),
		SuccessEffects: content.Effects{Deltas: map[string]float64{"morale": 5}},
		FailureEffects: content.Effects{Deltas: map[string]float64{"population": -1}, Flag: "wolf_scar"},
		FailureMessage: "lost a hunter",
	}}}

	e := New(&content.Catalog{}, entropy.NewSequence(0.4, 0.39), 0, nil)
	l := newLedger(map[string]float64{"morale": 10, "population": 5})

	out, err := e.ResolveChoice(ev, 0, l)
	require.NoError(t, err)
	assert.True(t, out.Success, "draw equal to risk succeeds")
	assert.Equal(t, 15.0, l.Get("morale"))

	out, err = e.ResolveChoice(ev, 0, l)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "lost a hunter", out.Message)
	assert.Equal(t, 4.0, l.Get("population"))
	assert.True(t, e.HasFlag("wolf_scar"))
}

func TestResolveRejectsWithoutMutation(t *testing.T) {
	ev := content.EventDef{ID: "feast", Choices: []content.Choice{{
		Requires: map[string]float64{"food": 10},
		Effects:  content.Effects{Deltas: map[string]float64{"food": -10, "morale": 15}},
	}}}
	e := New(&content.Catalog{}, entropy.NewSequence(0), 0, nil)
	l := newLedger(map[string]float64{"food": 9, "morale": 10})

	_, err := e.ResolveChoice(ev, 0, l)
	assert.ErrorIs(t, err, simerr.ErrRejected)
	_, err = e.ResolveChoice(ev, 3, l)
	assert.ErrorIs(t, err, simerr.ErrRejected)
	assert.Equal(t, 9.0, l.Get("food"))
	assert.Equal(t, 10.0, l.Get("morale"))
}

func TestResolveSkillCheck(t *testing.T) {
	ev := content.EventDef{ID: "smith", Choices: []content.Choice{{
		SkillCheck:     &content.SkillCheck{Skill: "strength", Threshold: 6},
		SuccessEffects: content.Effects{Deltas: map[string]float64{"iron": 6}},
		FailureEffects: content.Effects{Deltas: map[string]float64{"morale": -5}},
	}}}
	e := New(&content.Catalog{}, entropy.NewSequence(0.5), 0, nil)

	// 5 + floor(10/5) = 7 >= 6
	l := newLedger(map[string]float64{"population": 10, "morale": 20})
	out, err := e.ResolveChoice(ev, 0, l)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 6.0, l.Get("iron"))

	// 5 + 0 = 5 < 6
	l = newLedger(map[string]float64{"population": 4, "morale": 20})
	out, err = e.ResolveChoice(ev, 0, l)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 15.0, l.Get("morale"))
}

func TestEffectsFlagAndLore(t *testing.T) {
	b := bus.New()
	rec := bus.Record(b)
	e := New(&content.Catalog{}, entropy.NewSequence(0), 0, b)
	l := newLedger(nil)

	e.ApplyEffects(content.Effects{Deltas: map[string]float64{"food": 3}, Flag: "met_troll", Lore: "saga"}, l)
	assert.Equal(t, 3.0, l.Get("food"))
	assert.True(t, e.HasFlag("met_troll"))
	last, ok := rec.Last(bus.LoreUnlocked)
	require.True(t, ok)
	assert.Equal(t, content.LoreUnlocked{LoreID: "saga"}, last.Payload)
	assert.Zero(t, l.Get("saga"), "lore is not a resource")
}

func TestStateRoundTrip(t *testing.T) {
	c := &content.Catalog{Story: []content.EventDef{{ID: "X", Trigger: &content.TriggerConditions{Population: 1}}}}
	e := New(c, entropy.NewSequence(0), 0, nil)
	e.SetClock(func() time.Time { return time.UnixMilli(1700000000000) })

	ev, ok := e.CheckStory(WorldView{Population: 1})
	require.True(t, ok)
	e.Trigger(ev, 7)
	e.SetFlag("b")

	saved := e.SaveState()
	assert.Equal(t, []string{"X", "b"}, saved.Flags)
	assert.Equal(t, []HistoryEntry{{ID: "X", Turn: 7, Timestamp: 1700000000000}}, saved.History)

	other := New(c, entropy.NewSequence(0), 0, nil)
	other.LoadState(saved)
	assert.Equal(t, saved, other.SaveState())
	_, ok = other.CheckStory(WorldView{Population: 1})
	assert.False(t, ok, "flag restored, no retrigger")
}

func TestFlags(t *testing.T) {
	f := NewFlags("a")
	assert.True(t, f.Add("b"))
	assert.False(t, f.Add("a"))
	assert.False(t, f.Add(""))
	assert.True(t, f.Holds("a"))
	assert.True(t, f.Holds("!c"))
	assert.False(t, f.Holds("!a"))
	assert.True(t, f.Holds(""))
	assert.Equal(t, []string{"a", "b"}, f.List())
	assert.Equal(t, 2, f.Len())
}
