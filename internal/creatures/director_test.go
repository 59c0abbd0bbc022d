package creatures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/dialogue"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

func testDefs() []content.CreatureDef {
	return []content.CreatureDef{
		{ID: "troll", SpawnConditions: content.SpawnConditions{Seasons: []string{"winter"}}, Hostility: content.Hostile,
			CombatStats: &content.CombatStats{Health: 120, Attack: 12, Defense: 6}, Dialogue: "troll_talk"},
		{ID: "draugr", SpawnConditions: content.SpawnConditions{MinEra: content.EraSettlement}, Hostility: content.Hostile,
			CombatStats: &content.CombatStats{Health: 80, Attack: 10, Defense: 8}},
		{ID: "trader", Hostility: content.Neutral, TradeOffers: []content.TradeOffer{
			{Give: map[string]float64{"furs": 3}, Receive: map[string]float64{"gold": 5}},
		}},
		{ID: "ghost", Hostility: content.Neutral},
	}
}

type fakeDialogues struct {
	known   map[string]bool
	started []string
}

func (f *fakeDialogues) Has(id string) bool { return f.known[id] }

func (f *fakeDialogues) Start(id string, _ dialogue.Ledger) error {
	f.started = append(f.started, id)
	return nil
}

func ids(defs []content.CreatureDef) []string {
	var out []string
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

func newLedger(start map[string]float64) *resources.Ledger {
	l := resources.New(nil, nil)
	l.Reset(start)
	return l
}

func TestEligibleByEraAndSeason(t *testing.T) {
	d := New(testDefs(), 1, entropy.NewSequence(0), nil)
	assert.Equal(t, []string{"trader", "ghost"}, ids(d.Eligible("summer", content.EraVillage)))
	assert.Equal(t, []string{"troll", "trader", "ghost"}, ids(d.Eligible("winter", content.EraVillage)))
	assert.Equal(t, []string{"troll", "draugr", "trader", "ghost"}, ids(d.Eligible("winter", content.EraTown)))
}

func TestCheckSpawnsRollsOnce(t *testing.T) {
	m := world.NewMap(8, 6)

	d := New(testDefs(), 0.2, entropy.NewSequence(0.5), nil)
	_, ok := d.CheckSpawns("winter", content.EraVillage, m)
	assert.False(t, ok)
	assert.Empty(t, d.Creatures())

	b := bus.New()
	rec := bus.Record(b)
	// roll 0.1 < 0.2; pick 0.1*3 -> troll; edge 0.1*4 -> top; x 0.1*8 -> 0
	d = New(testDefs(), 0.2, entropy.NewSequence(0.1), b)
	c, ok := d.CheckSpawns("winter", content.EraVillage, m)
	require.True(t, ok)
	assert.Equal(t, "troll", c.DefinitionID)
	assert.Equal(t, 120.0, c.Health)
	assert.Equal(t, 0, c.Y)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, rec.Count(bus.CreatureSpawned))
}

func TestSpawnPositionsOnEdges(t *testing.T) {
	m := world.NewMap(10, 7)
	d := New(testDefs(), 1, entropy.NewSeeded(99), nil)
	ghost, _ := d.Definition("ghost")
	for i := 0; i < 200; i++ {
		c := d.Spawn(ghost, m)
		require.True(t, m.InBounds(world.Coord{X: c.X, Y: c.Y}))
		onEdge := c.X == 0 || c.Y == 0 || c.X == m.Width-1 || c.Y == m.Height-1
		assert.True(t, onEdge, "(%d,%d)", c.X, c.Y)
		assert.Equal(t, float64(DefaultHealth), c.Health)
	}
}

func TestSeededIDsRepeat(t *testing.T) {
	m := world.NewMap(4, 4)
	a := New(testDefs(), 1, entropy.NewSeeded(5), nil)
	b := New(testDefs(), 1, entropy.NewSeeded(5), nil)
	ghost, _ := a.Definition("ghost")
	assert.Equal(t, a.Spawn(ghost, m), b.Spawn(ghost, m))
}

func TestInteractionPrecedence(t *testing.T) {
	b := bus.New()
	rec := bus.Record(b)
	d := New(testDefs(), 1, entropy.NewSeeded(1), b)
	m := world.NewMap(4, 4)
	l := newLedger(nil)
	dlg := &fakeDialogues{known: map[string]bool{"troll_talk": true}}

	troll, _ := d.Definition("troll")
	trader, _ := d.Definition("trader")
	ghost, _ := d.Definition("ghost")
	tc, xc, gc := d.Spawn(troll, m), d.Spawn(trader, m), d.Spawn(ghost, m)

	in, err := d.Interact(tc.ID, dlg, l)
	require.NoError(t, err)
	assert.Equal(t, InteractDialogue, in.Type)
	assert.Equal(t, []string{"troll_talk"}, dlg.started)

	// Without the dialogue loaded the troll fights.
	in, err = d.Interact(tc.ID, &fakeDialogues{}, l)
	require.NoError(t, err)
	assert.Equal(t, InteractCombat, in.Type)
	assert.Equal(t, 12.0, in.Stats.Attack)

	in, err = d.Interact(xc.ID, dlg, l)
	require.NoError(t, err)
	assert.Equal(t, InteractTrade, in.Type)
	assert.Len(t, in.Offers, 1)

	_, err = d.Interact(gc.ID, dlg, l)
	assert.ErrorIs(t, err, simerr.ErrRejected)
	_, err = d.Interact("nobody", dlg, l)
	assert.ErrorIs(t, err, simerr.ErrNotFound)

	assert.Equal(t, 3, rec.Count(bus.CreatureInteraction))
}

func TestTrade(t *testing.T) {
	b := bus.New()
	rec := bus.Record(b)
	d := New(testDefs(), 1, entropy.NewSeeded(1), b)
	trader, _ := d.Definition("trader")
	c := d.Spawn(trader, world.NewMap(4, 4))

	l := newLedger(map[string]float64{"furs": 2})
	assert.ErrorIs(t, d.Trade(c.ID, 0, l), simerr.ErrRejected)
	assert.ErrorIs(t, d.Trade(c.ID, 1, l), simerr.ErrRejected)
	assert.Equal(t, 2.0, l.Get("furs"))

	l.Add("furs", 2)
	require.NoError(t, d.Trade(c.ID, 0, l))
	assert.Equal(t, 1.0, l.Get("furs"))
	assert.Equal(t, 5.0, l.Get("gold"))
	assert.Empty(t, d.Creatures())
	assert.Equal(t, 1, rec.Count(bus.CreatureRemoved))
}

func TestFight(t *testing.T) {
	d := New(testDefs(), 1, entropy.NewSequence(0.5), nil)
	m := world.NewMap(4, 4)
	troll, _ := d.Definition("troll")
	trader, _ := d.Definition("trader")

	// 18 / (18 + 18) = 0.5; a draw of 0.5 is not below it.
	c := d.Spawn(troll, m)
	res, err := d.Fight(c.ID, 18)
	require.NoError(t, err)
	assert.False(t, res.Won)
	assert.Equal(t, 12.0, res.Attack)
	assert.Empty(t, d.Creatures())

	c = d.Spawn(troll, m)
	res, err = d.Fight(c.ID, 30)
	require.NoError(t, err)
	assert.True(t, res.Won)
	assert.Zero(t, res.Creature.Health)

	x := d.Spawn(trader, m)
	_, err = d.Fight(x.ID, 30)
	assert.ErrorIs(t, err, simerr.ErrRejected)
	_, err = d.Fight("nobody", 30)
	assert.ErrorIs(t, err, simerr.ErrNotFound)
}

func TestStateRoundTrip(t *testing.T) {
	d := New(testDefs(), 1, entropy.NewSeeded(3), nil)
	m := world.NewMap(6, 6)
	for _, id := range []string{"troll", "trader"} {
		def, _ := d.Definition(id)
		d.Spawn(def, m)
	}
	saved := d.SaveState()

	other := New(testDefs(), 1, entropy.NewSeeded(3), nil)
	require.NoError(t, other.LoadState(saved))
	assert.Equal(t, saved, other.SaveState())

	assert.ErrorIs(t, other.LoadState([]Creature{{ID: "x", DefinitionID: "kraken"}}), simerr.ErrNotFound)
	assert.Empty(t, other.Creatures())

	assert.True(t, d.Remove(saved[0].ID))
	assert.False(t, d.Remove(saved[0].ID))
}
