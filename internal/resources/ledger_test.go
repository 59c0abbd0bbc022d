package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
)

func ptr(v float64) *float64 { return &v }

func testDefs() []content.ResourceDef {
	return []content.ResourceDef{
		{ID: Food, Min: ptr(0)},
		{ID: Wood, Min: ptr(0)},
		{ID: Morale, Min: ptr(0), Max: ptr(100)},
		{ID: Population, Min: ptr(0)},
	}
}

func TestBoundsHoldAfterEveryMutation(t *testing.T) {
	l := New(testDefs(), nil)

	l.Set(Morale, 150)
	assert.Equal(t, 100.0, l.Get(Morale))
	l.Add(Morale, 10)
	assert.Equal(t, 100.0, l.Get(Morale))
	l.Remove(Morale, 500)
	assert.Equal(t, 0.0, l.Get(Morale))
	l.Apply(map[string]float64{Morale: -3, Food: -7})
	assert.Equal(t, 0.0, l.Get(Morale))
	assert.Equal(t, 0.0, l.Get(Food))

	// Undefined ids are unbounded.
	l.Add("reputation", -4)
	assert.Equal(t, -4.0, l.Get("reputation"))
	assert.False(t, l.Defined("reputation"))
}

func TestSpendIsAllOrNothing(t *testing.T) {
	l := New(testDefs(), nil)
	l.Reset(map[string]float64{Food: 10, Wood: 3})

	ok := l.Spend(map[string]float64{Food: 5, Wood: 4})
	assert.False(t, ok)
	assert.Equal(t, 10.0, l.Get(Food))
	assert.Equal(t, 3.0, l.Get(Wood))

	ok = l.Spend(map[string]float64{Food: 5, Wood: 3})
	assert.True(t, ok)
	assert.Equal(t, 5.0, l.Get(Food))
	assert.Equal(t, 0.0, l.Get(Wood))
}

func TestMutationsPublishSnapshot(t *testing.T) {
	b := bus.New()
	rec := bus.Record(b)
	l := New(testDefs(), b)

	l.Reset(map[string]float64{Food: 10})
	l.Spend(map[string]float64{Food: 4})
	l.Spend(map[string]float64{Food: 400})

	assert.Equal(t, 2, rec.Count(bus.ResourcesUpdated))
	last, ok := rec.Last(bus.ResourcesUpdated)
	require.True(t, ok)
	snap := last.Payload.(map[string]float64)
	assert.Equal(t, 6.0, snap[Food])

	// The payload is a copy.
	snap[Food] = 99
	assert.Equal(t, 6.0, l.Get(Food))
}

func TestTurnAndEra(t *testing.T) {
	l := New(testDefs(), nil)
	l.Reset(nil)
	assert.Equal(t, 1, l.Turn())
	assert.Equal(t, 2, l.NextTurn())
	assert.Equal(t, content.EraVillage, l.Era())

	l.SetEra(content.EraTown)
	assert.Equal(t, content.EraTown, l.Era())

	saved := l.Snapshot()
	l.Reset(nil)
	l.Restore(saved)
	assert.Equal(t, 2, l.Turn())
	assert.Equal(t, content.EraTown, l.Era())
}
