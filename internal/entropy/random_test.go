package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededIsDeterministic(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
		assert.Equal(t, a.Intn(10), b.Intn(10))
	}
}

func TestSequenceCyclesAndScales(t *testing.T) {
	s := NewSequence(0.1, 0.99, 0.5)
	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 3, s.Intn(4)) // 0.99*4
	assert.Equal(t, 2, s.Intn(4)) // 0.5*4
	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 4, s.Draws())
	assert.Equal(t, 0, s.Intn(0))
}

func TestNewSeedIsNonNegative(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, NewSeed(), int64(0))
	}
}
