package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/dice"
)

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := dice.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := dice.NewSeededSource(42)
	b := dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Intn(1000), b.Intn(1000))
	}
}

func TestSeededSource_PanicsOnNegative(t *testing.T) {
	assert.Panics(t, func() { dice.NewSeededSource(1).Intn(-3) })
}

func TestRoller_ChanceBounds(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(7), zap.NewNop())
	for i := 0; i < 200; i++ {
		assert.False(t, r.Chance("zero", 0))
		assert.True(t, r.Chance("full", 100))
	}
}

func TestRoller_NilLoggerIsSafe(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(7), nil)
	assert.NotPanics(t, func() { r.Chance("x", 50) })
}

func TestRoller_Range_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		lo := rapid.IntRange(-50, 50).Draw(rt, "lo")
		hi := rapid.IntRange(-50, 50).Draw(rt, "hi")
		r := dice.NewLoggedRoller(dice.NewSeededSource(seed), zap.NewNop())
		v := r.Range("prop", lo, hi)
		minV, maxV := lo, hi
		if maxV < minV {
			minV, maxV = maxV, minV
		}
		assert.GreaterOrEqual(rt, v, minV)
		assert.LessOrEqual(rt, v, maxV)
	})
}

func TestRoller_Float_InUnitInterval(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(3), nil)
	for i := 0; i < 500; i++ {
		f := r.Float()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}
