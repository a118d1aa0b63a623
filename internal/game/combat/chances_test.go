package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

func roller(seed uint64) *dice.Roller {
	return dice.NewLoggedRoller(dice.NewSeededSource(seed), zap.NewNop())
}

func TestChancePercent_Table(t *testing.T) {
	tests := []struct{ value, level, want int }{
		{0, 5, 0},
		{-10, 5, 0},
		{1, 1, 5},     // ratio 1/15
		{4, 1, 10},    // ratio 0.27
		{8, 1, 20},    // ratio 0.53
		{15, 1, 30},   // ratio 1.0
		{35, 5, 30},   // ratio 1.0 at level 5
		{100, 1, 95},  // ratio 6.7 capped
		{1000, 30, 95},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, combat.ChancePercent(tc.value, tc.level), "value=%d level=%d", tc.value, tc.level)
	}
}

func TestChancePercent_Property_MonotoneAndCapped(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		level := rapid.IntRange(1, 30).Draw(rt, "level")
		a := rapid.IntRange(0, 2000).Draw(rt, "a")
		b := rapid.IntRange(a, 2000).Draw(rt, "b")
		pa, pb := combat.ChancePercent(a, level), combat.ChancePercent(b, level)
		assert.LessOrEqual(rt, pa, pb)
		assert.LessOrEqual(rt, pb, combat.MaxChancePercent)
	})
}

// Level-5 attacker with 10..15 damage against a level-5 defender without
// defense and no critical stats lands in [10, 15] and never crits.
func TestComputeChances_DamageRangeWithoutDefense(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		att := fighter("att", 100)
		def := fighter("def", 100)
		ch := combat.ComputeChances(att, def, 5, roller(seed))
		assert.False(rt, ch.Critical)
		assert.GreaterOrEqual(rt, ch.Damage, 10)
		assert.LessOrEqual(rt, ch.Damage, 15)
		assert.Equal(rt, ch.BaseDamage, ch.Damage)
		assert.Nil(rt, ch.Companion)
	})
}

func TestComputeChances_DamageFloorsAtOne(t *testing.T) {
	att := fighter("att", 100)
	def := combat.NewCombatant("def", combat.KindHuman, combat.CharacterSnapshot{
		Level: 5, MaxHealth: 100, Defense: 1000, MinDamage: 1, MaxDamage: 2,
	}, nil)
	for seed := uint64(0); seed < 50; seed++ {
		ch := combat.ComputeChances(att, def, 5, roller(seed))
		assert.Equal(t, 1, ch.Damage)
		assert.GreaterOrEqual(t, ch.CounterDamage, 1)
	}
}

func TestComputeChances_CriticalMultiplies(t *testing.T) {
	att := combat.NewCombatant("att", combat.KindHuman, combat.CharacterSnapshot{
		Level: 1, MaxHealth: 10, MinDamage: 10, MaxDamage: 10, Critical: 10000, CriticalPower: 50,
	}, nil)
	def := fighter("def", 100)
	crits := 0
	for seed := uint64(0); seed < 40; seed++ {
		ch := combat.ComputeChances(att, def, 1, roller(seed))
		if ch.Critical {
			crits++
			assert.Equal(t, 20, ch.Damage, "10 * (1 + 0.5 + 0.5)")
		} else {
			assert.Equal(t, 10, ch.Damage)
		}
	}
	assert.Positive(t, crits)
}

func TestComputeChances_CompanionRolledInSameCall(t *testing.T) {
	att := combat.NewCombatant("att", combat.KindHuman, combat.CharacterSnapshot{
		Level: 3, MaxHealth: 50, MinDamage: 3, MaxDamage: 5,
		Companion: &combat.CompanionSnapshot{Name: "hawk", MaxHealth: 20, MinDamage: 2, MaxDamage: 4},
	}, nil)
	ch := combat.ComputeChances(att, fighter("def", 50), 3, roller(9))
	require.NotNil(t, ch.Companion)
	assert.GreaterOrEqual(t, ch.Companion.Damage, 2)
	assert.LessOrEqual(t, ch.Companion.Damage, 4)
}

func TestChancesFor_CachedPerPairPerTurn(t *testing.T) {
	att := fighter("att", 100)
	def := fighter("def", 100)
	r := roller(11)

	_, ok := att.CachedChances("def", 1)
	assert.False(t, ok)

	first := combat.ChancesFor(att, def, 1, r)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, combat.ChancesFor(att, def, 1, r), "same turn reuses the roll")
	}
	cached, ok := att.CachedChances("def", 1)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	_ = combat.ChancesFor(att, def, 2, r)
	_, ok = att.CachedChances("def", 1)
	assert.False(t, ok, "a new turn replaces the cache entry")
	_, ok = att.CachedChances("def", 2)
	assert.True(t, ok)
}

// countingSource counts draws from a seeded stream.
type countingSource struct {
	src   dice.Source
	draws int
}

func (c *countingSource) Intn(n int) int {
	c.draws++
	return c.src.Intn(n)
}

func TestChancesFor_MutualAttacksShareOneRoll(t *testing.T) {
	src := &countingSource{src: dice.NewSeededSource(5)}
	r := dice.NewLoggedRoller(src, zap.NewNop())
	a := combat.NewCombatant("a", combat.KindHuman, combat.CharacterSnapshot{
		ParticipantID: "a", Level: 4, MinDamage: 5, MaxDamage: 9, MaxHealth: 60,
		Critical: 20, Dodge: 20, Counter: 20,
	}, nil)
	b := combat.NewCombatant("b", combat.KindHuman, combat.CharacterSnapshot{
		ParticipantID: "b", Level: 6, MinDamage: 4, MaxDamage: 12, MaxHealth: 70,
		Critical: 30, Dodge: 10, Counter: 15,
	}, nil)

	ab := combat.ChancesFor(a, b, 1, r)
	rolled := src.draws
	require.Positive(t, rolled)

	ba := combat.ChancesFor(b, a, 1, r)
	assert.Equal(t, rolled, src.draws, "the opposing direction draws nothing")

	held, ok := b.CachedChances("a", 1)
	require.True(t, ok)
	assert.Equal(t, ba, held)
	held, ok = a.CachedChances("b", 1)
	require.True(t, ok)
	assert.Equal(t, ab, held)

	_ = combat.ChancesFor(b, a, 2, r)
	assert.Greater(t, src.draws, rolled, "the next turn rolls again")
	_, ok = a.CachedChances("b", 2)
	assert.True(t, ok, "both sides hold the new pair roll")
}

func TestChancesFor_Property_EitherOrderOneRoll(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		flip := rapid.Bool().Draw(rt, "flip")
		src := &countingSource{src: dice.NewSeededSource(seed)}
		r := dice.NewLoggedRoller(src, zap.NewNop())
		a, b := fighter("a", 100), fighter("b", 100)
		if flip {
			a, b = b, a
		}
		_ = combat.ChancesFor(a, b, 3, r)
		n := src.draws
		_ = combat.ChancesFor(b, a, 3, r)
		_ = combat.ChancesFor(a, b, 3, r)
		assert.Equal(rt, n, src.draws)
	})
}

func TestPowerFactor(t *testing.T) {
	assert.InDelta(t, 0.5, combat.PowerFactor(0), 1e-9)
	assert.InDelta(t, 1.0, combat.PowerFactor(50), 1e-9)
	assert.InDelta(t, 0.5, combat.PowerFactor(-20), 1e-9)
}
