package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/combat"
)

func decide(c *combat.Combatant, attack combat.Area, defense ...combat.Area) {
	c.Decision = &combat.TurnDecision{Attack: attack, Defense: defense}
}

func TestResolveAttack_HitWhenUncovered(t *testing.T) {
	att, def := fighter("a", 50), fighter("d", 50)
	decide(att, combat.AreaHead)
	decide(def, combat.AreaChest, combat.AreaChest, combat.AreaBelly)

	out := combat.ResolveAttack(att, def, combat.Chances{Damage: 12, BaseDamage: 12}, 1)
	assert.Equal(t, combat.ResultHit, out.Result)
	assert.Equal(t, 12, out.Damage)
	assert.Equal(t, combat.AreaHead, out.Area)
	assert.Equal(t, 50, def.Health, "ResolveAttack does not mutate")
}

func TestResolveAttack_BlockedUnlessCritical(t *testing.T) {
	att, def := fighter("a", 50), fighter("d", 50)
	decide(att, combat.AreaHead)
	decide(def, combat.AreaChest, combat.AreaHead)

	out := combat.ResolveAttack(att, def, combat.Chances{Damage: 12}, 1)
	assert.Equal(t, combat.ResultBlocked, out.Result)
	assert.Zero(t, out.Damage)

	out = combat.ResolveAttack(att, def, combat.Chances{Critical: true, Damage: 24}, 1)
	assert.Equal(t, combat.ResultHit, out.Result)
	assert.True(t, out.Critical)
	assert.Equal(t, 24, out.Damage)
}

func TestResolveAttack_DodgeOnlyAgainstChosenTarget(t *testing.T) {
	att, def := fighter("a", 50), fighter("d", 50)
	decide(def, combat.AreaChest)
	ch := combat.Chances{Dodge: true, Damage: 9}

	att.Decision = &combat.TurnDecision{Attack: combat.AreaLegs, Target: "d"}
	out := combat.ResolveAttack(att, def, ch, 1)
	assert.Equal(t, combat.ResultMiss, out.Result)
	assert.True(t, out.Dodged)

	att.Decision = &combat.TurnDecision{Attack: combat.AreaLegs, Target: "someone-else"}
	out = combat.ResolveAttack(att, def, ch, 1)
	assert.Equal(t, combat.ResultHit, out.Result, "dodge is ineffective when the defender is not the chosen target")
	assert.False(t, out.Dodged)
}

func TestResolveAttack_CounterOnlyAfterDodge(t *testing.T) {
	att, def := fighter("a", 50), fighter("d", 50)
	decide(att, combat.AreaLegs)
	decide(def, combat.AreaChest)

	out := combat.ResolveAttack(att, def, combat.Chances{Counter: true, CounterDamage: 7, Damage: 9}, 1)
	assert.False(t, out.Countered)
	assert.Zero(t, out.CounterDamage)

	out = combat.ResolveAttack(att, def, combat.Chances{Dodge: true, Counter: true, CounterDamage: 7, Damage: 9}, 1)
	assert.True(t, out.Countered)
	assert.Equal(t, 7, out.CounterDamage)
}

func TestResolveAttack_SurrenderOrNoDecision(t *testing.T) {
	att, def := fighter("a", 50), fighter("d", 50)
	out := combat.ResolveAttack(att, def, combat.Chances{Damage: 9}, 1)
	assert.Equal(t, combat.ResultNone, out.Result)

	att.Decision = &combat.TurnDecision{Surrender: true}
	out = combat.ResolveAttack(att, def, combat.Chances{Damage: 9}, 1)
	assert.Equal(t, combat.ResultNone, out.Result)
}

func withCompanion(id string) *combat.Combatant {
	return combat.NewCombatant(id, combat.KindHuman, combat.CharacterSnapshot{
		Level: 5, MaxHealth: 60, MinDamage: 5, MaxDamage: 5,
		Companion: &combat.CompanionSnapshot{Name: "lynx", MaxHealth: 30, MinDamage: 8, MaxDamage: 8},
	}, nil)
}

func TestResolveAttack_CompanionQuarterWhenBlocked(t *testing.T) {
	att := withCompanion("a")
	def := fighter("d", 50)
	att.Decision = &combat.TurnDecision{Attack: combat.AreaHead, CompanionArea: combat.AreaLegs}
	decide(def, combat.AreaHead, combat.AreaLegs)

	ch := combat.Chances{Damage: 5, Companion: &combat.CompanionChances{Damage: 8}}
	out := combat.ResolveAttack(att, def, ch, 1)
	assert.Equal(t, combat.ResultBlocked, out.Result)
	assert.True(t, out.CompanionBlocked)
	assert.Equal(t, 2, out.CompanionDamage)

	decide(def, combat.AreaChest)
	out = combat.ResolveAttack(att, def, ch, 1)
	assert.False(t, out.CompanionBlocked)
	assert.Equal(t, 8, out.CompanionDamage)
}

func TestResolveAttack_CompanionPseudoArea(t *testing.T) {
	att := fighter("a", 50)
	def := withCompanion("d")
	decide(att, combat.AreaCompanion)
	decide(def, combat.AreaHead)

	out := combat.ResolveAttack(att, def, combat.Chances{Dodge: true, Damage: 10}, 1)
	assert.Equal(t, combat.ResultHit, out.Result, "the owner's dodge does not protect the companion")
	assert.Equal(t, combat.AreaCompanion, out.Area)

	combat.ApplyOutcome(att, def, &out)
	assert.Equal(t, 20, def.CompanionHealth)
	assert.Equal(t, 60, def.Health)

	def.DamageCompanion(100)
	out = combat.ResolveAttack(att, def, combat.Chances{Damage: 10}, 1)
	assert.Equal(t, combat.AreaChest, out.Area, "a dead companion redirects the attack to the body")
}

func TestApplyOutcome_DamageCounterAndDeath(t *testing.T) {
	att, def := fighter("a", 10), fighter("d", 8)
	decide(att, combat.AreaBelly)
	decide(def, combat.AreaHead)

	out := combat.ResolveAttack(att, def, combat.Chances{Damage: 12}, 1)
	combat.ApplyOutcome(att, def, &out)
	assert.Equal(t, 0, def.Health)
	assert.True(t, out.TargetDied)
	assert.Equal(t, 12, def.AreaDamage[combat.AreaBelly])
	require.Len(t, def.Received, 1)
	require.NotNil(t, att.Last)
	assert.Equal(t, "d", att.Last.TargetID)

	att2, def2 := fighter("a2", 5), fighter("d2", 50)
	decide(att2, combat.AreaBelly)
	decide(def2, combat.AreaHead)
	out = combat.ResolveAttack(att2, def2, combat.Chances{Dodge: true, Counter: true, CounterDamage: 9}, 1)
	combat.ApplyOutcome(att2, def2, &out)
	assert.Equal(t, 0, att2.Health)
	assert.True(t, out.AttackerDied)
	assert.Equal(t, 50, def2.Health)
}

func TestApplyOutcome_VampirismAndBlessing(t *testing.T) {
	att := combat.NewCombatant("a", combat.KindHuman, combat.CharacterSnapshot{Level: 1, MaxHealth: 40, Vampirism: 50}, nil)
	def := combat.NewCombatant("d", combat.KindHuman, combat.CharacterSnapshot{Level: 1, MaxHealth: 40, Blessing: 50}, nil)
	att.ApplyDamage(10, combat.AreaChest)
	decide(att, combat.AreaHead)
	decide(def, combat.AreaChest)

	out := combat.ResolveAttack(att, def, combat.Chances{Damage: 20}, 1)
	combat.ApplyOutcome(att, def, &out)
	assert.Equal(t, 10, out.Damage, "blessing halves incoming damage")
	assert.Equal(t, 30, def.Health)
	assert.Equal(t, 5, out.Healed)
	assert.Equal(t, 35, att.Health)
}

// Health after resolution equals health before minus applied damage, floored at zero.
func TestApplyOutcome_Property_HealthAccounting(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		hp := rapid.IntRange(1, 300).Draw(rt, "hp")
		att, def := fighter("a", 300), fighter("d", hp)
		decide(def, combat.AreaHead)
		before := def.Health
		sum := 0
		n := rapid.IntRange(1, 5).Draw(rt, "attacks")
		for i := 0; i < n; i++ {
			decide(att, combat.BodyAreas[rapid.IntRange(0, 4).Draw(rt, "area")])
			ch := combat.Chances{
				Critical: rapid.Bool().Draw(rt, "crit"),
				Damage:   rapid.IntRange(1, 80).Draw(rt, "dmg"),
			}
			out := combat.ResolveAttack(att, def, ch, 1)
			combat.ApplyOutcome(att, def, &out)
			sum += out.Damage
		}
		assert.Equal(rt, max(0, before-sum), def.Health)
	})
}
