package ghost_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/game/reward"
	"github.com/cory-johannsen/arena/internal/scripting"
)

func seeded(seed uint64) *dice.Roller {
	return dice.NewLoggedRoller(dice.NewSeededSource(seed), zap.NewNop())
}

func opponent(level int, companion bool) *combat.Combatant {
	snap := combat.CharacterSnapshot{ParticipantID: "p1", Level: level, MinDamage: 2, MaxDamage: 4, MaxHealth: 50}
	if companion {
		snap.Companion = &combat.CompanionSnapshot{Name: "Cat", Mastery: 1, MaxHealth: 20, MinDamage: 1, MaxDamage: 2}
	}
	return combat.NewCombatant("p1", combat.KindHuman, snap, nil)
}

func samplePools() ghost.Pools {
	return ghost.Pools{
		Archetypes: []ghost.Archetype{{Name: "striker", Damage: 60, Health: 40}},
		Items: map[string][]ghost.Item{
			"weapon": {
				{ID: "club", Slot: "weapon", Level: 1, Price: 10, MinDamage: 1, MaxDamage: 2},
				{ID: "stick", Slot: "weapon", Level: 1, Price: 5, MinDamage: 1, MaxDamage: 1},
				{ID: "axe", Slot: "weapon", Level: 10, Price: 1, MinDamage: 5, MaxDamage: 9},
			},
			"armor": {
				{ID: "rags", Slot: "armor", Level: 1, Price: 3, Defense: 1},
				{ID: "leather", Slot: "armor", Level: 3, Price: 3, Defense: 2, Health: 10},
			},
		},
		Companions: []combat.CompanionSnapshot{
			{Name: "Rat", Mastery: 1, MaxHealth: 8, MinDamage: 1, MaxDamage: 2},
			{Name: "Wolf", Mastery: 2, MaxHealth: 20, MinDamage: 2, MaxDamage: 5},
			{Name: "Bear", Mastery: 4, MaxHealth: 60, MinDamage: 5, MaxDamage: 9},
		},
	}
}

func TestPools_Loadout_CheapestViablePerSlot(t *testing.T) {
	items := samplePools().Loadout(5)
	require.Len(t, items, 2)
	// Slots are visited in sorted order: armor, weapon.
	assert.Equal(t, "leather", items[0].ID, "equal price prefers the higher level")
	assert.Equal(t, "stick", items[1].ID, "axe is above level and club costs more")
}

func TestPools_Loadout_SkipsSlotWithoutViableItem(t *testing.T) {
	p := ghost.Pools{Items: map[string][]ghost.Item{
		"ring": {{ID: "signet", Slot: "ring", Level: 20, Price: 1}},
	}}
	assert.Empty(t, p.Loadout(3))
}

func TestProperty_LoadoutNeverExceedsLevel(t *testing.T) {
	pools := samplePools()
	rapid.Check(t, func(t *rapid.T) {
		level := rapid.IntRange(1, 30).Draw(t, "level")
		seen := map[string]bool{}
		for _, it := range pools.Loadout(level) {
			if it.Level > level {
				t.Fatalf("item %s level %d above %d", it.ID, it.Level, level)
			}
			if seen[it.Slot] {
				t.Fatalf("slot %s filled twice", it.Slot)
			}
			seen[it.Slot] = true
		}
	})
}

func TestArchetype_Validate(t *testing.T) {
	for _, a := range ghost.DefaultArchetypes {
		assert.NoError(t, a.Validate(), a.Name)
	}
	assert.Error(t, ghost.Archetype{}.Validate())
	assert.Error(t, ghost.Archetype{Name: "x"}.Validate())
	assert.Error(t, ghost.Archetype{Name: "x", Damage: -1, Health: 5}.Validate())
}

func TestItem_Validate(t *testing.T) {
	assert.NoError(t, ghost.Item{ID: "a", Slot: "weapon", Level: 1}.Validate())
	assert.Error(t, ghost.Item{Slot: "weapon", Level: 1}.Validate())
	assert.Error(t, ghost.Item{ID: "a", Level: 1}.Validate())
	assert.Error(t, ghost.Item{ID: "a", Slot: "weapon"}.Validate())
	assert.Error(t, ghost.Item{ID: "a", Slot: "weapon", Level: 1, Price: -1}.Validate())
}

func TestCompanionPercent(t *testing.T) {
	assert.Equal(t, 5, ghost.CompanionPercent(1))
	assert.Equal(t, 50, ghost.CompanionPercent(10))
	assert.Equal(t, 90, ghost.CompanionPercent(18))
	assert.Equal(t, 90, ghost.CompanionPercent(30))
}

func TestMasteryCap(t *testing.T) {
	assert.Equal(t, 1, ghost.MasteryCap(0))
	assert.Equal(t, 1, ghost.MasteryCap(4))
	assert.Equal(t, 2, ghost.MasteryCap(5))
	assert.Equal(t, 3, ghost.MasteryCap(14))
}

func TestBuilder_EmptyPools_UsesDefaults(t *testing.T) {
	b := ghost.NewBuilder(ghost.Pools{}, seeded(1), ghost.Config{}, nil)
	g := b.Build(reward.ModeSingle, opponent(4, true))

	require.NotNil(t, g)
	assert.True(t, strings.HasPrefix(g.ID, ghost.IDPrefix))
	assert.True(t, ghost.IsGhostID(g.ID))
	assert.Equal(t, g.ID, g.Snapshot.ParticipantID)
	assert.Equal(t, combat.KindGhost, g.Kind)
	assert.True(t, g.Source.Automatic())

	want := ghost.DefaultSnapshot(4)
	assert.Equal(t, 4, g.Level())
	assert.Equal(t, want.MaxHealth, g.Snapshot.MaxHealth)
	assert.Equal(t, want.MinDamage, g.Snapshot.MinDamage)
	require.NotNil(t, g.Snapshot.Companion, "opponent companion guarantees one")
	assert.Equal(t, ghost.DefaultCompanion(4), *g.Snapshot.Companion)
	assert.Equal(t, g.Snapshot.Companion.MaxHealth, g.CompanionHealth)
}

func TestBuilder_NilOpponent_BuildsLevelOne(t *testing.T) {
	b := ghost.NewBuilder(ghost.Pools{}, seeded(2), ghost.Config{}, nil)
	g := b.Build(reward.ModeSingle, nil)
	assert.Equal(t, 1, g.Level())
}

func TestBuilder_UniqueIDs(t *testing.T) {
	b := ghost.NewBuilder(samplePools(), seeded(3), ghost.Config{}, nil)
	a := b.Build(reward.ModeTeams, opponent(3, false))
	c := b.Build(reward.ModeTeams, opponent(3, false))
	assert.NotEqual(t, a.ID, c.ID)
}

func TestBuilder_Snapshot_AppliesLoadout(t *testing.T) {
	b := ghost.NewBuilder(samplePools(), seeded(4), ghost.Config{}, nil)
	snap, arch := b.Snapshot(5)
	assert.Equal(t, "striker", arch)
	assert.Equal(t, "Striker Ghost", snap.Name)
	assert.Equal(t, 5, snap.Level)
	// leather armor grants defense 2 and health 10 on top of the build.
	assert.GreaterOrEqual(t, snap.Defense, 2)
	assert.LessOrEqual(t, snap.MinDamage, snap.MaxDamage)
}

func TestBuilder_Companion_BestMasteryUnderCap(t *testing.T) {
	b := ghost.NewBuilder(samplePools(), seeded(5), ghost.Config{}, nil)
	assert.Equal(t, "Rat", b.Companion(1).Name)
	assert.Equal(t, "Wolf", b.Companion(7).Name)
	assert.Equal(t, "Bear", b.Companion(30).Name)
}

func TestProperty_BuildLevelWithinSpread(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		level := rapid.IntRange(1, 30).Draw(t, "level")
		mode := rapid.SampledFrom([]reward.Mode{reward.ModeSingle, reward.ModeTeams, reward.ModeRoyal}).Draw(t, "mode")
		b := ghost.NewBuilder(samplePools(), seeded(seed), ghost.Config{}, nil)
		g := b.Build(mode, opponent(level, false))

		spread := ghost.DefaultSpread[mode]
		lo := level - spread
		if lo < 1 {
			lo = 1
		}
		got := g.Level()
		if got < lo || got > level+spread {
			t.Fatalf("mode %s level %d: ghost level %d outside [%d, %d]", mode, level, got, lo, level+spread)
		}
		if g.Snapshot.MaxHealth < 1 || g.Snapshot.MinDamage > g.Snapshot.MaxDamage {
			t.Fatalf("degenerate snapshot %+v", g.Snapshot)
		}
	})
}

func TestHeuristic_TargetsNearlyDeadCompanion(t *testing.T) {
	self := opponent(3, true)
	opp := opponent(3, true)
	opp.CompanionHealth = 5 // 25% of 20

	d := ghost.Heuristic(seeded(6), self, opp)
	assert.Equal(t, combat.AreaCompanion, d.Attack)
	assert.True(t, d.AttackCompanion)
	assert.NoError(t, d.Validate())
}

func TestHeuristic_HealthyCompanionIgnored(t *testing.T) {
	opp := opponent(3, true)
	opp.CompanionHealth = 6
	assert.False(t, ghost.CompanionNearlyDead(opp))
	opp.CompanionHealth = 0
	assert.False(t, ghost.CompanionNearlyDead(opp), "dead companions are not reachable")
	assert.False(t, ghost.CompanionNearlyDead(nil))
}

func TestProperty_HeuristicAlwaysValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := seeded(rapid.Uint64().Draw(t, "seed"))
		self := opponent(2, rapid.Bool().Draw(t, "own_companion"))
		var opp *combat.Combatant
		if rapid.Bool().Draw(t, "has_opponent") {
			opp = opponent(2, true)
			opp.CompanionHealth = rapid.IntRange(0, 20).Draw(t, "companion_health")
		}
		d := ghost.Heuristic(r, self, opp)
		if err := d.Validate(); err != nil {
			t.Fatalf("invalid decision %+v: %v", d, err)
		}
		if len(d.Defense) != combat.DefenseSize {
			t.Fatalf("defense %v, want %d areas", d.Defense, combat.DefenseSize)
		}
		if d.Attack != combat.AreaCompanion && !d.Attack.IsBody() {
			t.Fatalf("attack %q", d.Attack)
		}
	})
}

func newTactics(t *testing.T, scope, src string) *ghost.Tactics {
	t.Helper()
	mgr := scripting.NewManager(seeded(9), zap.NewNop(), 0)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.LoadString(scope, src))
	return ghost.NewTactics(mgr, nil)
}

func TestTactics_ScriptDecisionUsed(t *testing.T) {
	tac := newTactics(t, "striker", `
		function choose_attack(self, opp)
			if opp.health < opp.max_health then
				return {attack = "head", defense = {"chest", "legs"}}
			end
			return {attack = "groin", defense = {"belly"}}
		end
	`)
	opp := opponent(3, false)
	d, ok := tac.Choose("striker", opponent(3, false), opp)
	require.True(t, ok)
	assert.Equal(t, combat.AreaGroin, d.Attack)
	assert.Equal(t, []combat.Area{combat.AreaBelly}, d.Defense)

	opp.ApplyDamage(1, combat.AreaHead)
	brain := ghost.NewBrain(seeded(1), "striker", tac)
	d = brain.Decide(opponent(3, false), opp)
	assert.Equal(t, combat.AreaHead, d.Attack)
	assert.Equal(t, []combat.Area{combat.AreaChest, combat.AreaLegs}, d.Defense)
}

func TestTactics_InvalidOrMissingFallsBack(t *testing.T) {
	tac := newTactics(t, "tank", `
		function choose_attack(self, opp)
			return {attack = "tail", defense = {}}
		end
	`)
	_, ok := tac.Choose("tank", opponent(1, false), opponent(1, false))
	assert.False(t, ok)

	_, ok = tac.Choose("dodger", opponent(1, false), nil)
	assert.False(t, ok, "no scope and no global VM")

	d := ghost.NewBrain(seeded(2), "tank", tac).Decide(opponent(1, false), opponent(1, false))
	assert.NoError(t, d.Validate())
	assert.True(t, d.Attack.IsBody())
}
