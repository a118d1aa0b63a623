package match

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/combat"
)

func TestSinglePolicy_FillOnlyWhenAlone(t *testing.T) {
	p := NewSinglePolicy()
	s := testSession(p)
	join(s, human("a", 3))
	reqs := p.Fill(s, false)
	require.Len(t, reqs, 1)
	assert.Equal(t, "a", reqs[0].Against.ID)

	join(s, human("b", 3))
	assert.Empty(t, p.Fill(s, false))
}

func TestSinglePolicy_PlanWithinWindow(t *testing.T) {
	tm := DefaultTimings()
	for seed := uint64(1); seed <= 20; seed++ {
		plan := NewSinglePolicy().Plan(tm, seeded(seed))
		assert.GreaterOrEqual(t, plan.FillAfter, tm.SingleWaitMin)
		assert.LessOrEqual(t, plan.FillAfter, tm.SingleWaitMax)
		assert.Zero(t, plan.LockAfter)
	}
}

func TestSinglePolicy_WinAndDraw(t *testing.T) {
	p := NewSinglePolicy()
	s := testSession(p)
	a, b := human("a", 1), human("b", 1)
	join(s, a, b)
	p.AssignOpponents(s, seeded(1))
	assert.Equal(t, "b", a.OpponentID)
	assert.Equal(t, "a", b.OpponentID)

	assert.False(t, p.CheckWinCondition(s).Finished)

	b.ApplyDamage(1000, combat.AreaChest)
	v := p.CheckWinCondition(s)
	assert.True(t, v.Finished)
	assert.False(t, v.Draw)
	assert.Equal(t, []string{"a"}, v.Winners)

	a.ApplyDamage(1000, combat.AreaChest)
	v = p.CheckWinCondition(s)
	assert.True(t, v.Finished)
	assert.True(t, v.Draw)
	assert.Empty(t, v.Winners)
}

func TestTeamsPolicy_JoinBalancesSides(t *testing.T) {
	p := NewTeamsPolicy(3)
	s := testSession(p)
	join(s, human("a", 1), human("b", 1), human("c", 1))
	assert.Equal(t, []string{"a", "c"}, s.Team(TeamOne).Members)
	assert.Equal(t, []string{"b"}, s.Team(TeamTwo).Members)
}

func TestTeamsPolicy_LockFillEqualizesWithOneGhost(t *testing.T) {
	p := NewTeamsPolicy(2)
	s := testSession(p)
	join(s, human("a", 4), human("b", 4), human("c", 4))

	reqs := p.Fill(s, true)
	require.Len(t, reqs, 1)
	assert.Equal(t, TeamTwo, reqs[0].TeamID)
	assert.Equal(t, "c", reqs[0].Against.ID)
}

func TestTeamsPolicy_TickAddsOneAtATime(t *testing.T) {
	p := NewTeamsPolicy(3)
	s := testSession(p)
	join(s, human("a", 1))
	assert.Len(t, p.Fill(s, false), 1)
	assert.Len(t, p.Fill(s, true), 1)

	join(s, human("b", 1), human("c", 1))
	assert.Len(t, p.Fill(s, false), 1)
}

func TestTeamsPolicy_NoFillWhenEqual(t *testing.T) {
	p := NewTeamsPolicy(2)
	s := testSession(p)
	join(s, human("a", 1), human("b", 1))
	assert.Empty(t, p.Fill(s, false))
	assert.Empty(t, p.Fill(s, true))
	assert.False(t, p.ReadyToStart(s))
	s.locked = true
	assert.True(t, p.ReadyToStart(s))
}

func TestTeamsPolicy_ReassignPrefersAttacker(t *testing.T) {
	p := NewTeamsPolicy(2)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 1), human("c", 1), human("d", 1)
	join(s, a, b, c, d)
	// a, c on t1; b, d on t2
	p.AssignOpponents(s, seeded(1))
	assert.Equal(t, "b", a.OpponentID)
	assert.Equal(t, "d", c.OpponentID)

	b.ApplyDamage(1000, combat.AreaChest)
	d.OpponentID = "a"
	p.OnTurnResolved(s, seeded(1))
	assert.Equal(t, "d", a.OpponentID)
}

func TestTeamsPolicy_LeaveUnbalancesStartedMatch(t *testing.T) {
	p := NewTeamsPolicy(2)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 1), human("c", 1), human("d", 1)
	join(s, a, b, c, d)
	assert.False(t, p.OnLeave(s, a), "pending sessions never abort")

	s.state = StateStarted
	b.ApplyDamage(1000, combat.AreaChest)
	assert.False(t, p.OnLeave(s, b), "deaths keep sides present")

	a.Departed = true
	assert.True(t, p.OnLeave(s, a))
}

func TestTeamsPolicy_WinAndFlawless(t *testing.T) {
	p := NewTeamsPolicy(2)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 1), human("c", 1), human("d", 1)
	join(s, a, b, c, d)
	b.ApplyDamage(1000, combat.AreaChest)
	d.Surrender(3)

	v := p.CheckWinCondition(s)
	assert.True(t, v.Finished)
	assert.False(t, v.Draw)
	assert.Equal(t, []string{"a", "c"}, v.Winners)
	assert.True(t, s.Team(TeamOne).Flawless(s.Participant))
	assert.False(t, s.Team(TeamTwo).Flawless(s.Participant))
}

func TestRoyalPolicy_CapIsEven(t *testing.T) {
	assert.Equal(t, 12, NewRoyalPolicy(12).Capacity())
	assert.Equal(t, 10, NewRoyalPolicy(11).Capacity())
	assert.Equal(t, 2, NewRoyalPolicy(0).Capacity())
}

func TestRoyalPolicy_FinalFillTopsUpToEven(t *testing.T) {
	p := NewRoyalPolicy(12)
	s := testSession(p)
	join(s, human("a", 1))
	assert.Len(t, p.Fill(s, true), 1)

	join(s, human("b", 1), human("c", 1))
	assert.Len(t, p.Fill(s, true), 1)
	assert.Len(t, p.Fill(s, false), 1)

	join(s, human("d", 1))
	assert.Empty(t, p.Fill(s, true))
	assert.False(t, p.ReadyToStart(s))
	s.locked = true
	assert.True(t, p.ReadyToStart(s))
}

func TestRoyalPolicy_FillStopsAtCap(t *testing.T) {
	p := NewRoyalPolicy(2)
	s := testSession(p)
	join(s, human("a", 1), human("b", 1))
	assert.Empty(t, p.Fill(s, false))
	assert.True(t, p.ReadyToStart(s))
}

func TestPairByLevel_ClosestLevel(t *testing.T) {
	a, b, c, d := human("a", 5), human("b", 9), human("c", 6), human("d", 10)
	left := pairByLevel([]*combat.Combatant{a, b, c, d})
	assert.Empty(t, left)
	assert.Equal(t, "c", a.OpponentID)
	assert.Equal(t, "a", c.OpponentID)
	assert.Equal(t, "d", b.OpponentID)
	assert.Equal(t, "b", d.OpponentID)
}

func TestPairByLevel_TieGoesToEarlier(t *testing.T) {
	a, b, c := human("a", 5), human("b", 6), human("c", 4)
	left := pairByLevel([]*combat.Combatant{a, b, c})
	assert.Equal(t, "b", a.OpponentID)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)
}

func TestPropertyPairByLevel_MutualPairs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		cs := make([]*combat.Combatant, n)
		for i := range cs {
			cs[i] = human(fmt.Sprintf("p%d", i), rapid.IntRange(1, 30).Draw(rt, "level"))
		}
		left := pairByLevel(cs)
		assert.Equal(rt, n%2, len(left))
		byID := make(map[string]*combat.Combatant, n)
		for _, c := range cs {
			byID[c.ID] = c
		}
		leftover := make(map[string]bool)
		for _, c := range left {
			leftover[c.ID] = true
		}
		for _, c := range cs {
			if leftover[c.ID] {
				continue
			}
			opp := byID[c.OpponentID]
			require.NotNil(rt, opp)
			assert.Equal(rt, c.ID, opp.OpponentID)
		}
	})
}

func TestRoyalPolicy_ReassignPairsFreeParticipants(t *testing.T) {
	p := NewRoyalPolicy(4)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 2), human("c", 10), human("d", 11)
	join(s, a, b, c, d)
	p.AssignOpponents(s, seeded(3))
	assert.Equal(t, "b", a.OpponentID)
	assert.Equal(t, "d", c.OpponentID)

	b.ApplyDamage(1000, combat.AreaChest)
	d.Surrender(2)
	p.OnTurnResolved(s, seeded(3))
	assert.Equal(t, "c", a.OpponentID)
	assert.Equal(t, "a", c.OpponentID)
}

func TestRoyalPolicy_ReassignPrefersNearestStanding(t *testing.T) {
	p := NewRoyalPolicy(4)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 2), human("c", 3), human("d", 30)
	join(s, a, b, c, d)
	p.AssignOpponents(s, seeded(3))
	require.Equal(t, "b", a.OpponentID)
	require.Equal(t, "d", c.OpponentID)

	b.ApplyDamage(1000, combat.AreaChest)
	for seed := uint64(0); seed < 50; seed++ {
		a.OpponentID = ""
		p.OnTurnResolved(s, seeded(seed))
		assert.Equal(t, "c", a.OpponentID, "seed %d", seed)
		assert.Equal(t, "d", c.OpponentID)
	}
}

func TestRoyalPolicy_ReassignBreaksLevelTiesAtRandom(t *testing.T) {
	p := NewRoyalPolicy(4)
	s := testSession(p)
	a, b, c, d := human("a", 5), human("b", 5), human("c", 3), human("d", 7)
	join(s, a, b, c, d)
	p.AssignOpponents(s, seeded(1))
	require.Equal(t, "b", a.OpponentID)
	require.Equal(t, "d", c.OpponentID)

	b.ApplyDamage(1000, combat.AreaChest)
	seen := make(map[string]int)
	for seed := uint64(0); seed < 64; seed++ {
		a.OpponentID = ""
		p.OnTurnResolved(s, seeded(seed))
		seen[a.OpponentID]++
	}
	assert.Len(t, seen, 2, "both equally near candidates are picked")
	assert.Positive(t, seen["c"])
	assert.Positive(t, seen["d"])
}

func TestRoyalPolicy_WinCondition(t *testing.T) {
	p := NewRoyalPolicy(4)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 1), human("c", 1), human("d", 1)
	join(s, a, b, c, d)
	b.ApplyDamage(1000, combat.AreaChest)
	c.ApplyDamage(1000, combat.AreaChest)
	assert.False(t, p.CheckWinCondition(s).Finished)

	d.ApplyDamage(1000, combat.AreaChest)
	v := p.CheckWinCondition(s)
	assert.True(t, v.Finished)
	assert.Equal(t, []string{"a"}, v.Winners)

	a.ApplyDamage(1000, combat.AreaChest)
	v = p.CheckWinCondition(s)
	assert.True(t, v.Draw)
}

func TestRoyalPolicy_LeaveAbortsOnOddField(t *testing.T) {
	p := NewRoyalPolicy(4)
	s := testSession(p)
	a, b, c, d := human("a", 1), human("b", 1), human("c", 1), human("d", 1)
	join(s, a, b, c, d)
	s.state = StateStarted

	b.ApplyDamage(1000, combat.AreaChest)
	a.Departed = true
	a.Surrender(1)
	assert.False(t, p.OnLeave(s, a), "two standing is even")

	c.Departed = true
	c.Surrender(1)
	assert.False(t, p.OnLeave(s, c), "a lone survivor finishes instead")

	s2 := testSession(p)
	e, f, g, h := human("e", 1), human("f", 1), human("g", 1), human("h", 1)
	join(s2, e, f, g, h)
	s2.state = StateStarted
	h.Departed = true
	h.Surrender(1)
	assert.True(t, p.OnLeave(s2, h))
}
