package match

import (
	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

// TeamsPolicy is the two-sided mode. Sides are kept equal by ghost fill: one
// ghost per tick while they differ, and a full equalization pass at lock time.
type TeamsPolicy struct {
	size int
}

// NewTeamsPolicy returns a teams policy with size members per side.
//
// Postcondition: size is at least 1.
func NewTeamsPolicy(size int) *TeamsPolicy {
	return &TeamsPolicy{size: max(size, 1)}
}

// Mode returns ModeTeams.
func (*TeamsPolicy) Mode() Mode { return ModeTeams }

// Capacity returns both sides at full size.
//
// Postcondition: result is even and at least 2.
func (p *TeamsPolicy) Capacity() int { return 2 * p.size }

// RequiresConfirmation returns false; teams start without a confirmation step.
func (*TeamsPolicy) RequiresConfirmation() bool { return false }

// Plan fills on the autostart interval and locks after the autostart timeout.
func (*TeamsPolicy) Plan(t Timings, _ *dice.Roller) FillPlan {
	return FillPlan{FillAfter: t.AutostartInterval, FillEvery: t.AutostartInterval, LockAfter: t.AutostartTimeout}
}

// OnJoin puts c on its preset team, or on the smaller side.
func (*TeamsPolicy) OnJoin(s *Session, c *combat.Combatant) {
	t1, t2 := s.Team(TeamOne), s.Team(TeamTwo)
	team := s.Team(c.TeamID)
	if team == nil {
		team = t1
		if len(t2.Members) < len(t1.Members) {
			team = t2
		}
	}
	c.TeamID = team.ID
	team.Members = append(team.Members, c.ID)
}

func (p *TeamsPolicy) sides(s *Session) (small, large *Team) {
	t1, t2 := s.Team(TeamOne), s.Team(TeamTwo)
	if len(t1.Members) <= len(t2.Members) {
		return t1, t2
	}
	return t2, t1
}

// Fill adds one ghost to the smaller side while sides differ; at lock time it
// adds as many as needed to equalize.
func (p *TeamsPolicy) Fill(s *Session, final bool) []GhostRequest {
	small, large := p.sides(s)
	diff := len(large.Members) - len(small.Members)
	if diff <= 0 {
		return nil
	}
	n := 1
	if final {
		n = diff
	}
	n = min(n, p.size-len(small.Members))
	reqs := make([]GhostRequest, 0, n)
	for i := 0; i < n; i++ {
		against := s.Participant(large.Members[(len(small.Members)+i)%len(large.Members)])
		reqs = append(reqs, GhostRequest{TeamID: small.ID, Against: against})
	}
	return reqs
}

// ReadyToStart requires equal non-empty sides that are full or locked.
func (p *TeamsPolicy) ReadyToStart(s *Session) bool {
	n1, n2 := len(s.Team(TeamOne).Members), len(s.Team(TeamTwo).Members)
	return n1 == n2 && n1 > 0 && (n1 == p.size || s.Locked())
}

// AssignOpponents pairs members of equal rank across the sides.
func (*TeamsPolicy) AssignOpponents(s *Session, _ *dice.Roller) {
	m1, m2 := s.Team(TeamOne).Members, s.Team(TeamTwo).Members
	for i := 0; i < min(len(m1), len(m2)); i++ {
		a, b := s.Participant(m1[i]), s.Participant(m2[i])
		a.OpponentID = b.ID
		b.OpponentID = a.ID
	}
}

// CheckWinCondition finishes when a side has lost and declares a draw when
// both sides lost on the same turn.
func (*TeamsPolicy) CheckWinCondition(s *Session) Verdict {
	t1, t2 := s.Team(TeamOne), s.Team(TeamTwo)
	l1, l2 := t1.Lost(s.Participant), t2.Lost(s.Participant)
	v := Verdict{Finished: l1 || l2, Draw: l1 && l2}
	if v.Finished && !v.Draw {
		win := t1
		if l1 {
			win = t2
		}
		v.Winners = append(v.Winners, win.Members...)
	}
	return v
}

// OnTurnResolved redirects anyone whose opponent is out to a standing enemy,
// preferring one already attacking them.
func (*TeamsPolicy) OnTurnResolved(s *Session, r *dice.Roller) {
	for _, c := range s.Standing() {
		if s.opponentOf(c) != nil {
			continue
		}
		var enemies []*combat.Combatant
		for _, e := range s.Standing() {
			if e.TeamID != c.TeamID {
				enemies = append(enemies, e)
			}
		}
		if len(enemies) == 0 {
			continue
		}
		var pick *combat.Combatant
		for _, e := range enemies {
			if e.OpponentID == c.ID {
				pick = e
				break
			}
		}
		if pick == nil {
			pick = enemies[r.Intn(len(enemies))]
		}
		c.OpponentID = pick.ID
	}
}

// OnLeave aborts a started match once the sides no longer have equal numbers
// of present members.
func (*TeamsPolicy) OnLeave(s *Session, _ *combat.Combatant) bool {
	if s.State() != StateStarted {
		return false
	}
	return s.Team(TeamOne).Present(s.Participant) != s.Team(TeamTwo).Present(s.Participant)
}
