package match

import (
	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

// RoyalPolicy is the free-for-all mode. Pairs are formed by closest level and
// re-formed as participants drop out.
type RoyalPolicy struct {
	cap int
}

// NewRoyalPolicy returns a royal policy capped at limit participants.
//
// Postcondition: the cap is even and at least 2.
func NewRoyalPolicy(limit int) *RoyalPolicy {
	limit = max(limit, 2)
	if limit%2 == 1 {
		limit--
	}
	return &RoyalPolicy{cap: limit}
}

// Mode returns ModeRoyal.
func (*RoyalPolicy) Mode() Mode { return ModeRoyal }

// Capacity returns the even participant cap.
func (p *RoyalPolicy) Capacity() int { return p.cap }

// RequiresConfirmation returns false.
func (*RoyalPolicy) RequiresConfirmation() bool { return false }

// Plan fills on the autostart interval and locks after the autostart timeout.
func (*RoyalPolicy) Plan(t Timings, _ *dice.Roller) FillPlan {
	return FillPlan{FillAfter: t.AutostartInterval, FillEvery: t.AutostartInterval, LockAfter: t.AutostartTimeout}
}

// OnJoin does nothing; royal participants have no side.
func (*RoyalPolicy) OnJoin(*Session, *combat.Combatant) {}

// Fill adds one ghost per tick up to the cap. At lock time it tops the field
// up to an even count of at least two.
func (p *RoyalPolicy) Fill(s *Session, final bool) []GhostRequest {
	n := s.Len()
	if n == 0 || n >= p.cap {
		return nil
	}
	need := 1
	if final {
		switch {
		case n < 2:
			need = 2 - n
		case n%2 == 1:
			need = 1
		default:
			need = 0
		}
	}
	ps := s.Participants()
	reqs := make([]GhostRequest, 0, need)
	for i := 0; i < min(need, p.cap-n); i++ {
		reqs = append(reqs, GhostRequest{Against: ps[(s.FillCount()+i)%n]})
	}
	return reqs
}

// ReadyToStart requires an even field that is full or locked.
func (p *RoyalPolicy) ReadyToStart(s *Session) bool {
	n := s.Len()
	return n >= 2 && n%2 == 0 && (n == p.cap || s.Locked())
}

// AssignOpponents pairs by closest level in join order. A participant left
// over is sent at the nearest standing one.
//
// Postcondition: With two or more standing, every standing participant has an OpponentID.
func (*RoyalPolicy) AssignOpponents(s *Session, r *dice.Roller) {
	standing := s.Standing()
	for _, c := range pairByLevel(standing) {
		assignNearest(c, standing, r)
	}
}

// CheckWinCondition finishes once fewer than two participants stand; no one
// standing is a draw.
func (*RoyalPolicy) CheckWinCondition(s *Session) Verdict {
	standing := s.Standing()
	if len(standing) >= 2 {
		return Verdict{}
	}
	return Verdict{Finished: true, Draw: len(standing) == 0, Winners: ids(standing)}
}

// OnTurnResolved re-pairs participants whose opponent is out with the nearest
// free participant by level. A participant left without a free partner is sent
// at the standing participant closest in level.
func (*RoyalPolicy) OnTurnResolved(s *Session, r *dice.Roller) {
	standing := s.Standing()
	var free []*combat.Combatant
	for _, c := range standing {
		if s.opponentOf(c) == nil {
			free = append(free, c)
		}
	}
	for _, c := range pairByLevel(free) {
		assignNearest(c, standing, r)
	}
}

// OnLeave aborts a started match when an odd number of participants remain
// standing with more than one of them.
func (*RoyalPolicy) OnLeave(s *Session, _ *combat.Combatant) bool {
	if s.State() != StateStarted {
		return false
	}
	n := len(s.Standing())
	return n >= 2 && n%2 == 1
}

// assignNearest points c at the candidate in pool with the smallest level gap.
// Equally near candidates are picked between at random.
func assignNearest(c *combat.Combatant, pool []*combat.Combatant, r *dice.Roller) {
	var nearest []*combat.Combatant
	best := -1
	for _, o := range pool {
		if o.ID == c.ID {
			continue
		}
		switch gap := levelGap(c, o); {
		case best < 0 || gap < best:
			best = gap
			nearest = append(nearest[:0], o)
		case gap == best:
			nearest = append(nearest, o)
		}
	}
	switch len(nearest) {
	case 0:
		return
	case 1:
		c.OpponentID = nearest[0].ID
	default:
		c.OpponentID = nearest[r.Intn(len(nearest))].ID
	}
}
