package match

import (
	"time"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

// SinglePolicy is the 1v1 mode: two slots, a ghost after a short random wait,
// and a confirmation step before the first turn.
type SinglePolicy struct{}

// NewSinglePolicy returns the 1v1 policy.
func NewSinglePolicy() *SinglePolicy { return &SinglePolicy{} }

// Mode returns ModeSingle.
func (*SinglePolicy) Mode() Mode { return ModeSingle }

// Capacity returns 2.
func (*SinglePolicy) Capacity() int { return 2 }

// RequiresConfirmation returns true; both sides confirm before turn 1.
func (*SinglePolicy) RequiresConfirmation() bool { return true }

// Plan fills once after a random wait in [SingleWaitMin, SingleWaitMax].
func (*SinglePolicy) Plan(t Timings, r *dice.Roller) FillPlan {
	wait := t.SingleWaitMin
	if span := t.SingleWaitMax - t.SingleWaitMin; span > 0 && r != nil {
		ms := r.Range("single:wait", 0, int(span/time.Millisecond))
		wait += time.Duration(ms) * time.Millisecond
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return FillPlan{FillAfter: wait}
}

// OnJoin does nothing; 1v1 has no sides to place a participant on.
func (*SinglePolicy) OnJoin(*Session, *combat.Combatant) {}

// Fill adds a ghost opposing the lone participant.
func (*SinglePolicy) Fill(s *Session, _ bool) []GhostRequest {
	if s.Len() != 1 {
		return nil
	}
	return []GhostRequest{{Against: s.Participants()[0]}}
}

// ReadyToStart requires both slots taken and confirmed.
func (*SinglePolicy) ReadyToStart(s *Session) bool {
	if s.Len() != 2 {
		return false
	}
	for _, c := range s.Participants() {
		if !c.Ready {
			return false
		}
	}
	return true
}

// AssignOpponents points the two participants at each other.
//
// Postcondition: With two participants, each one's OpponentID is the other's ID.
func (*SinglePolicy) AssignOpponents(s *Session, _ *dice.Roller) {
	ps := s.Participants()
	if len(ps) != 2 {
		return
	}
	ps[0].OpponentID = ps[1].ID
	ps[1].OpponentID = ps[0].ID
}

// CheckWinCondition finishes once either side is out and declares a draw when
// both went out on the same turn.
func (*SinglePolicy) CheckWinCondition(s *Session) Verdict {
	ps := s.Participants()
	if len(ps) != 2 {
		return Verdict{}
	}
	a, b := ps[0].Out(), ps[1].Out()
	v := Verdict{Finished: a || b, Draw: a && b}
	if v.Finished && !v.Draw {
		v.Winners = ids(s.Standing())
	}
	return v
}

// OnTurnResolved does nothing; 1v1 pairs never change.
func (*SinglePolicy) OnTurnResolved(*Session, *dice.Roller) {}

// OnLeave never aborts; the leaver forfeits.
func (*SinglePolicy) OnLeave(*Session, *combat.Combatant) bool { return false }
