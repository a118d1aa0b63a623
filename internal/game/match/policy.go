package match

import (
	"time"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

// Timings holds the pacing parameters of every mode.
type Timings struct {
	// SingleWaitMin and SingleWaitMax bound the random wait before a 1v1 is filled with a ghost.
	SingleWaitMin time.Duration
	SingleWaitMax time.Duration
	// ConfirmTimeout is how long 1v1 participants have to confirm.
	ConfirmTimeout time.Duration
	// AutostartInterval is the ghost-fill tick of teams and royal.
	AutostartInterval time.Duration
	// AutostartTimeout locks a pending teams or royal session.
	AutostartTimeout time.Duration
	// TurnDelay paces publication of turn results.
	TurnDelay time.Duration
	TeamSize  int
	RoyalCap  int
}

// DefaultTimings returns the production pacing.
func DefaultTimings() Timings {
	return Timings{
		SingleWaitMin:     3 * time.Second,
		SingleWaitMax:     8 * time.Second,
		ConfirmTimeout:    20 * time.Second,
		AutostartInterval: 5 * time.Second,
		AutostartTimeout:  60 * time.Second,
		TurnDelay:         time.Second,
		TeamSize:          3,
		RoyalCap:          12,
	}
}

// FillPlan tells the orchestrator when to fill and lock a pending session.
// Zero durations disable the corresponding timer.
type FillPlan struct {
	FillAfter time.Duration
	FillEvery time.Duration
	LockAfter time.Duration
}

// GhostRequest asks for one ghost on TeamID, scaled against Against.
type GhostRequest struct {
	TeamID  string
	Against *combat.Combatant
}

// Verdict is the result of a win-condition check.
type Verdict struct {
	Finished bool
	Draw     bool
	Winners  []string
}

// ModePolicy customizes a generic session for one arena mode. Every method is
// called with the session lock held.
type ModePolicy interface {
	Mode() Mode
	// Capacity is the maximum number of participants.
	Capacity() int
	// Plan returns the fill and lock timers for a new session.
	Plan(t Timings, r *dice.Roller) FillPlan
	// RequiresConfirmation reports whether participants must confirm before the first turn.
	RequiresConfirmation() bool
	// OnJoin places a newly added combatant.
	OnJoin(s *Session, c *combat.Combatant)
	// Fill returns the ghosts to add on a fill tick, or at lock time when final is set.
	Fill(s *Session, final bool) []GhostRequest
	// ReadyToStart reports whether the session may leave pending.
	ReadyToStart(s *Session) bool
	// AssignOpponents sets the initial OpponentID of every participant.
	AssignOpponents(s *Session, r *dice.Roller)
	CheckWinCondition(s *Session) Verdict
	// OnTurnResolved reassigns anyone whose opponent is out.
	OnTurnResolved(s *Session, r *dice.Roller)
	// OnLeave reports whether the session must abort after c departed.
	OnLeave(s *Session, c *combat.Combatant) bool
}

// DefaultPolicies returns the three arena modes configured from t.
func DefaultPolicies(t Timings) []ModePolicy {
	return []ModePolicy{
		NewSinglePolicy(),
		NewTeamsPolicy(t.TeamSize),
		NewRoyalPolicy(t.RoyalCap),
	}
}

func ids(cs []*combat.Combatant) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func levelGap(a, b *combat.Combatant) int {
	d := a.Level() - b.Level()
	if d < 0 {
		return -d
	}
	return d
}

// pairByLevel greedily pairs each combatant, in order, with the closest-level
// unpaired combatant after it. Ties go to the earlier one. Unpaired leftovers
// are returned.
func pairByLevel(cs []*combat.Combatant) []*combat.Combatant {
	paired := make([]bool, len(cs))
	var left []*combat.Combatant
	for i, c := range cs {
		if paired[i] {
			continue
		}
		best := -1
		for j := i + 1; j < len(cs); j++ {
			if paired[j] {
				continue
			}
			if best < 0 || levelGap(c, cs[j]) < levelGap(c, cs[best]) {
				best = j
			}
		}
		if best < 0 {
			left = append(left, c)
			continue
		}
		paired[i], paired[best] = true, true
		c.OpponentID = cs[best].ID
		cs[best].OpponentID = c.ID
	}
	return left
}
