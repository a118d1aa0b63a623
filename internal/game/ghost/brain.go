package ghost

import (
	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

// NearlyDeadPercent is the companion health share, in percent, at or below
// which a ghost goes for the companion.
const NearlyDeadPercent = 25

// Brain is the DecisionSource of a ghost.
type Brain struct {
	roller    *dice.Roller
	archetype string
	tactics   *Tactics
}

// NewBrain creates a Brain. tactics may be nil.
func NewBrain(roller *dice.Roller, archetype string, tactics *Tactics) *Brain {
	return &Brain{roller: roller, archetype: archetype, tactics: tactics}
}

// Automatic always returns true.
func (b *Brain) Automatic() bool { return true }

// Decide asks the tactics script first and falls back to Heuristic.
func (b *Brain) Decide(self, opponent *combat.Combatant) combat.TurnDecision {
	if b.tactics != nil {
		if d, ok := b.tactics.Choose(b.archetype, self, opponent); ok {
			return d
		}
	}
	return Heuristic(b.roller, self, opponent)
}

// Heuristic finishes off a nearly dead companion when the opponent has one,
// otherwise attacks a uniformly random body area. Defense covers
// DefenseSize distinct random body areas. A ghost with its own companion
// sends it at a nearly dead opposing companion too.
//
// Postcondition: The returned decision passes Validate.
func Heuristic(r *dice.Roller, self, opponent *combat.Combatant) combat.TurnDecision {
	d := combat.TurnDecision{Defense: randomDefense(r)}
	if CompanionNearlyDead(opponent) {
		d.Attack = combat.AreaCompanion
		if self != nil && self.HasLivingCompanion() {
			d.AttackCompanion = true
		}
		return d
	}
	d.Attack = randomArea(r)
	return d
}

// CompanionNearlyDead reports whether c has a living companion at or below
// NearlyDeadPercent of its maximum health.
func CompanionNearlyDead(c *combat.Combatant) bool {
	if c == nil || !c.HasLivingCompanion() {
		return false
	}
	max := c.Snapshot.Companion.MaxHealth
	if max <= 0 {
		return false
	}
	return c.CompanionHealth*100 <= max*NearlyDeadPercent
}

func randomArea(r *dice.Roller) combat.Area {
	return combat.BodyAreas[r.Intn(len(combat.BodyAreas))]
}

func randomDefense(r *dice.Roller) []combat.Area {
	n := len(combat.BodyAreas)
	i := r.Intn(n)
	j := r.Intn(n - 1)
	if j >= i {
		j++
	}
	return []combat.Area{combat.BodyAreas[i], combat.BodyAreas[j]}
}
