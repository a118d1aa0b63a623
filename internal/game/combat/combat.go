// Package combat implements per-participant combat state and the turn
// resolver shared by every arena mode.
package combat

import "github.com/cory-johannsen/arena/internal/game/reward"

// Kind distinguishes human participants from synthesized ghosts.
type Kind int

const (
	KindHuman Kind = iota
	KindGhost
)

// String returns a human-readable kind label.
func (k Kind) String() string {
	switch k {
	case KindHuman:
		return "human"
	case KindGhost:
		return "ghost"
	default:
		return "unknown"
	}
}

// DecisionSource produces turn decisions for a combatant.
type DecisionSource interface {
	// Automatic reports whether decisions are generated rather than submitted
	// by a client.
	Automatic() bool
	// Decide returns the decision for the current turn. opponent may be nil.
	Decide(self, opponent *Combatant) TurnDecision
}

// Human is the DecisionSource for externally fed participants.
type Human struct{}

// Automatic always returns false.
func (Human) Automatic() bool { return false }

// Decide returns the zero decision; human decisions arrive through submission.
func (Human) Decide(_, _ *Combatant) TurnDecision { return TurnDecision{} }

// cachedChances is one pair roll seen from the holder's side.
type cachedChances struct {
	turn    int
	chances Chances
	against Chances
}

// Combatant is the mutable combat state of one participant in one match.
type Combatant struct {
	ID         string
	TeamID     string
	OpponentID string
	Kind       Kind
	Snapshot   CharacterSnapshot
	Source     DecisionSource

	Health          int
	CompanionHealth int
	AreaDamage      map[Area]int

	// Dead latches once Health reaches zero.
	Dead        bool
	Surrendered bool
	// SurrenderedTurn is the turn on which the combatant surrendered, 0 if never.
	SurrenderedTurn int
	// Departed is set when the participant left the session entirely.
	Departed bool
	// Idle marks an AI placeholder that takes no part in resolution.
	Idle bool
	// Ready is the 1v1 confirmation flag.
	Ready bool

	Decision *TurnDecision
	Last     *TurnOutcome
	Received []TurnOutcome

	Rewards *reward.Rewards

	chances map[string]cachedChances
}

// NewCombatant builds a combatant at full health from snapshot.
//
// Precondition: id must be non-empty; src may be nil (defaults to Human).
// Postcondition: Health == MaxHealth (at least 1); companion at full health when present.
func NewCombatant(id string, kind Kind, snap CharacterSnapshot, src DecisionSource) *Combatant {
	if src == nil {
		src = Human{}
	}
	if snap.MaxHealth < 1 {
		snap.MaxHealth = 1
	}
	c := &Combatant{
		ID:         id,
		Kind:       kind,
		Snapshot:   snap,
		Source:     src,
		Health:     snap.MaxHealth,
		AreaDamage: make(map[Area]int),
		chances:    make(map[string]cachedChances),
	}
	if snap.Companion != nil {
		c.CompanionHealth = snap.Companion.MaxHealth
	}
	return c
}

// IsGhost reports whether this combatant is AI-controlled.
func (c *Combatant) IsGhost() bool { return c.Kind == KindGhost }

// Level returns the snapshot level clamped to at least 1.
func (c *Combatant) Level() int { return c.Snapshot.EffectiveLevel() }

// Active reports whether the combatant takes part in the current turn.
//
// Postcondition: Returns true iff not dead, not surrendered, not departed and not idle.
func (c *Combatant) Active() bool {
	return !c.Dead && !c.Surrendered && !c.Departed && !c.Idle
}

// Out reports whether the combatant no longer counts for its side:
// dead, surrendered or departed.
func (c *Combatant) Out() bool {
	return c.Dead || c.Surrendered || c.Departed
}

// HasLivingCompanion reports whether a companion is attached and alive.
func (c *Combatant) HasLivingCompanion() bool {
	return c.Snapshot.Companion != nil && c.CompanionHealth > 0
}

// ApplyDamage reduces Health by amount, floors at zero and latches Dead.
// Damage is accumulated against area when area is a body area.
//
// Precondition: amount >= 0.
// Postcondition: Health >= 0; Dead is true iff Health == 0 or Dead was already set.
func (c *Combatant) ApplyDamage(amount int, area Area) {
	if amount <= 0 {
		return
	}
	c.Health -= amount
	if c.Health <= 0 {
		c.Health = 0
		c.Dead = true
	}
	if area.IsBody() {
		if c.AreaDamage == nil {
			c.AreaDamage = make(map[Area]int)
		}
		c.AreaDamage[area] += amount
	}
}

// DamageCompanion reduces companion health, flooring at zero.
//
// Postcondition: CompanionHealth >= 0.
func (c *Combatant) DamageCompanion(amount int) {
	if amount <= 0 || c.Snapshot.Companion == nil {
		return
	}
	c.CompanionHealth -= amount
	if c.CompanionHealth < 0 {
		c.CompanionHealth = 0
	}
}

// Heal restores up to amount health. Dead combatants are not healed.
//
// Postcondition: Health <= Snapshot.MaxHealth.
func (c *Combatant) Heal(amount int) {
	if amount <= 0 || c.Dead {
		return
	}
	c.Health += amount
	if c.Health > c.Snapshot.MaxHealth {
		c.Health = c.Snapshot.MaxHealth
	}
}

// Surrender marks the combatant as surrendered on turn.
func (c *Combatant) Surrender(turn int) {
	if c.Surrendered {
		return
	}
	c.Surrendered = true
	c.SurrenderedTurn = turn
}

// ResetTurn clears the per-turn decision and received outcomes.
func (c *Combatant) ResetTurn() {
	c.Decision = nil
	c.Received = nil
}

// CachedChances returns the chances rolled against opponentID on turn, if any.
func (c *Combatant) CachedChances(opponentID string, turn int) (Chances, bool) {
	cc, ok := c.chances[opponentID]
	if !ok || cc.turn != turn {
		return Chances{}, false
	}
	return cc.chances, true
}
