package combat

import (
	"errors"
	"fmt"
)

// ErrInvalidDecision is returned when a submitted decision is malformed.
var ErrInvalidDecision = errors.New("invalid turn decision")

// TurnDecision is what a combatant submits for one turn.
type TurnDecision struct {
	// Attack is the chosen target area; AreaCompanion strikes the opponent's companion.
	Attack Area `json:"attack"`
	// Defense is the set of covered areas, at most DefenseSize entries.
	Defense []Area `json:"defense"`
	// AttackCompanion sends this combatant's companion at the opponent's companion.
	AttackCompanion bool `json:"attack_companion"`
	// CompanionArea is where this combatant's companion strikes; empty uses Attack.
	CompanionArea Area `json:"companion_area,omitempty"`
	Surrender     bool `json:"surrender"`
	// Target redirects the attack to another opponent in multi-opponent modes.
	Target string `json:"target,omitempty"`
}

// Validate checks area values and the defense set size.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidDecision.
func (d TurnDecision) Validate() error {
	if d.Surrender {
		return nil
	}
	if !d.Attack.Valid() {
		return fmt.Errorf("%w: attack area %q", ErrInvalidDecision, d.Attack)
	}
	if len(d.Defense) > DefenseSize {
		return fmt.Errorf("%w: %d defense areas, at most %d", ErrInvalidDecision, len(d.Defense), DefenseSize)
	}
	seen := make(map[Area]bool, len(d.Defense))
	for _, a := range d.Defense {
		if !a.Valid() {
			return fmt.Errorf("%w: defense area %q", ErrInvalidDecision, a)
		}
		if seen[a] {
			return fmt.Errorf("%w: duplicate defense area %q", ErrInvalidDecision, a)
		}
		seen[a] = true
	}
	if d.CompanionArea != "" && !d.CompanionArea.IsBody() {
		return fmt.Errorf("%w: companion area %q", ErrInvalidDecision, d.CompanionArea)
	}
	return nil
}

// companionArea returns where the companion strikes the opponent's body.
func (d TurnDecision) companionArea() Area {
	if d.CompanionArea.IsBody() {
		return d.CompanionArea
	}
	if d.Attack.IsBody() {
		return d.Attack
	}
	return AreaChest
}
