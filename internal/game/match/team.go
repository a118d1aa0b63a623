package match

import "github.com/cory-johannsen/arena/internal/game/combat"

// Team identifiers for teams mode.
const (
	TeamOne = "t1"
	TeamTwo = "t2"
)

// Team groups combatants sharing a win/loss condition.
type Team struct {
	ID         string
	OpponentID string
	Icon       string
	Members    []string
}

// Lost reports whether every member is dead, surrendered or departed.
// An empty team has lost.
func (t *Team) Lost(lookup func(string) *combat.Combatant) bool {
	for _, id := range t.Members {
		if c := lookup(id); c != nil && !c.Out() {
			return false
		}
	}
	return true
}

// Flawless reports whether every member is still alive.
func (t *Team) Flawless(lookup func(string) *combat.Combatant) bool {
	for _, id := range t.Members {
		if c := lookup(id); c == nil || c.Dead {
			return false
		}
	}
	return true
}

// Present returns the number of members that have not departed.
func (t *Team) Present(lookup func(string) *combat.Combatant) int {
	n := 0
	for _, id := range t.Members {
		if c := lookup(id); c != nil && !c.Departed {
			n++
		}
	}
	return n
}

func (t *Team) remove(id string) {
	for i, m := range t.Members {
		if m == id {
			t.Members = append(t.Members[:i], t.Members[i+1:]...)
			return
		}
	}
}
