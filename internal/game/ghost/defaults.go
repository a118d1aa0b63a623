package ghost

import "github.com/cory-johannsen/arena/internal/game/combat"

// DefaultArchetypes are used when no archetype content is loaded alongside items.
var DefaultArchetypes = []Archetype{
	{Name: "striker", Damage: 45, Defense: 15, Critical: 15, Health: 25},
	{Name: "dodger", Damage: 20, Dodge: 40, Counter: 20, Health: 20},
	{Name: "tank", Damage: 20, Defense: 35, Health: 45},
	{Name: "critter", Damage: 25, Dodge: 10, Critical: 45, Health: 20},
}

// DefaultSnapshot is the minimal combatant used when pools are missing.
//
// Postcondition: MaxHealth > 0 and MinDamage <= MaxDamage.
func DefaultSnapshot(level int) combat.CharacterSnapshot {
	if level < 1 {
		level = 1
	}
	return combat.CharacterSnapshot{
		Name:      "Ghost",
		Level:     level,
		MinDamage: 2 + level,
		MaxDamage: 4 + level,
		MaxHealth: 30 + 10*level,
	}
}

// DefaultCompanion is the companion used when the companion pool is empty.
func DefaultCompanion(level int) combat.CompanionSnapshot {
	if level < 1 {
		level = 1
	}
	return combat.CompanionSnapshot{
		Name:      "Stray Hound",
		Mastery:   1,
		MaxHealth: 10 + 3*level,
		MinDamage: 1,
		MaxDamage: 3,
		Critical:  5,
	}
}

// skillPool is the number of skill points an archetype distributes at level.
func skillPool(level int) int {
	return 3 * (10 + 5*level)
}

// buildSnapshot derives base stats for archetype a at level.
//
// Postcondition: MaxHealth > 0 and MinDamage <= MaxDamage.
func buildSnapshot(a Archetype, level int) combat.CharacterSnapshot {
	if level < 1 {
		level = 1
	}
	pool := skillPool(level)
	stat := func(w int) int { return pool * w / 100 }

	minDmg := 3 + level + stat(a.Damage)/10
	return combat.CharacterSnapshot{
		Name:          a.Name,
		Level:         level,
		MinDamage:     minDmg,
		MaxDamage:     minDmg + 3 + level/2,
		Defense:       stat(a.Defense) / 5,
		Dodge:         stat(a.Dodge),
		Critical:      stat(a.Critical),
		Counter:       stat(a.Counter),
		AntiDodge:     stat(a.Damage) / 4,
		AntiCritical:  stat(a.Defense) / 4,
		CriticalPower: stat(a.Critical) / 5,
		MaxHealth:     40 + 12*level + stat(a.Health)/2,
	}
}
