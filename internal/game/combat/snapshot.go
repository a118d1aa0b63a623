package combat

// CompanionSnapshot is the read-only description of a companion creature.
type CompanionSnapshot struct {
	Name      string `json:"name" yaml:"name"`
	Mastery   int    `json:"mastery" yaml:"mastery"`
	MaxHealth int    `json:"max_health" yaml:"max_health"`
	MinDamage int    `json:"min_damage" yaml:"min_damage"`
	MaxDamage int    `json:"max_damage" yaml:"max_damage"`
	// Critical is a flat percent chance; companions do not use the level table.
	Critical int `json:"critical" yaml:"critical"`
}

// CharacterSnapshot holds the derived combat values of a participant at the
// moment the match starts. It is never mutated during a match.
type CharacterSnapshot struct {
	ParticipantID string
	Name          string
	Level         int

	MinDamage     int
	MaxDamage     int
	Defense       int
	Dodge         int
	Critical      int
	Counter       int
	AntiDodge     int
	AntiCritical  int
	CriticalPower int
	MaxHealth     int

	// Vampirism is the percent of dealt damage healed back.
	Vampirism int
	// Blessing is the percent reduction of incoming damage.
	Blessing int
	// BonusChance is the percent chance of an extra reward unit.
	BonusChance int

	Companion *CompanionSnapshot
	// Training marks a practice character; rewards are reduced.
	Training bool
}

// EffectiveLevel returns Level clamped to at least 1.
func (s CharacterSnapshot) EffectiveLevel() int {
	if s.Level < 1 {
		return 1
	}
	return s.Level
}
