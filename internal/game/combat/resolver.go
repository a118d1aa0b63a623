package combat

// Result is the outcome class of a single attack.
type Result int

const (
	// ResultNone means no attack was made (surrender or no decision).
	ResultNone Result = iota
	ResultHit
	ResultMiss
	ResultBlocked
)

// String returns a human-readable result label.
func (r Result) String() string {
	switch r {
	case ResultHit:
		return "hit"
	case ResultMiss:
		return "miss"
	case ResultBlocked:
		return "blocked"
	default:
		return "none"
	}
}

// TurnOutcome is the resolved result of one attacker's decision on one turn.
type TurnOutcome struct {
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
	Turn       int    `json:"turn"`
	Area       Area   `json:"area"`
	Result     Result `json:"result"`
	Critical   bool   `json:"critical"`
	Dodged     bool   `json:"dodged"`
	Countered  bool   `json:"countered"`
	// Damage lands on the target, or on its companion when Area is AreaCompanion.
	Damage        int `json:"damage"`
	CounterDamage int `json:"counter_damage"`
	// CompanionDamage is dealt by the attacker's companion.
	CompanionDamage int `json:"companion_damage"`
	// CompanionOnCompanion is true when the companion struck the opponent's companion.
	CompanionOnCompanion bool `json:"companion_on_companion"`
	CompanionCritical    bool `json:"companion_critical"`
	CompanionBlocked     bool `json:"companion_blocked"`
	Healed               int  `json:"healed"`

	TargetDied          bool `json:"target_died"`
	TargetCompanionDied bool `json:"target_companion_died"`
	AttackerDied        bool `json:"attacker_died"`
}

// CompanionBlockDivisor divides companion damage when its area is covered.
const CompanionBlockDivisor = 4

// ResolveAttack computes attacker's outcome against defender from the
// attacker's decision, the defender's defense set and one coherent chance roll.
// It does not mutate either combatant.
//
// Rules: a dodge is effective only when the defender is the attacker's chosen
// target and the attack is not aimed at the companion; a counter triggers only
// after an effective dodge; an attack is blocked when the defense set covers
// the area unless it is critical. The companion exchange is resolved
// independently with a quarter-damage penalty when its area is covered.
func ResolveAttack(attacker, defender *Combatant, ch Chances, turn int) TurnOutcome {
	out := TurnOutcome{AttackerID: attacker.ID, TargetID: defender.ID, Turn: turn}
	dec := attacker.Decision
	if dec == nil || dec.Surrender {
		return out
	}
	var defense []Area
	if defender.Decision != nil && !defender.Decision.Surrender {
		defense = defender.Decision.Defense
	}

	area := dec.Attack
	if area == AreaCompanion && !defender.HasLivingCompanion() {
		area = AreaChest
	}
	if !area.Valid() {
		area = AreaChest
	}
	out.Area = area

	chosen := dec.Target == "" || dec.Target == defender.ID
	switch {
	case ch.Dodge && chosen && area != AreaCompanion:
		out.Result = ResultMiss
		out.Dodged = true
		if ch.Counter {
			out.Countered = true
			out.CounterDamage = ch.CounterDamage
		}
	case Covers(defense, area) && !ch.Critical:
		out.Result = ResultBlocked
	default:
		out.Result = ResultHit
		out.Critical = ch.Critical
		out.Damage = ch.Damage
	}

	if ch.Companion != nil && attacker.HasLivingCompanion() {
		compArea := dec.companionArea()
		if dec.AttackCompanion && defender.HasLivingCompanion() {
			compArea = AreaCompanion
			out.CompanionOnCompanion = true
		}
		dmg := ch.Companion.Damage
		if Covers(defense, compArea) {
			out.CompanionBlocked = true
			dmg = max(1, dmg/CompanionBlockDivisor)
		}
		out.CompanionDamage = dmg
		out.CompanionCritical = ch.Companion.Critical
	}
	return out
}

// reduceByBlessing applies the target's blessing percent.
//
// Postcondition: result >= 1 when amount >= 1.
func reduceByBlessing(target *Combatant, amount int) int {
	if amount <= 0 {
		return 0
	}
	b := target.Snapshot.Blessing
	if b <= 0 {
		return amount
	}
	if b > 90 {
		b = 90
	}
	return max(1, amount*(100-b)/100)
}

// ApplyOutcome mutates attacker and defender according to out: damage to the
// defender or its companion, vampiric healing, counter damage to the attacker,
// and companion damage. The applied (post-blessing) amounts are written back
// into out and death flags are set.
//
// Postcondition: both combatants have Health >= 0; out is appended to
// defender.Received and stored as attacker.Last.
func ApplyOutcome(attacker, defender *Combatant, out *TurnOutcome) {
	defWasDead := defender.Dead
	compWasAlive := defender.HasLivingCompanion()
	attWasDead := attacker.Dead

	if out.Result == ResultHit && out.Damage > 0 {
		if out.Area == AreaCompanion {
			defender.DamageCompanion(out.Damage)
		} else {
			out.Damage = reduceByBlessing(defender, out.Damage)
			defender.ApplyDamage(out.Damage, out.Area)
			if v := attacker.Snapshot.Vampirism; v > 0 {
				heal := out.Damage * v / 100
				if heal > 0 && !attacker.Dead {
					before := attacker.Health
					attacker.Heal(heal)
					out.Healed = attacker.Health - before
				}
			}
		}
	}

	if out.Countered && out.CounterDamage > 0 {
		out.CounterDamage = reduceByBlessing(attacker, out.CounterDamage)
		attacker.ApplyDamage(out.CounterDamage, AreaChest)
	}

	if out.CompanionDamage > 0 {
		if out.CompanionOnCompanion {
			defender.DamageCompanion(out.CompanionDamage)
		} else {
			out.CompanionDamage = reduceByBlessing(defender, out.CompanionDamage)
			area := AreaChest
			if attacker.Decision != nil {
				area = attacker.Decision.companionArea()
			}
			defender.ApplyDamage(out.CompanionDamage, area)
		}
	}

	out.TargetDied = !defWasDead && defender.Dead
	out.TargetCompanionDied = compWasAlive && !defender.HasLivingCompanion()
	out.AttackerDied = !attWasDead && attacker.Dead

	defender.Received = append(defender.Received, *out)
	last := *out
	attacker.Last = &last
}
