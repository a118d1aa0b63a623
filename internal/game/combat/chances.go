package combat

import (
	"fmt"

	"github.com/cory-johannsen/arena/internal/game/dice"
)

// DefenseFactor is the share of defense subtracted from both damage bounds.
const DefenseFactor = 0.35

// CounterFactor scales counter damage.
const CounterFactor = 0.75

// MaxChancePercent caps every table-derived chance.
const MaxChancePercent = 95

var chanceSteps = []struct {
	below   float64
	percent int
}{
	{0.25, 5},
	{0.5, 10},
	{1, 20},
	{1.5, 30},
	{2, 40},
	{3, 55},
	{4, 70},
	{6, 85},
}

// ChancePercent maps a stat value to a percent chance using a level-indexed
// step table. Higher levels need proportionally more stat for the same chance.
//
// Postcondition: 0 <= result <= MaxChancePercent; value <= 0 yields 0.
func ChancePercent(value, level int) int {
	if value <= 0 {
		return 0
	}
	if level < 1 {
		level = 1
	}
	ratio := float64(value) / float64(10+5*level)
	for _, s := range chanceSteps {
		if ratio < s.below {
			return s.percent
		}
	}
	return MaxChancePercent
}

// PowerFactor is the extra damage share of a critical hit.
func PowerFactor(criticalPower int) float64 {
	if criticalPower < 0 {
		criticalPower = 0
	}
	return 0.5 + float64(criticalPower)/100
}

// CompanionChances is the companion's roll for the same exchange.
type CompanionChances struct {
	Critical bool `json:"critical"`
	Damage   int  `json:"damage"`
}

// Chances is one coherent roll for attacker versus defender on one turn.
type Chances struct {
	// Critical is the attacker's critical roll.
	Critical bool `json:"critical"`
	// Dodge is the defender's dodge roll.
	Dodge bool `json:"dodge"`
	// Counter is the defender's counter roll; it only matters after an effective dodge.
	Counter bool `json:"counter"`
	// BaseDamage is the raw draw before the critical multiplier.
	BaseDamage int `json:"base_damage"`
	// Damage includes the critical multiplier.
	Damage        int               `json:"damage"`
	CounterDamage int               `json:"counter_damage"`
	Companion     *CompanionChances `json:"companion,omitempty"`
}

// drawDamage returns a uniform value between the defense-reduced bounds.
//
// Postcondition: result >= 1.
func drawDamage(label string, minD, maxD, defense int, r *dice.Roller) int {
	reduce := DefenseFactor * float64(defense)
	lo := floorAtOne(float64(minD) - reduce)
	hi := floorAtOne(float64(maxD) - reduce)
	return r.Range(label, lo, hi)
}

func floorAtOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// ComputeChances rolls critical, dodge and counter for attacker against
// defender, plus the damage and counter-damage draws. When the attacker has a
// living companion its attack is rolled in the same call.
//
// Precondition: attacker, defender and r are non-nil.
// Postcondition: Damage, BaseDamage and CounterDamage are all >= 1.
func ComputeChances(attacker, defender *Combatant, level int, r *dice.Roller) Chances {
	a, d := attacker.Snapshot, defender.Snapshot
	tag := fmt.Sprintf("%s>%s", attacker.ID, defender.ID)

	ch := Chances{
		Critical: r.Chance(tag+":critical", ChancePercent(a.Critical-d.AntiCritical, level)),
		Dodge:    r.Chance(tag+":dodge", ChancePercent(d.Dodge-a.AntiDodge, level)),
		Counter:  r.Chance(tag+":counter", ChancePercent(d.Counter, level)),
	}
	ch.BaseDamage = drawDamage(tag+":damage", a.MinDamage, a.MaxDamage, d.Defense, r)
	ch.Damage = ch.BaseDamage
	if ch.Critical {
		ch.Damage = floorAtOne(float64(ch.BaseDamage) * (1 + PowerFactor(a.CriticalPower)))
	}
	counter := drawDamage(tag+":counter_damage", d.MinDamage, d.MaxDamage, a.Defense, r)
	ch.CounterDamage = floorAtOne(float64(counter) * CounterFactor)

	if attacker.HasLivingCompanion() {
		comp := a.Companion
		cc := &CompanionChances{
			Critical: r.Chance(tag+":companion_critical", comp.Critical),
			Damage:   r.Range(tag+":companion_damage", max(1, comp.MinDamage), max(1, comp.MaxDamage)),
		}
		if cc.Critical {
			cc.Damage = floorAtOne(float64(cc.Damage) * 1.5)
		}
		ch.Companion = cc
	}
	return ch
}

// ChancesFor returns the chances of attacker against defender for turn.
// The first call for a pair in a turn rolls both directions together and
// stores the pair on both combatants; any later call for that pair in the same
// turn, in either direction, reuses the stored roll without drawing again.
//
// Postcondition: ChancesFor(a, b, t, r) and ChancesFor(b, a, t, r) come from one pair roll.
func ChancesFor(attacker, defender *Combatant, turn int, r *dice.Roller) Chances {
	if cc, ok := defender.chances[attacker.ID]; ok && cc.turn == turn {
		return cc.against
	}
	level := max(attacker.Level(), defender.Level())
	forward := ComputeChances(attacker, defender, level, r)
	reverse := ComputeChances(defender, attacker, level, r)
	attacker.storeChances(defender.ID, cachedChances{turn: turn, chances: forward, against: reverse})
	defender.storeChances(attacker.ID, cachedChances{turn: turn, chances: reverse, against: forward})
	return forward
}

func (c *Combatant) storeChances(opponentID string, cc cachedChances) {
	if c.chances == nil {
		c.chances = make(map[string]cachedChances)
	}
	c.chances[opponentID] = cc
}
