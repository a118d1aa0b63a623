// Package ghost synthesizes AI opponents ("ghosts") that stand in for missing
// human participants, together with the heuristics that drive their turns.
package ghost

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/arena/internal/game/combat"
)

// Archetype is a skill-build template. Weights split a level's skill pool in
// percent between the combat stats.
type Archetype struct {
	Name     string `yaml:"name"`
	Damage   int    `yaml:"damage"`
	Defense  int    `yaml:"defense"`
	Dodge    int    `yaml:"dodge"`
	Critical int    `yaml:"critical"`
	Counter  int    `yaml:"counter"`
	Health   int    `yaml:"health"`
}

// Validate checks that the archetype is named and has a positive weight sum.
//
// Postcondition: Returns nil iff Name is non-empty, no weight is negative and the sum is positive.
func (a Archetype) Validate() error {
	if a.Name == "" {
		return errors.New("archetype name must not be empty")
	}
	sum := 0
	for _, w := range []int{a.Damage, a.Defense, a.Dodge, a.Critical, a.Counter, a.Health} {
		if w < 0 {
			return fmt.Errorf("archetype %q: negative weight %d", a.Name, w)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("archetype %q: weights must sum to a positive value", a.Name)
	}
	return nil
}

// Item is one piece of equipment a ghost may wear.
type Item struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Slot  string `yaml:"slot"`
	Level int    `yaml:"level"`
	Price int    `yaml:"price"`

	MinDamage    int `yaml:"min_damage"`
	MaxDamage    int `yaml:"max_damage"`
	Defense      int `yaml:"defense"`
	Dodge        int `yaml:"dodge"`
	Critical     int `yaml:"critical"`
	Counter      int `yaml:"counter"`
	AntiDodge    int `yaml:"anti_dodge"`
	AntiCritical int `yaml:"anti_critical"`
	Health       int `yaml:"health"`
}

// Validate checks the item's identity fields.
func (it Item) Validate() error {
	if it.ID == "" {
		return errors.New("item id must not be empty")
	}
	if it.Slot == "" {
		return fmt.Errorf("item %q: slot must not be empty", it.ID)
	}
	if it.Level < 1 {
		return fmt.Errorf("item %q: level must be >= 1, got %d", it.ID, it.Level)
	}
	if it.Price < 0 {
		return fmt.Errorf("item %q: price must be >= 0, got %d", it.ID, it.Price)
	}
	return nil
}

func (it Item) apply(s *combat.CharacterSnapshot) {
	s.MinDamage += it.MinDamage
	s.MaxDamage += it.MaxDamage
	s.Defense += it.Defense
	s.Dodge += it.Dodge
	s.Critical += it.Critical
	s.Counter += it.Counter
	s.AntiDodge += it.AntiDodge
	s.AntiCritical += it.AntiCritical
	s.MaxHealth += it.Health
}

// Pools is the content ghosts are assembled from.
type Pools struct {
	Archetypes []Archetype
	// Items is keyed by slot.
	Items      map[string][]Item
	Companions []combat.CompanionSnapshot
}

// Empty reports whether the pools hold no items at all.
func (p Pools) Empty() bool {
	for _, items := range p.Items {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Slots returns the item slots in sorted order.
func (p Pools) Slots() []string {
	out := make([]string, 0, len(p.Items))
	for slot := range p.Items {
		out = append(out, slot)
	}
	sort.Strings(out)
	return out
}

// Loadout picks, per slot, the cheapest item whose level does not exceed
// level. Ties go to the higher item level, then the lower id. Slots without
// a viable item are left empty.
//
// Postcondition: At most one item per slot; every returned item has Level <= level.
func (p Pools) Loadout(level int) []Item {
	var out []Item
	for _, slot := range p.Slots() {
		var best *Item
		for i := range p.Items[slot] {
			it := &p.Items[slot][i]
			if it.Level > level {
				continue
			}
			if best == nil || cheaper(it, best) {
				best = it
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}
	return out
}

func cheaper(a, b *Item) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	return a.ID < b.ID
}

// MasteryCap is the highest companion mastery a ghost of level may field.
func MasteryCap(level int) int {
	if level < 1 {
		level = 1
	}
	return 1 + level/5
}

// companionsFor returns the companions with the highest mastery not above
// MasteryCap(level).
func (p Pools) companionsFor(level int) []combat.CompanionSnapshot {
	limit := MasteryCap(level)
	best := 0
	for _, c := range p.Companions {
		if c.Mastery <= limit && c.Mastery > best {
			best = c.Mastery
		}
	}
	if best == 0 {
		return nil
	}
	var out []combat.CompanionSnapshot
	for _, c := range p.Companions {
		if c.Mastery == best {
			out = append(out, c)
		}
	}
	return out
}
