package ghost

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/scripting"
)

// HookChooseAttack is the Lua function tactics scripts define:
//
//	function choose_attack(self, opponent)
//	  return {attack = "head", defense = {"chest", "legs"}}
//	end
//
// Returning nil defers to the built-in heuristic.
const HookChooseAttack = "choose_attack"

// Tactics runs per-archetype Lua scripts that choose ghost decisions.
type Tactics struct {
	scripts *scripting.Manager
	logger  *zap.Logger
}

// NewTactics wraps a scripting Manager whose scopes are archetype names.
//
// Precondition: scripts must be non-nil.
func NewTactics(scripts *scripting.Manager, logger *zap.Logger) *Tactics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tactics{scripts: scripts, logger: logger}
}

// Choose calls choose_attack for archetype. ok is false when no script
// answered or the answer was not a valid decision.
func (t *Tactics) Choose(archetype string, self, opponent *combat.Combatant) (combat.TurnDecision, bool) {
	ret, err := t.scripts.Call(archetype, HookChooseAttack, view(self), view(opponent))
	if err != nil || ret == nil {
		return combat.TurnDecision{}, false
	}
	m, ok := ret.(map[string]any)
	if !ok {
		t.logger.Warn("tactics: choose_attack returned a non-table", zap.String("archetype", archetype))
		return combat.TurnDecision{}, false
	}
	d := decode(m)
	if err := d.Validate(); err != nil {
		t.logger.Warn("tactics: invalid decision", zap.String("archetype", archetype), zap.Error(err))
		return combat.TurnDecision{}, false
	}
	return d, true
}

func decode(m map[string]any) combat.TurnDecision {
	var d combat.TurnDecision
	if s, ok := m["attack"].(string); ok {
		d.Attack = combat.Area(s)
	}
	if list, ok := m["defense"].([]any); ok {
		for _, e := range list {
			if s, ok := e.(string); ok {
				d.Defense = append(d.Defense, combat.Area(s))
			}
		}
	}
	if b, ok := m["attack_companion"].(bool); ok {
		d.AttackCompanion = b
	}
	if s, ok := m["companion_area"].(string); ok {
		d.CompanionArea = combat.Area(s)
	}
	return d
}

// view is the table handed to scripts for one combatant.
func view(c *combat.Combatant) map[string]any {
	if c == nil {
		return nil
	}
	v := map[string]any{
		"id":            c.ID,
		"level":         c.Level(),
		"health":        c.Health,
		"max_health":    c.Snapshot.MaxHealth,
		"has_companion": c.HasLivingCompanion(),
	}
	if comp := c.Snapshot.Companion; comp != nil {
		v["companion_health"] = c.CompanionHealth
		v["companion_max_health"] = comp.MaxHealth
	}
	if c.Last != nil {
		v["last_attack"] = string(c.Last.Area)
	}
	return v
}
