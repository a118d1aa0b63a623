package match

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
)

// scriptedBrain always returns the same decision.
type scriptedBrain struct {
	dec combat.TurnDecision
}

func (scriptedBrain) Automatic() bool { return true }

func (b scriptedBrain) Decide(_, _ *combat.Combatant) combat.TurnDecision { return b.dec }

// stubGhosts builds weak ghosts at the level of the combatant they face.
type stubGhosts struct {
	mu     sync.Mutex
	n      int
	health int
}

func (g *stubGhosts) Build(_ Mode, against *combat.Combatant) *combat.Combatant {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	snap := combat.CharacterSnapshot{
		Name:      fmt.Sprintf("Ghost %d", g.n),
		Level:     against.Level(),
		MinDamage: 1,
		MaxDamage: 1,
		MaxHealth: g.health,
	}
	id := fmt.Sprintf("ghost-%d", g.n)
	snap.ParticipantID = id
	return combat.NewCombatant(id, combat.KindGhost, snap, scriptedBrain{dec: combat.TurnDecision{Attack: combat.AreaHead}})
}

type harness struct {
	t      *testing.T
	orch   *Orchestrator
	clock  *ManualClock
	ghosts *stubGhosts

	mu     sync.Mutex
	events []Event
}

func testTimings() Timings {
	return Timings{
		SingleWaitMin:     time.Second,
		SingleWaitMax:     time.Second,
		ConfirmTimeout:    10 * time.Second,
		AutostartInterval: 100 * time.Second,
		AutostartTimeout:  60 * time.Second,
		TeamSize:          2,
		RoyalCap:          4,
	}
}

func newHarness(t *testing.T, timings Timings) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  NewManualClock(time.Unix(1_700_000_000, 0)),
		ghosts: &stubGhosts{health: 20},
	}
	h.orch = NewOrchestrator(Options{
		Ghosts:   h.ghosts,
		Roller:   dice.NewLoggedRoller(dice.NewSeededSource(42), zap.NewNop()),
		Clock:    h.clock,
		Timings:  timings,
		Listener: h.record,
		Logger:   zap.NewNop(),
	})
	return h
}

func (h *harness) record(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *harness) count(kind EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) last(kind EventKind) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Kind == kind {
			return h.events[i], true
		}
	}
	return Event{}, false
}

func (h *harness) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *harness) session(id string) *Session {
	h.orch.mu.RLock()
	defer h.orch.mu.RUnlock()
	return h.orch.sessions[id]
}

// fighter is a human snapshot with fixed damage and no chance stats.
func fighter(id string, level, health, damage int) combat.CharacterSnapshot {
	return combat.CharacterSnapshot{
		ParticipantID: id,
		Name:          id,
		Level:         level,
		MinDamage:     damage,
		MaxDamage:     damage,
		MaxHealth:     health,
	}
}

func strike(area combat.Area, defense ...combat.Area) combat.TurnDecision {
	return combat.TurnDecision{Attack: area, Defense: defense}
}

func human(id string, level int) *combat.Combatant {
	return combat.NewCombatant(id, combat.KindHuman, fighter(id, level, 50, 5), nil)
}

func testSession(p ModePolicy) *Session {
	return newSession("s-1", p, NewScheduler(NewManualClock(time.Unix(0, 0))), time.Unix(0, 0))
}

func join(s *Session, cs ...*combat.Combatant) {
	for _, c := range cs {
		s.add(c)
		s.policy.OnJoin(s, c)
	}
}

func seeded(seed uint64) *dice.Roller {
	return dice.NewLoggedRoller(dice.NewSeededSource(seed), zap.NewNop())
}
