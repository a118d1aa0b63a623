package gameserver_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/gameserver"
)

// fixedBrain always strikes the head.
type fixedBrain struct{}

func (fixedBrain) Automatic() bool { return true }

func (fixedBrain) Decide(_, _ *combat.Combatant) combat.TurnDecision {
	return combat.TurnDecision{Attack: combat.AreaHead}
}

// weakGhosts builds 20-health ghosts that hit for 1.
type weakGhosts struct {
	mu sync.Mutex
	n  int
}

func (g *weakGhosts) Build(_ match.Mode, against *combat.Combatant) *combat.Combatant {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	id := fmt.Sprintf("%s%d", ghost.IDPrefix, g.n)
	level := 1
	if against != nil {
		level = against.Level()
	}
	snap := combat.CharacterSnapshot{
		ParticipantID: id,
		Name:          "Ghost",
		Level:         level,
		MinDamage:     1,
		MaxDamage:     1,
		MaxHealth:     20,
	}
	return combat.NewCombatant(id, combat.KindGhost, snap, fixedBrain{})
}

type notification struct {
	participant string
	key         string
	params      *structpb.Struct
}

// recordingNotifier captures every notification; fail makes Notify error.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	fail bool
}

func (n *recordingNotifier) Notify(_ context.Context, participantID, key string, params *structpb.Struct) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("notifier down")
	}
	n.sent = append(n.sent, notification{participant: participantID, key: key, params: params})
	return nil
}

func (n *recordingNotifier) keys(participant string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.participant == participant {
			out = append(out, s.key)
		}
	}
	return out
}

func (n *recordingNotifier) last(participant, key string) (notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].participant == participant && n.sent[i].key == key {
			return n.sent[i], true
		}
	}
	return notification{}, false
}

func (n *recordingNotifier) recipients() map[string]bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]bool)
	for _, s := range n.sent {
		out[s.participant] = true
	}
	return out
}

func testTimings() match.Timings {
	return match.Timings{
		SingleWaitMin:     time.Second,
		SingleWaitMax:     time.Second,
		ConfirmTimeout:    10 * time.Second,
		AutostartInterval: 100 * time.Second,
		AutostartTimeout:  60 * time.Second,
		TeamSize:          2,
		RoyalCap:          4,
	}
}

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

type fixture struct {
	handler   *gameserver.ArenaHandler
	clock     *match.ManualClock
	snapshots *gameserver.StaticSnapshots
	outcomes  *gameserver.MemoryOutcomes
	notifier  *recordingNotifier
	hub       *gameserver.EventHub
}

func newFixture(t *testing.T, cfg gameserver.HandlerConfig, logger *zap.Logger) *fixture {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &fixture{
		clock:     match.NewManualClock(time.Unix(1_700_000_000, 0)),
		snapshots: gameserver.NewStaticSnapshots(),
		outcomes:  gameserver.NewMemoryOutcomes(),
		notifier:  &recordingNotifier{},
	}
	f.hub = gameserver.NewEventHub(f.notifier, 64, logger)
	f.handler = gameserver.NewArenaHandler(cfg, match.Options{
		Ghosts:  &weakGhosts{},
		Roller:  dice.NewLoggedRoller(dice.NewSeededSource(42), zap.NewNop()),
		Clock:   f.clock,
		Timings: testTimings(),
		Logger:  logger,
	}, f.snapshots, f.outcomes, f.hub)
	return f
}
