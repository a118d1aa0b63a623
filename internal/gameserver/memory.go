package gameserver

import (
	"context"
	"sync"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

// StaticSnapshots is an in-memory SnapshotLoader used in ephemeral mode.
// Unknown participants get a level-1 default fighter unless Strict is set.
type StaticSnapshots struct {
	Strict bool

	mu    sync.RWMutex
	snaps map[string]combat.CharacterSnapshot
}

// NewStaticSnapshots creates an empty StaticSnapshots.
func NewStaticSnapshots() *StaticSnapshots {
	return &StaticSnapshots{snaps: make(map[string]combat.CharacterSnapshot)}
}

// Put registers snap under snap.ParticipantID, replacing any previous entry.
func (s *StaticSnapshots) Put(snap combat.CharacterSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ParticipantID] = snap
}

// LoadCombatSnapshot implements SnapshotLoader.
//
// Postcondition: Returns ErrSnapshotNotFound only when Strict is set.
func (s *StaticSnapshots) LoadCombatSnapshot(_ context.Context, participantID string) (combat.CharacterSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.snaps[participantID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if s.Strict {
		return combat.CharacterSnapshot{}, postgres.ErrSnapshotNotFound
	}
	snap = ghost.DefaultSnapshot(1)
	snap.ParticipantID = participantID
	snap.Name = participantID
	return snap, nil
}

type outcomeKey struct {
	session     string
	participant string
}

// MemoryOutcomes is an in-memory OutcomePersister used in ephemeral mode and tests.
type MemoryOutcomes struct {
	mu       sync.Mutex
	outcomes map[outcomeKey]postgres.Outcome
	order    []outcomeKey
}

// NewMemoryOutcomes creates an empty MemoryOutcomes.
func NewMemoryOutcomes() *MemoryOutcomes {
	return &MemoryOutcomes{outcomes: make(map[outcomeKey]postgres.Outcome)}
}

// PersistOutcome records o once per session and participant.
func (m *MemoryOutcomes) PersistOutcome(_ context.Context, o postgres.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := outcomeKey{session: o.SessionID, participant: o.ParticipantID}
	if _, dup := m.outcomes[k]; dup {
		return nil
	}
	m.outcomes[k] = o
	m.order = append(m.order, k)
	return nil
}

// All returns the recorded outcomes in insertion order.
func (m *MemoryOutcomes) All() []postgres.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]postgres.Outcome, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.outcomes[k])
	}
	return out
}
