// Package gameserver is the controller layer between clients and the match
// orchestrator: it loads snapshots, rate-limits session creation, enforces the
// per-turn timeout, persists outcomes and delivers notifications.
package gameserver

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

// SnapshotLoader returns the combat snapshot of a participant.
type SnapshotLoader interface {
	LoadCombatSnapshot(ctx context.Context, participantID string) (combat.CharacterSnapshot, error)
}

// OutcomePersister stores one participant's match result and reward deltas.
// Persisting the same session and participant twice must be a no-op.
type OutcomePersister interface {
	PersistOutcome(ctx context.Context, o postgres.Outcome) error
}

// Notifier delivers an event to a single participant.
type Notifier interface {
	Notify(ctx context.Context, participantID, key string, params *structpb.Struct) error
}
