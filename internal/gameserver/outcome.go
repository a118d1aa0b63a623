package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/reward"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

// DefaultPersistConcurrency bounds the concurrent writes of one settlement.
const DefaultPersistConcurrency = 4

// OutcomeAdapter persists the rewards of a finished session.
type OutcomeAdapter struct {
	persister OutcomePersister
	limit     int
	logger    *zap.Logger
}

// NewOutcomeAdapter creates an OutcomeAdapter.
//
// Precondition: persister must be non-nil.
// Postcondition: Returns a non-nil OutcomeAdapter.
func NewOutcomeAdapter(persister OutcomePersister, logger *zap.Logger) *OutcomeAdapter {
	if persister == nil {
		panic("gameserver.NewOutcomeAdapter: persister must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutcomeAdapter{persister: persister, limit: DefaultPersistConcurrency, logger: logger}
}

// Settle persists every human participant's rewards carried by a finished
// event. Each participant is written independently; one failure does not stop
// the others. Events of any other kind are ignored.
//
// Postcondition: Returns the joined persistence errors, each already logged.
func (a *OutcomeAdapter) Settle(ctx context.Context, ev match.Event) error {
	if ev.Kind != match.EventFinished {
		return nil
	}
	var (
		g    errgroup.Group
		errs = make([]error, 0, len(ev.Rewards))
		out  = make(chan error, len(ev.Rewards))
	)
	g.SetLimit(a.limit)
	for id, rw := range ev.Rewards {
		if ghost.IsGhostID(id) {
			continue
		}
		o := postgres.Outcome{
			SessionID:     ev.SessionID,
			ParticipantID: id,
			Mode:          ev.Mode,
			Result:        ResultOf(rw),
			Turns:         ev.Turn,
			Rewards:       rw,
		}
		g.Go(func() error {
			if err := a.persister.PersistOutcome(ctx, o); err != nil {
				a.logger.Error("persisting outcome",
					zap.String("session_id", o.SessionID),
					zap.String("participant", o.ParticipantID),
					zap.String("mode", string(o.Mode)),
					zap.Error(err),
				)
				out <- fmt.Errorf("participant %s: %w", o.ParticipantID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(out)
	for err := range out {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ResultOf derives the match result from the reward flags.
func ResultOf(r reward.Rewards) reward.Result {
	switch {
	case r.Flags.Win:
		return reward.ResultWin
	case r.Flags.Draw:
		return reward.ResultDraw
	default:
		return reward.ResultLose
	}
}
