package match

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/reward"
)

// EventKind names an outbound lifecycle event.
type EventKind string

const (
	EventCreated         EventKind = "created"
	EventOpponentPending EventKind = "opponent_pending"
	EventOpponentFound   EventKind = "opponent_found"
	EventStarted         EventKind = "started"
	EventTurnResults     EventKind = "turn_results"
	// EventTurnRepeat tells a participant the turn is still waiting on others.
	EventTurnRepeat    EventKind = "turn_repeat"
	EventStatusUpdated EventKind = "status_updated"
	EventFinished      EventKind = "finished"
	// EventRefused ends a session that never started because a participant did not confirm.
	EventRefused  EventKind = "refused"
	EventCanceled EventKind = "canceled"
)

// Terminal reports whether the event ends the session.
func (k EventKind) Terminal() bool {
	return k == EventFinished || k == EventRefused || k == EventCanceled
}

// Event is one outbound transition, carrying the session state at the time it
// was produced.
type Event struct {
	Kind       EventKind
	SessionID  string
	Mode       Mode
	Turn       int
	Recipients []string
	Params     map[string]any
	// Outcomes is set on turn_results.
	Outcomes []combat.TurnOutcome
	// Rewards is set on finished, keyed by participant id.
	Rewards map[string]reward.Rewards
	State   *structpb.Struct
}

// Listener receives events after the session lock has been released.
type Listener func(Event)
