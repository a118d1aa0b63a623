package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/game/match"
)

// ErrRateLimited is returned when a participant creates sessions too quickly.
var ErrRateLimited = errors.New("too many session requests")

// DefaultNotifyTimeout bounds a single notification delivery.
const DefaultNotifyTimeout = 5 * time.Second

// minLimiterIdle is the shortest time a participant's limiter is kept unused.
const minLimiterIdle = time.Minute

type participantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HandlerConfig configures an ArenaHandler.
type HandlerConfig struct {
	// TurnTimeout surrenders humans who have not submitted in time; zero disables it.
	TurnTimeout time.Duration
	// CreateRate is the sustained Join rate per participant in requests per
	// second; zero disables limiting.
	CreateRate  float64
	CreateBurst int
	// QueueSize > 0 buffers events for the goroutine running Start; zero
	// handles events on the goroutine that produced them.
	QueueSize     int
	NotifyTimeout time.Duration
}

// DecisionRequest is a client turn submission with unparsed areas.
type DecisionRequest struct {
	Attack          string   `json:"attack"`
	Defense         []string `json:"defense"`
	AttackCompanion bool     `json:"attack_companion"`
	CompanionArea   string   `json:"companion_area"`
	Target          string   `json:"target"`
}

// Decision parses r into a TurnDecision.
//
// Postcondition: Returns a validated decision or an error wrapping combat.ErrInvalidDecision.
func (r DecisionRequest) Decision() (combat.TurnDecision, error) {
	attack, err := combat.ParseArea(r.Attack)
	if err != nil {
		return combat.TurnDecision{}, fmt.Errorf("%w: %v", combat.ErrInvalidDecision, err)
	}
	dec := combat.TurnDecision{
		Attack:          attack,
		AttackCompanion: r.AttackCompanion,
		Target:          r.Target,
	}
	for _, s := range r.Defense {
		a, err := combat.ParseArea(s)
		if err != nil {
			return combat.TurnDecision{}, fmt.Errorf("%w: %v", combat.ErrInvalidDecision, err)
		}
		dec.Defense = append(dec.Defense, a)
	}
	if r.CompanionArea != "" {
		a, err := combat.ParseArea(r.CompanionArea)
		if err != nil {
			return combat.TurnDecision{}, fmt.Errorf("%w: %v", combat.ErrInvalidDecision, err)
		}
		dec.CompanionArea = a
	}
	return dec, dec.Validate()
}

// ArenaHandler owns the orchestrator and serves the inbound arena calls.
//
// timerMu guards the per-session turn timers; limMu the per-participant limiters.
type ArenaHandler struct {
	orch      *match.Orchestrator
	snapshots SnapshotLoader
	outcomes  *OutcomeAdapter
	notifier  Notifier
	clock     match.Clock
	cfg       HandlerConfig
	logger    *zap.Logger

	limMu     sync.Mutex
	limiters  map[string]*participantLimiter
	limIdle   time.Duration
	lastSweep time.Time

	timerMu sync.Mutex
	timers  map[string]match.Timer

	queue    chan match.Event
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewArenaHandler creates an ArenaHandler and the orchestrator it drives.
// opts.Listener is replaced by the handler's own event dispatch.
//
// Precondition: snapshots, persister, notifier and opts.Ghosts must be non-nil.
// Postcondition: Returns a handler with no live sessions.
func NewArenaHandler(
	cfg HandlerConfig,
	opts match.Options,
	snapshots SnapshotLoader,
	persister OutcomePersister,
	notifier Notifier,
) *ArenaHandler {
	if snapshots == nil || notifier == nil {
		panic("gameserver.NewArenaHandler: snapshots and notifier must not be nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = match.RealClock()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	h := &ArenaHandler{
		snapshots: snapshots,
		outcomes:  NewOutcomeAdapter(persister, opts.Logger),
		notifier:  notifier,
		clock:     opts.Clock,
		cfg:       cfg,
		logger:    opts.Logger,
		limiters:  make(map[string]*participantLimiter),
		timers:    make(map[string]match.Timer),
		stopped:   make(chan struct{}),
	}
	if cfg.CreateRate > 0 {
		// A limiter idle long enough to refill its burst is equal to a new one.
		refill := time.Duration(float64(max(cfg.CreateBurst, 1)) / cfg.CreateRate * float64(time.Second))
		h.limIdle = max(refill, minLimiterIdle)
		h.lastSweep = h.clock.Now()
	}
	if cfg.QueueSize > 0 {
		h.queue = make(chan match.Event, cfg.QueueSize)
		opts.Listener = h.enqueue
	} else {
		opts.Listener = h.HandleEvent
	}
	h.orch = match.NewOrchestrator(opts)
	return h
}

// Orchestrator returns the orchestrator driven by h.
func (h *ArenaHandler) Orchestrator() *match.Orchestrator { return h.orch }

// Join queues participantID for mode using its stored combat snapshot.
//
// Postcondition: Returns the session id, ErrRateLimited, a snapshot loading
// error, or an orchestrator error.
func (h *ArenaHandler) Join(ctx context.Context, mode match.Mode, participantID string) (string, error) {
	if participantID == "" {
		return "", match.ErrNotParticipant
	}
	if !h.allow(participantID) {
		return "", ErrRateLimited
	}
	snap, err := h.snapshots.LoadCombatSnapshot(ctx, participantID)
	if err != nil {
		return "", fmt.Errorf("loading snapshot of %s: %w", participantID, err)
	}
	snap.ParticipantID = participantID
	id, err := h.orch.Join(mode, snap)
	if err != nil {
		return "", err
	}
	h.logger.Info("participant joined",
		zap.String("session_id", id),
		zap.String("mode", string(mode)),
		zap.String("participant", participantID),
	)
	return id, nil
}

// Confirm marks a 1v1 participant ready.
func (h *ArenaHandler) Confirm(participantID string) error {
	return h.orch.Confirm(participantID)
}

// Submit parses and records a turn decision.
func (h *ArenaHandler) Submit(participantID string, req DecisionRequest) error {
	dec, err := req.Decision()
	if err != nil {
		return err
	}
	return h.orch.Submit(participantID, dec)
}

// Surrender forfeits the participant's match.
func (h *ArenaHandler) Surrender(participantID string) error {
	return h.orch.Surrender(participantID)
}

// Cancel withdraws the participant from a pending session.
func (h *ArenaHandler) Cancel(participantID string) error {
	return h.orch.Cancel(participantID)
}

// Leave removes the participant from its session.
func (h *ArenaHandler) Leave(participantID string) error {
	return h.orch.Leave(participantID)
}

// Snapshot returns the public state of a session.
func (h *ArenaHandler) Snapshot(sessionID string) (*structpb.Struct, error) {
	return h.orch.Snapshot(sessionID)
}

// SessionOf returns the session participantID is in.
func (h *ArenaHandler) SessionOf(participantID string) (string, bool) {
	return h.orch.SessionOf(participantID)
}

func (h *ArenaHandler) allow(participantID string) bool {
	if h.cfg.CreateRate <= 0 {
		return true
	}
	now := h.clock.Now()
	h.limMu.Lock()
	if now.Sub(h.lastSweep) >= h.limIdle {
		h.sweepLimitersLocked(now)
	}
	pl, ok := h.limiters[participantID]
	if !ok {
		pl = &participantLimiter{limiter: rate.NewLimiter(rate.Limit(h.cfg.CreateRate), max(h.cfg.CreateBurst, 1))}
		h.limiters[participantID] = pl
	}
	pl.lastSeen = now
	h.limMu.Unlock()
	return pl.limiter.AllowN(now, 1)
}

// sweepLimitersLocked drops the limiters unused for longer than limIdle.
func (h *ArenaHandler) sweepLimitersLocked(now time.Time) {
	cutoff := now.Add(-h.limIdle)
	for id, pl := range h.limiters {
		if pl.lastSeen.Before(cutoff) {
			delete(h.limiters, id)
		}
	}
	h.lastSweep = now
}

// Limiters returns the number of participants with a live rate limiter.
func (h *ArenaHandler) Limiters() int {
	h.limMu.Lock()
	defer h.limMu.Unlock()
	return len(h.limiters)
}

func (h *ArenaHandler) enqueue(ev match.Event) {
	select {
	case <-h.stopped:
		h.HandleEvent(ev)
		return
	default:
	}
	select {
	case h.queue <- ev:
	case <-h.stopped:
		h.HandleEvent(ev)
	}
}

// HandleEvent applies the controller policies to one orchestrator event:
// turn timers, outcome persistence and participant notification.
func (h *ArenaHandler) HandleEvent(ev match.Event) {
	switch {
	case ev.Kind == match.EventStarted:
		h.armTurnTimer(ev.SessionID, 1)
	case ev.Kind == match.EventTurnResults:
		h.armTurnTimer(ev.SessionID, ev.Turn+1)
	case ev.Kind.Terminal():
		h.disarmTurnTimer(ev.SessionID)
	}

	if ev.Kind == match.EventFinished {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.NotifyTimeout)
		_ = h.outcomes.Settle(ctx, ev)
		cancel()
	}
	h.notify(ev)
}

func (h *ArenaHandler) notify(ev match.Event) {
	for _, id := range ev.Recipients {
		if ghost.IsGhostID(id) {
			continue
		}
		params, err := EventParams(ev, id)
		if err != nil {
			h.logger.Error("encoding event",
				zap.String("session_id", ev.SessionID),
				zap.String("participant", id),
				zap.String("event", string(ev.Kind)),
				zap.Error(err),
			)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.NotifyTimeout)
		if err := h.notifier.Notify(ctx, id, string(ev.Kind), params); err != nil {
			h.logger.Warn("notifying participant",
				zap.String("session_id", ev.SessionID),
				zap.String("participant", id),
				zap.String("event", string(ev.Kind)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// armTurnTimer replaces the session's turn timer with one for turn.
func (h *ArenaHandler) armTurnTimer(sessionID string, turn int) {
	if h.cfg.TurnTimeout <= 0 {
		return
	}
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if old, ok := h.timers[sessionID]; ok {
		old.Stop()
	}
	h.timers[sessionID] = h.clock.AfterFunc(h.cfg.TurnTimeout, func() {
		h.expireTurn(sessionID, turn)
	})
}

func (h *ArenaHandler) disarmTurnTimer(sessionID string) {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if t, ok := h.timers[sessionID]; ok {
		t.Stop()
		delete(h.timers, sessionID)
	}
}

func (h *ArenaHandler) expireTurn(sessionID string, turn int) {
	h.logger.Debug("turn timeout",
		zap.String("session_id", sessionID),
		zap.Int("turn", turn),
	)
	if err := h.orch.ExpireTurn(sessionID, turn); err != nil && !errors.Is(err, match.ErrSessionNotFound) {
		h.logger.Warn("expiring turn",
			zap.String("session_id", sessionID),
			zap.Int("turn", turn),
			zap.Error(err),
		)
	}
}

// ActiveTimers returns the number of sessions with an armed turn timer.
func (h *ArenaHandler) ActiveTimers() int {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	return len(h.timers)
}

// Start drains the event queue until ctx is done. Without a queue it only
// waits for ctx.
func (h *ArenaHandler) Start(ctx context.Context) error {
	h.logger.Info("arena handler started", zap.Int("queue_size", h.cfg.QueueSize))
	if h.queue == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-h.queue:
			h.HandleEvent(ev)
		}
	}
}

// Stop cancels every live session, handles the resulting events and releases
// all turn timers.
//
// Postcondition: No session and no turn timer remains.
func (h *ArenaHandler) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stopped) })
	h.orch.Shutdown()
	if h.queue != nil {
	drain:
		for {
			select {
			case ev := <-h.queue:
				h.HandleEvent(ev)
			case <-ctx.Done():
				return ctx.Err()
			default:
				break drain
			}
		}
	}
	h.timerMu.Lock()
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
	h.timerMu.Unlock()
	h.logger.Info("arena handler stopped")
	return nil
}

// EventParams renders the notification parameters of ev for recipient: the
// session id, mode and turn, the event parameters, the session state, the
// turn outcomes, and the recipient's rewards when present.
func EventParams(ev match.Event, recipient string) (*structpb.Struct, error) {
	fields := map[string]any{
		"session_id": ev.SessionID,
		"mode":       string(ev.Mode),
		"turn":       ev.Turn,
	}
	if len(ev.Params) > 0 {
		fields["params"] = ev.Params
	}
	if len(ev.Outcomes) > 0 {
		v, err := jsonValue(ev.Outcomes)
		if err != nil {
			return nil, fmt.Errorf("encoding outcomes: %w", err)
		}
		fields["outcomes"] = v
	}
	if r, ok := ev.Rewards[recipient]; ok {
		v, err := jsonValue(r)
		if err != nil {
			return nil, fmt.Errorf("encoding rewards: %w", err)
		}
		fields["rewards"] = v
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	if ev.State != nil {
		out.Fields["state"] = structpb.NewStructValue(ev.State)
	}
	return out, nil
}

// jsonValue converts a tagged struct into structpb-compatible values.
func jsonValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
