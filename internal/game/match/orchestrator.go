package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/reward"
)

var (
	// ErrSessionNotFound is returned when no session has the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotParticipant is returned for calls from someone not taking part in a session.
	ErrNotParticipant = errors.New("not a participant of this session")
	// ErrAlreadyQueued is returned when a participant joins while already in a session.
	ErrAlreadyQueued = errors.New("participant is already in a session")
	// ErrSessionClosed is returned when the session state does not allow the call.
	ErrSessionClosed = errors.New("session does not accept this call in its current state")
	// ErrTurnResolving is returned for submissions while a turn is being published.
	ErrTurnResolving = errors.New("turn is being resolved")
	// ErrUnknownMode is returned for a mode with no registered policy.
	ErrUnknownMode = errors.New("unknown arena mode")
)

// GhostFactory builds AI opponents on demand.
type GhostFactory interface {
	// Build returns a ghost for mode scaled against against. It never returns nil.
	Build(mode Mode, against *combat.Combatant) *combat.Combatant
}

// Options configures an Orchestrator. Zero fields take defaults, except Ghosts
// which is required.
type Options struct {
	Policies []ModePolicy
	Ghosts   GhostFactory
	Roller   *dice.Roller
	Rewards  *reward.Calculator
	Clock    Clock
	Timings  Timings
	Listener Listener
	Logger   *zap.Logger
}

// Orchestrator is the registry of live sessions and drives their lifecycle.
// Each session is guarded by its own mutex; the registry by an RWMutex. Events
// are dispatched to the listener after the session lock is released.
type Orchestrator struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	open     map[Mode]*Session
	members  map[string]*Session

	policies map[Mode]ModePolicy
	ghosts   GhostFactory
	roller   *dice.Roller
	rewards  *reward.Calculator
	clock    Clock
	timings  Timings
	listener Listener
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
//
// Precondition: opts.Ghosts must be non-nil.
// Postcondition: Returns an Orchestrator with no sessions.
func NewOrchestrator(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	roller := opts.Roller
	if roller == nil {
		roller = dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	}
	rewards := opts.Rewards
	if rewards == nil {
		rewards = reward.NewCalculator(roller)
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	timings := opts.Timings
	if timings == (Timings{}) {
		timings = DefaultTimings()
	}
	policies := opts.Policies
	if len(policies) == 0 {
		policies = DefaultPolicies(timings)
	}
	listener := opts.Listener
	if listener == nil {
		listener = func(Event) {}
	}
	o := &Orchestrator{
		sessions: make(map[string]*Session),
		open:     make(map[Mode]*Session),
		members:  make(map[string]*Session),
		policies: make(map[Mode]ModePolicy, len(policies)),
		ghosts:   opts.Ghosts,
		roller:   roller,
		rewards:  rewards,
		clock:    clock,
		timings:  timings,
		listener: listener,
		logger:   logger,
	}
	for _, p := range policies {
		o.policies[p.Mode()] = p
	}
	return o
}

// Join queues the participant described by snap for mode. It joins the open
// session of that mode or creates one.
//
// Precondition: snap.ParticipantID must be non-empty.
// Postcondition: Returns the session id, or ErrAlreadyQueued / ErrUnknownMode.
func (o *Orchestrator) Join(mode Mode, snap combat.CharacterSnapshot) (string, error) {
	policy, ok := o.policies[mode]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	id := snap.ParticipantID
	if id == "" {
		return "", fmt.Errorf("%w: empty participant id", ErrNotParticipant)
	}

	o.mu.Lock()
	if _, busy := o.members[id]; busy {
		o.mu.Unlock()
		return "", ErrAlreadyQueued
	}
	s, created := o.openSessionLocked(policy)
	o.members[id] = s
	o.mu.Unlock()
	defer o.release(s)

	c := combat.NewCombatant(id, combat.KindHuman, snap, nil)
	s.add(c)
	policy.OnJoin(s, c)
	o.logger.Info("participant joined",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.String("participant", id),
		zap.Int("participants", s.Len()),
	)

	if created {
		o.schedulePendingLocked(s)
		s.emit(EventCreated, nil)
	} else {
		s.emit(EventStatusUpdated, map[string]any{"joined": id})
	}
	if !o.tryStartLocked(s) && s.state == StatePending && !s.confirming {
		s.emitTo([]string{id}, EventOpponentPending, nil)
	}
	return s.ID, nil
}

// openSessionLocked returns the locked open session for policy's mode,
// creating one when none accepts joins. Caller holds o.mu.
func (o *Orchestrator) openSessionLocked(policy ModePolicy) (*Session, bool) {
	if s := o.open[policy.Mode()]; s != nil {
		s.mu.Lock()
		if s.accepting() {
			return s, false
		}
		s.mu.Unlock()
	}
	s := newSession(uuid.NewString(), policy, NewScheduler(o.clock), o.clock.Now())
	o.sessions[s.ID] = s
	o.open[policy.Mode()] = s
	s.mu.Lock()
	return s, true
}

// Confirm marks a 1v1 participant ready. The match starts once both sides confirmed.
func (o *Orchestrator) Confirm(participantID string) error {
	s, c, err := o.lockParticipant(participantID)
	if err != nil {
		return err
	}
	defer o.release(s)
	if s.state != StatePending || !s.confirming {
		return ErrSessionClosed
	}
	c.Ready = true
	s.emit(EventStatusUpdated, map[string]any{"confirmed": c.ID})
	o.tryStartLocked(s)
	return nil
}

// Submit records a turn decision. The turn resolves as soon as every active
// participant has a decision.
//
// Postcondition: Returns ErrNotParticipant for participants that are out of the match.
func (o *Orchestrator) Submit(participantID string, dec combat.TurnDecision) error {
	if dec.Surrender {
		return o.Surrender(participantID)
	}
	if err := dec.Validate(); err != nil {
		return err
	}
	s, c, err := o.lockParticipant(participantID)
	if err != nil {
		return err
	}
	defer o.release(s)
	if s.state != StateStarted {
		return ErrSessionClosed
	}
	if s.resolving {
		return ErrTurnResolving
	}
	if !c.Active() {
		return ErrNotParticipant
	}
	if dec.Target != "" && s.Participant(dec.Target) == nil {
		return fmt.Errorf("%w: unknown target %q", combat.ErrInvalidDecision, dec.Target)
	}
	d := dec
	c.Decision = &d
	if s.decisionsComplete() {
		o.resolveLocked(s)
		return nil
	}
	waiting := 0
	for _, a := range s.Active() {
		if a.Decision == nil {
			waiting++
		}
	}
	s.emitTo([]string{c.ID}, EventTurnRepeat, map[string]any{"waiting": waiting})
	return nil
}

// Surrender forfeits the match for participantID.
func (o *Orchestrator) Surrender(participantID string) error {
	s, c, err := o.lockParticipant(participantID)
	if err != nil {
		return err
	}
	defer o.release(s)
	if s.state != StateStarted {
		return ErrSessionClosed
	}
	if c.Out() {
		return nil
	}
	c.Surrender(s.turn)
	s.emit(EventStatusUpdated, map[string]any{"surrendered": c.ID})
	o.advanceLocked(s)
	return nil
}

// Cancel withdraws participantID from a session that has not started. In 1v1
// the whole session is canceled.
func (o *Orchestrator) Cancel(participantID string) error {
	s, c, err := o.lockParticipant(participantID)
	if err != nil {
		return err
	}
	defer o.release(s)
	if s.state != StatePending {
		return ErrSessionClosed
	}
	if s.policy.RequiresConfirmation() {
		o.cancelLocked(s, EventCanceled, "canceled")
		return nil
	}
	o.leavePendingLocked(s, c)
	return nil
}

// Leave removes participantID. Before the start this equals Cancel; after it
// a standing participant forfeits and the mode may abort the match. A dead or
// surrendered participant is only released.
func (o *Orchestrator) Leave(participantID string) error {
	s, c, err := o.lockParticipant(participantID)
	if err != nil {
		return err
	}
	defer o.release(s)
	if s.state == StatePending {
		if s.confirming {
			o.cancelLocked(s, EventCanceled, "left")
			return nil
		}
		o.leavePendingLocked(s, c)
		return nil
	}
	if c.Departed {
		return nil
	}
	// A participant already out of the fight keeps its result and no longer
	// counts toward the balance of the field.
	wasOut := c.Out()
	c.Departed = true
	if !wasOut {
		c.Surrender(s.turn)
	}
	s.released = append(s.released, c.ID)
	s.emit(EventStatusUpdated, map[string]any{"left": c.ID})
	if wasOut {
		return nil
	}
	if s.policy.OnLeave(s, c) {
		o.logger.Info("aborting unbalanced session",
			zap.String("session_id", s.ID),
			zap.String("mode", string(s.Mode)),
			zap.Int("turn", s.turn),
		)
		o.cancelLocked(s, EventCanceled, "imbalance")
		return nil
	}
	o.advanceLocked(s)
	return nil
}

// ExpireTurn surrenders every human who has not submitted for turn. It is the
// controller's per-turn timeout and is a no-op once the turn has moved on.
func (o *Orchestrator) ExpireTurn(sessionID string, turn int) error {
	o.mu.RLock()
	s := o.sessions[sessionID]
	o.mu.RUnlock()
	if s == nil {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer o.release(s)
	if s.state != StateStarted || s.turn != turn || s.resolving {
		return nil
	}
	for _, c := range s.Active() {
		if c.Decision == nil && !c.Source.Automatic() {
			c.Surrender(s.turn)
			s.emit(EventStatusUpdated, map[string]any{"surrendered": c.ID, "reason": "timeout"})
		}
	}
	o.advanceLocked(s)
	return nil
}

// Snapshot returns the public state of a session.
func (o *Orchestrator) Snapshot(sessionID string) (*structpb.Struct, error) {
	o.mu.RLock()
	s := o.sessions[sessionID]
	o.mu.RUnlock()
	if s == nil {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return structpb.NewStruct(s.stateMap())
}

// SessionOf returns the id of the session participantID is in.
func (o *Orchestrator) SessionOf(participantID string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.members[participantID]
	if !ok {
		return "", false
	}
	return s.ID, true
}

// Len returns the number of live sessions.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// Shutdown cancels every live session.
func (o *Orchestrator) Shutdown() {
	o.mu.RLock()
	live := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		live = append(live, s)
	}
	o.mu.RUnlock()
	for _, s := range live {
		s.mu.Lock()
		if !s.state.Terminal() {
			o.cancelLocked(s, EventCanceled, "shutdown")
		}
		o.release(s)
	}
}

// lockParticipant returns the locked session and combatant of participantID.
func (o *Orchestrator) lockParticipant(id string) (*Session, *combat.Combatant, error) {
	o.mu.RLock()
	s := o.members[id]
	o.mu.RUnlock()
	if s == nil {
		return nil, nil, ErrNotParticipant
	}
	s.mu.Lock()
	c := s.participants[id]
	if c == nil || s.state.Terminal() {
		s.mu.Unlock()
		return nil, nil, ErrNotParticipant
	}
	return s, c, nil
}

// release unlocks s, prunes the registry and dispatches queued events.
func (o *Orchestrator) release(s *Session) {
	events := s.outbox
	s.outbox = nil
	released := s.released
	s.released = nil
	terminal := s.state.Terminal()
	closed := !s.accepting()
	s.mu.Unlock()

	if len(released) > 0 || closed {
		o.mu.Lock()
		for _, id := range released {
			if o.members[id] == s {
				delete(o.members, id)
			}
		}
		if closed && o.open[s.Mode] == s {
			delete(o.open, s.Mode)
		}
		if terminal {
			delete(o.sessions, s.ID)
		}
		o.mu.Unlock()
	}
	for _, e := range events {
		o.listener(e)
	}
}

// schedule registers a session timer whose callback runs under the session
// lock and does nothing once the session is terminal.
func (o *Orchestrator) schedule(s *Session, name string, d time.Duration, fn func(*Session)) {
	s.sched.Schedule(name, d, func() {
		s.mu.Lock()
		if s.state.Terminal() {
			s.mu.Unlock()
			return
		}
		fn(s)
		o.release(s)
	})
}

func (o *Orchestrator) schedulePendingLocked(s *Session) {
	s.plan = s.policy.Plan(o.timings, o.roller)
	if s.plan.FillAfter > 0 {
		o.schedule(s, timerFill, s.plan.FillAfter, o.onFillLocked)
	}
	if s.plan.LockAfter > 0 {
		s.autostartAt = s.CreatedAt.Add(s.plan.LockAfter)
		o.schedule(s, timerLock, s.plan.LockAfter, o.onLockLocked)
	}
}

func (o *Orchestrator) onFillLocked(s *Session) {
	if s.state != StatePending || s.confirming {
		return
	}
	o.fillLocked(s, false)
	if o.tryStartLocked(s) || s.confirming {
		return
	}
	if s.plan.FillEvery > 0 {
		o.schedule(s, timerFill, s.plan.FillEvery, o.onFillLocked)
	}
}

func (o *Orchestrator) onLockLocked(s *Session) {
	if s.state != StatePending {
		return
	}
	s.locked = true
	s.sched.Cancel(timerFill)
	o.fillLocked(s, true)
	if !o.tryStartLocked(s) {
		o.cancelLocked(s, EventRefused, "not_enough_participants")
	}
}

func (o *Orchestrator) onConfirmTimeoutLocked(s *Session) {
	if s.state != StatePending {
		return
	}
	o.cancelLocked(s, EventRefused, "confirm_timeout")
}

// fillLocked adds the ghosts the policy asks for.
func (o *Orchestrator) fillLocked(s *Session, final bool) {
	for _, req := range s.policy.Fill(s, final) {
		g := o.ghosts.Build(s.Mode, req.Against)
		g.TeamID = req.TeamID
		g.Ready = true
		s.add(g)
		s.policy.OnJoin(s, g)
		o.logger.Debug("ghost joined",
			zap.String("session_id", s.ID),
			zap.String("mode", string(s.Mode)),
			zap.String("ghost", g.ID),
			zap.Int("level", g.Level()),
			zap.String("team", g.TeamID),
		)
		s.emit(EventStatusUpdated, map[string]any{"joined": g.ID, "ghost": true})
	}
}

// tryStartLocked starts the session when the policy allows it. Confirming
// modes first enter the confirmation step once full.
func (o *Orchestrator) tryStartLocked(s *Session) bool {
	if s.state != StatePending {
		return false
	}
	if s.policy.RequiresConfirmation() && s.Len() >= s.policy.Capacity() && !s.confirming {
		s.confirming = true
		s.sched.Cancel(timerFill)
		s.policy.AssignOpponents(s, o.roller)
		s.emit(EventOpponentFound, nil)
		if o.timings.ConfirmTimeout > 0 {
			o.schedule(s, timerConfirm, o.timings.ConfirmTimeout, o.onConfirmTimeoutLocked)
		}
	}
	if !s.policy.ReadyToStart(s) {
		return false
	}
	o.startLocked(s)
	return true
}

func (o *Orchestrator) startLocked(s *Session) {
	for _, name := range []string{timerFill, timerLock, timerConfirm} {
		s.sched.Cancel(name)
	}
	s.state = StateStarted
	s.confirming = false
	s.turn = 1
	s.policy.AssignOpponents(s, o.roller)
	o.beginTurnLocked(s)
	o.logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.Int("participants", s.Len()),
		zap.Int("ghosts", s.fillCount),
	)
	s.emit(EventStarted, nil)
}

// beginTurnLocked clears last turn's decisions and lets ghosts decide.
func (o *Orchestrator) beginTurnLocked(s *Session) {
	for _, c := range s.Participants() {
		c.ResetTurn()
		if c.Out() || !c.Source.Automatic() {
			continue
		}
		opp := s.opponentOf(c)
		c.Idle = opp == nil
		if c.Idle {
			continue
		}
		d := c.Source.Decide(c, opp)
		c.Decision = &d
	}
}

// advanceLocked reacts to a participant dropping out mid-turn.
func (o *Orchestrator) advanceLocked(s *Session) {
	if s.resolving || s.state != StateStarted {
		return
	}
	if v := s.policy.CheckWinCondition(s); v.Finished {
		o.finishLocked(s, v)
		return
	}
	s.policy.OnTurnResolved(s, o.roller)
	if s.decisionsComplete() {
		o.resolveLocked(s)
	}
}

// resolveLocked resolves complete turns. With a publish delay the result is
// published from a timer; without one, turns made entirely of ghost decisions
// keep resolving in this loop.
func (o *Orchestrator) resolveLocked(s *Session) {
	for {
		o.computeTurnLocked(s)
		if o.timings.TurnDelay > 0 {
			s.resolving = true
			turn := s.turn
			o.schedule(s, timerPublish, o.timings.TurnDelay, func(s *Session) {
				if o.publishLocked(s, turn) {
					o.resolveLocked(s)
				}
			})
			return
		}
		if !o.publishLocked(s, s.turn) {
			return
		}
	}
}

type exchange struct {
	attacker *combat.Combatant
	defender *combat.Combatant
	outcome  combat.TurnOutcome
}

// computeTurnLocked resolves every active attacker against its target from
// pre-turn state, then applies all outcomes.
func (o *Orchestrator) computeTurnLocked(s *Session) {
	turn := s.turn
	var batch []exchange
	for _, att := range s.Active() {
		def := s.targetOf(att)
		if def == nil || att.Decision == nil {
			continue
		}
		ch := combat.ChancesFor(att, def, turn, o.roller)
		batch = append(batch, exchange{attacker: att, defender: def, outcome: combat.ResolveAttack(att, def, ch, turn)})
	}
	outcomes := make([]combat.TurnOutcome, 0, len(batch))
	for i := range batch {
		combat.ApplyOutcome(batch[i].attacker, batch[i].defender, &batch[i].outcome)
		outcomes = append(outcomes, batch[i].outcome)
	}
	s.outcomes = outcomes
	o.logger.Debug("turn resolved",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.Int("turn", turn),
		zap.Int("exchanges", len(outcomes)),
	)
}

// publishLocked emits the results of turn, checks the win condition and opens
// the next turn. It reports whether the next turn is already complete.
func (o *Orchestrator) publishLocked(s *Session, turn int) bool {
	if s.turn != turn || s.state != StateStarted {
		return false
	}
	s.resolving = false
	ev := s.emit(EventTurnResults, nil)
	ev.Outcomes = s.outcomes
	ev.Turn = turn

	if v := s.policy.CheckWinCondition(s); v.Finished {
		o.finishLocked(s, v)
		return false
	}
	s.turn++
	s.policy.OnTurnResolved(s, o.roller)
	o.beginTurnLocked(s)
	return s.decisionsComplete()
}

// finishLocked settles rewards and closes the session.
func (o *Orchestrator) finishLocked(s *Session, v Verdict) {
	s.state = StateFinished
	s.draw = v.Draw
	s.winners = v.Winners
	s.resolving = false
	s.sched.CancelAll()

	winners := make(map[string]bool, len(v.Winners))
	for _, id := range v.Winners {
		winners[id] = true
	}
	rewards := make(map[string]reward.Rewards, s.Len())
	for _, c := range s.Participants() {
		in := reward.Input{
			Mode:            s.Mode,
			Result:          reward.ResultLose,
			Level:           c.Level(),
			Training:        c.Snapshot.Training,
			OpponentGenuine: o.facesHuman(s, c),
			Surrendered:     c.Surrendered,
			BonusChance:     c.Snapshot.BonusChance,
		}
		switch {
		case v.Draw:
			in.Result = reward.ResultDraw
		case winners[c.ID]:
			in.Result = reward.ResultWin
		}
		if opp := s.Participant(c.OpponentID); opp != nil {
			in.OpponentSurrenderTurn = opp.SurrenderedTurn
		}
		if t := s.Team(c.TeamID); t != nil {
			in.Flawless = t.Flawless(s.Participant)
		}
		r := o.rewards.Compute(in)
		c.Rewards = &r
		rewards[c.ID] = r
	}

	winList := make([]any, 0, len(v.Winners))
	for _, id := range v.Winners {
		winList = append(winList, id)
	}
	ev := s.emit(EventFinished, map[string]any{"draw": v.Draw, "winners": winList})
	ev.Rewards = rewards
	s.releaseAll()
	o.logger.Info("session finished",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.Int("turn", s.turn),
		zap.Bool("draw", v.Draw),
		zap.Strings("winners", v.Winners),
	)
}

// facesHuman reports whether any human stood on the other side of c.
func (o *Orchestrator) facesHuman(s *Session, c *combat.Combatant) bool {
	for _, p := range s.Participants() {
		if p.ID == c.ID || p.IsGhost() {
			continue
		}
		if c.TeamID == "" || p.TeamID != c.TeamID {
			return true
		}
	}
	return false
}

// cancelLocked aborts the session without rewards.
func (o *Orchestrator) cancelLocked(s *Session, kind EventKind, reason string) {
	s.state = StateCanceled
	s.resolving = false
	s.sched.CancelAll()
	s.emit(kind, map[string]any{"reason": reason})
	s.releaseAll()
	o.logger.Info("session canceled",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.String("reason", reason),
	)
}

// leavePendingLocked removes c before the start. The session is canceled when
// no human remains.
func (o *Orchestrator) leavePendingLocked(s *Session, c *combat.Combatant) {
	s.remove(c.ID)
	s.released = append(s.released, c.ID)
	s.emitTo([]string{c.ID}, EventCanceled, map[string]any{"reason": "left"})
	if len(s.Humans()) == 0 {
		o.cancelLocked(s, EventCanceled, "no_participants")
		return
	}
	s.emit(EventStatusUpdated, map[string]any{"left": c.ID})
}
