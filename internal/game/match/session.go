// Package match owns arena sessions: matchmaking, AI fill, the synchronized
// turn loop, win detection and reward settlement for every arena mode.
package match

import (
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/reward"
)

// Mode tags an arena mode.
type Mode = reward.Mode

const (
	ModeSingle = reward.ModeSingle
	ModeTeams  = reward.ModeTeams
	ModeRoyal  = reward.ModeRoyal
)

// State is the lifecycle state of a session.
type State int

const (
	StatePending State = iota
	StateStarted
	StateFinished
	StateCanceled
)

// String returns a human-readable state label.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	case StateFinished:
		return "finished"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCanceled
}

// Session is one arena match. All fields are mutated by the Orchestrator while
// it holds the session lock; the exported accessors assume the caller holds it
// too, which is always the case for ModePolicy callbacks.
type Session struct {
	ID        string
	Mode      Mode
	CreatedAt time.Time

	mu     sync.Mutex
	policy ModePolicy
	sched  *Scheduler
	plan   FillPlan

	state      State
	draw       bool
	locked     bool
	confirming bool
	resolving  bool
	turn       int

	order        []string
	participants map[string]*combat.Combatant
	teams        map[string]*Team

	levelSum    int
	fillCount   int
	autostartAt time.Time
	winners     []string
	outcomes    []combat.TurnOutcome

	outbox   []Event
	released []string
}

func newSession(id string, policy ModePolicy, sched *Scheduler, now time.Time) *Session {
	s := &Session{
		ID:           id,
		Mode:         policy.Mode(),
		CreatedAt:    now,
		policy:       policy,
		sched:        sched,
		state:        StatePending,
		turn:         1,
		participants: make(map[string]*combat.Combatant),
		teams:        make(map[string]*Team),
	}
	if s.Mode == ModeTeams {
		s.teams[TeamOne] = &Team{ID: TeamOne, OpponentID: TeamTwo, Icon: "red"}
		s.teams[TeamTwo] = &Team{ID: TeamTwo, OpponentID: TeamOne, Icon: "blue"}
	}
	return s
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Draw reports whether the finished match ended without a winner.
func (s *Session) Draw() bool { return s.draw }

// Turn returns the current turn number, starting at 1.
func (s *Session) Turn() int { return s.turn }

// Locked reports whether the autostart deadline has passed.
func (s *Session) Locked() bool { return s.locked }

// Len returns the number of participants, humans and ghosts.
func (s *Session) Len() int { return len(s.order) }

// LevelSum returns the summed levels of all participants.
func (s *Session) LevelSum() int { return s.levelSum }

// FillCount returns how many ghosts have joined.
func (s *Session) FillCount() int { return s.fillCount }

// Winners returns the winning participant ids once finished.
func (s *Session) Winners() []string { return s.winners }

// Participant returns the combatant with id, or nil.
func (s *Session) Participant(id string) *combat.Combatant {
	return s.participants[id]
}

// Participants returns all combatants in join order.
func (s *Session) Participants() []*combat.Combatant {
	out := make([]*combat.Combatant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participants[id])
	}
	return out
}

// Active returns the combatants taking part in the current turn.
func (s *Session) Active() []*combat.Combatant {
	var out []*combat.Combatant
	for _, id := range s.order {
		if c := s.participants[id]; c.Active() {
			out = append(out, c)
		}
	}
	return out
}

// Standing returns the combatants that still count for their side.
func (s *Session) Standing() []*combat.Combatant {
	var out []*combat.Combatant
	for _, id := range s.order {
		if c := s.participants[id]; !c.Out() {
			out = append(out, c)
		}
	}
	return out
}

// Humans returns the human participants that have not departed.
func (s *Session) Humans() []*combat.Combatant {
	var out []*combat.Combatant
	for _, id := range s.order {
		if c := s.participants[id]; !c.IsGhost() && !c.Departed {
			out = append(out, c)
		}
	}
	return out
}

// Team returns the team with id, or nil.
func (s *Session) Team(id string) *Team { return s.teams[id] }

// Teams returns the teams in id order.
func (s *Session) Teams() []*Team {
	var out []*Team
	for _, id := range []string{TeamOne, TeamTwo} {
		if t, ok := s.teams[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// opponentOf returns the standing opponent of c, or nil.
func (s *Session) opponentOf(c *combat.Combatant) *combat.Combatant {
	opp := s.participants[c.OpponentID]
	if opp == nil || opp.Out() {
		return nil
	}
	return opp
}

// targetOf resolves the defender for c's decision: a valid redirect target
// when one was chosen, otherwise the assigned opponent.
func (s *Session) targetOf(c *combat.Combatant) *combat.Combatant {
	if c.Decision != nil && c.Decision.Target != "" && c.Decision.Target != c.ID {
		t := s.participants[c.Decision.Target]
		if t != nil && !t.Out() && (c.TeamID == "" || t.TeamID != c.TeamID) {
			return t
		}
	}
	return s.opponentOf(c)
}

func (s *Session) add(c *combat.Combatant) {
	if _, ok := s.participants[c.ID]; ok {
		return
	}
	s.order = append(s.order, c.ID)
	s.participants[c.ID] = c
	s.levelSum += c.Level()
	if c.IsGhost() {
		s.fillCount++
	}
}

func (s *Session) remove(id string) {
	c, ok := s.participants[id]
	if !ok {
		return
	}
	delete(s.participants, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.levelSum -= c.Level()
	if t := s.teams[c.TeamID]; t != nil {
		t.remove(id)
	}
}

// decisionsComplete reports whether every active participant has a decision.
func (s *Session) decisionsComplete() bool {
	active := s.Active()
	if len(active) == 0 {
		return false
	}
	for _, c := range active {
		if c.Decision == nil {
			return false
		}
	}
	return true
}

// accepting reports whether new participants may still join.
func (s *Session) accepting() bool {
	return s.state == StatePending && !s.locked && !s.confirming && s.Len() < s.policy.Capacity()
}

func (s *Session) humanIDs() []string {
	var ids []string
	for _, c := range s.Humans() {
		ids = append(ids, c.ID)
	}
	return ids
}

// releaseAll marks every human as free to queue again.
func (s *Session) releaseAll() {
	for _, id := range s.order {
		if c := s.participants[id]; !c.IsGhost() {
			s.released = append(s.released, id)
		}
	}
}

// emit queues an event to every present human.
func (s *Session) emit(kind EventKind, params map[string]any) *Event {
	return s.emitTo(s.humanIDs(), kind, params)
}

// emitTo queues an event for recipients. Events are dispatched once the
// session lock is released.
func (s *Session) emitTo(recipients []string, kind EventKind, params map[string]any) *Event {
	s.outbox = append(s.outbox, Event{
		Kind:       kind,
		SessionID:  s.ID,
		Mode:       s.Mode,
		Turn:       s.turn,
		Recipients: recipients,
		Params:     params,
		State:      s.snapshot(),
	})
	return &s.outbox[len(s.outbox)-1]
}

// stateMap renders the public session state as JSON-compatible values.
func (s *Session) stateMap() map[string]any {
	parts := make([]any, 0, len(s.order))
	for _, c := range s.Participants() {
		p := map[string]any{
			"id":          c.ID,
			"name":        c.Snapshot.Name,
			"kind":        c.Kind.String(),
			"team":        c.TeamID,
			"opponent":    c.OpponentID,
			"level":       c.Level(),
			"health":      c.Health,
			"max_health":  c.Snapshot.MaxHealth,
			"dead":        c.Dead,
			"surrendered": c.Surrendered,
			"departed":    c.Departed,
			"ready":       c.Ready,
			"submitted":   c.Decision != nil,
		}
		if comp := c.Snapshot.Companion; comp != nil {
			p["companion"] = comp.Name
			p["companion_health"] = c.CompanionHealth
			p["companion_max_health"] = comp.MaxHealth
		}
		parts = append(parts, p)
	}
	m := map[string]any{
		"id":                s.ID,
		"mode":              string(s.Mode),
		"state":             s.state.String(),
		"draw":              s.draw,
		"turn":              s.turn,
		"locked":            s.locked,
		"participant_count": s.Len(),
		"level_sum":         s.levelSum,
		"fill_count":        s.fillCount,
		"participants":      parts,
	}
	if !s.autostartAt.IsZero() {
		m["autostart_at"] = s.autostartAt.UTC().Format(time.RFC3339)
	}
	if teams := s.Teams(); len(teams) > 0 {
		ts := make([]any, 0, len(teams))
		for _, t := range teams {
			members := make([]any, 0, len(t.Members))
			for _, id := range t.Members {
				members = append(members, id)
			}
			ts = append(ts, map[string]any{
				"id":       t.ID,
				"opponent": t.OpponentID,
				"icon":     t.Icon,
				"members":  members,
				"lost":     t.Lost(s.Participant),
				"flawless": t.Flawless(s.Participant),
			})
		}
		m["teams"] = ts
	}
	if len(s.winners) > 0 {
		ws := make([]any, 0, len(s.winners))
		for _, id := range s.winners {
			ws = append(ws, id)
		}
		m["winners"] = ws
	}
	return m
}

// snapshot returns the public state as a protobuf Struct, or nil when the
// state cannot be encoded.
func (s *Session) snapshot() *structpb.Struct {
	st, err := structpb.NewStruct(s.stateMap())
	if err != nil {
		return nil
	}
	return st
}
