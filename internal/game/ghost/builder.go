package ghost

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/reward"
)

// IDPrefix starts every ghost participant id.
const IDPrefix = "ghost-"

// DefaultSpread is the level deviation per mode when Config.Spread is nil.
var DefaultSpread = map[reward.Mode]int{
	reward.ModeSingle: 0,
	reward.ModeTeams:  1,
	reward.ModeRoyal:  2,
}

// Config tunes ghost construction.
type Config struct {
	// Spread is the maximum level deviation from the opponent, per mode.
	Spread map[reward.Mode]int
	// Tactics, when non-nil, lets scripts choose ghost attacks.
	Tactics *Tactics
}

// Builder assembles ghosts from Pools. It implements match.GhostFactory.
type Builder struct {
	pools  Pools
	roller *dice.Roller
	cfg    Config
	logger *zap.Logger
}

// NewBuilder creates a Builder.
//
// Precondition: roller must be non-nil; logger may be nil.
// Postcondition: Returns a non-nil Builder.
func NewBuilder(pools Pools, roller *dice.Roller, cfg Config, logger *zap.Logger) *Builder {
	if roller == nil {
		panic("ghost.NewBuilder: roller must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Spread == nil {
		cfg.Spread = DefaultSpread
	}
	return &Builder{pools: pools, roller: roller, cfg: cfg, logger: logger}
}

// IsGhostID reports whether id was issued by a Builder.
func IsGhostID(id string) bool { return strings.HasPrefix(id, IDPrefix) }

// Build returns a ghost for mode scaled against the given opponent. against
// may be nil, in which case a level 1 ghost is built.
//
// Postcondition: Returns a non-nil KindGhost combatant with an id starting with IDPrefix.
func (b *Builder) Build(mode reward.Mode, against *combat.Combatant) *combat.Combatant {
	level := 1
	if against != nil {
		level = against.Level()
	}
	if spread := b.cfg.Spread[mode]; spread > 0 {
		level += b.roller.Range("ghost:level", -spread, spread)
	}
	if level < 1 {
		level = 1
	}

	snap, arch := b.Snapshot(level)
	opponentHasCompanion := against != nil && against.Snapshot.Companion != nil
	if opponentHasCompanion || b.roller.Chance("ghost:companion", CompanionPercent(level)) {
		comp := b.Companion(level)
		snap.Companion = &comp
	}

	id := IDPrefix + uuid.NewString()
	snap.ParticipantID = id
	g := combat.NewCombatant(id, combat.KindGhost, snap, NewBrain(b.roller, arch, b.cfg.Tactics))
	b.logger.Debug("ghost built",
		zap.String("id", id),
		zap.String("mode", string(mode)),
		zap.String("archetype", arch),
		zap.Int("level", level),
		zap.Bool("companion", snap.Companion != nil),
	)
	return g
}

// Snapshot derives a ghost's combat values at level: a random archetype
// build plus the greedy loadout. It returns the archetype name used.
//
// Postcondition: With no items loaded, returns DefaultSnapshot(level) and "default".
func (b *Builder) Snapshot(level int) (combat.CharacterSnapshot, string) {
	if b.pools.Empty() {
		return DefaultSnapshot(level), "default"
	}
	archetypes := b.pools.Archetypes
	if len(archetypes) == 0 {
		archetypes = DefaultArchetypes
	}
	arch := archetypes[b.roller.Intn(len(archetypes))]
	snap := buildSnapshot(arch, level)
	for _, it := range b.pools.Loadout(level) {
		it.apply(&snap)
	}
	if snap.MaxDamage < snap.MinDamage {
		snap.MaxDamage = snap.MinDamage
	}
	if snap.MaxHealth < 1 {
		return DefaultSnapshot(level), "default"
	}
	snap.Name = strings.ToUpper(arch.Name[:1]) + arch.Name[1:] + " Ghost"
	return snap, arch.Name
}

// Companion picks a random companion of the best mastery available at level.
//
// Postcondition: With no eligible companion, returns DefaultCompanion(level).
func (b *Builder) Companion(level int) combat.CompanionSnapshot {
	candidates := b.pools.companionsFor(level)
	if len(candidates) == 0 {
		return DefaultCompanion(level)
	}
	return candidates[b.roller.Intn(len(candidates))]
}

// CompanionPercent is the chance, in percent, that a ghost of level brings a
// companion: 5 per level, capped at 90.
func CompanionPercent(level int) int {
	p := 5 * level
	if p > 90 {
		p = 90
	}
	if p < 0 {
		p = 0
	}
	return p
}
