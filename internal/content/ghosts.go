package content

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/game/reward"
	"github.com/cory-johannsen/arena/internal/scripting"
)

// Ghosts is the loaded ghost content together with the builder using it.
type Ghosts struct {
	Builder *ghost.Builder
	Pools   ghost.Pools
	Scripts *scripting.Manager
	// Scopes lists the loaded tactics scopes.
	Scopes []string
}

// LoadGhosts loads pools and tactics from cfg.Dir and builds a ghost.Builder
// with the level spreads of arena. An empty item pool is logged and tolerated.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: On success the caller owns Scripts and must Close it.
func LoadGhosts(cfg config.ContentConfig, arena config.ArenaConfig, roller *dice.Roller, logger *zap.Logger) (*Ghosts, error) {
	pools, err := LoadPools(cfg.Dir)
	switch {
	case errors.Is(err, ErrEmptyPool):
		logger.Warn("no ghost items loaded; ghosts use default stats", zap.String("dir", cfg.Dir))
	case err != nil:
		return nil, fmt.Errorf("loading ghost pools: %w", err)
	}

	scripts := scripting.NewManager(roller, logger, cfg.InstructionLimit)
	scopes, err := LoadTactics(cfg.Dir, scripts)
	if err != nil {
		scripts.Close()
		return nil, fmt.Errorf("loading tactics: %w", err)
	}

	builder := ghost.NewBuilder(pools, roller, ghost.Config{
		Spread: map[reward.Mode]int{
			reward.ModeSingle: arena.GhostSpreadSingle,
			reward.ModeTeams:  arena.GhostSpreadTeams,
			reward.ModeRoyal:  arena.GhostSpreadRoyal,
		},
		Tactics: ghost.NewTactics(scripts, logger),
	}, logger)
	return &Ghosts{Builder: builder, Pools: pools, Scripts: scripts, Scopes: scopes}, nil
}

// Close releases the tactics VMs.
func (g *Ghosts) Close() {
	g.Scripts.Close()
}
