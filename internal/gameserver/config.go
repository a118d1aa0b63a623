package gameserver

import (
	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/match"
)

// TimingsFrom converts the arena configuration into match timings.
func TimingsFrom(cfg config.ArenaConfig) match.Timings {
	return match.Timings{
		SingleWaitMin:     cfg.SingleWaitMin,
		SingleWaitMax:     cfg.SingleWaitMax,
		ConfirmTimeout:    cfg.ConfirmTimeout,
		AutostartInterval: cfg.AutostartInterval,
		AutostartTimeout:  cfg.AutostartTimeout,
		TurnDelay:         cfg.TurnDelay,
		TeamSize:          cfg.TeamSize,
		RoyalCap:          cfg.RoyalCap,
	}
}

// HandlerConfigFrom converts the arena configuration into handler settings.
func HandlerConfigFrom(cfg config.ArenaConfig, queueSize int) HandlerConfig {
	return HandlerConfig{
		TurnTimeout: cfg.TurnTimeout,
		CreateRate:  cfg.CreateRate,
		CreateBurst: cfg.CreateBurst,
		QueueSize:   queueSize,
	}
}
