// Package main provides the all-in-one arena simulator. It runs the arena
// handler in memory, queues simulated players that answer every turn with
// random decisions, and prints the settled outcomes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/content"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/gameserver"
	"github.com/cory-johannsen/arena/internal/observability"
)

type message struct {
	participant string
	key         string
}

// channelNotifier hands notifications to the simulation loop.
type channelNotifier struct {
	ch chan message
}

func (n *channelNotifier) Notify(ctx context.Context, participantID, key string, _ *structpb.Struct) error {
	select {
	case n.ch <- message{participant: participantID, key: key}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty uses defaults")
	mode := flag.String("mode", "royal", "arena mode: single, teams or royal")
	players := flag.Int("players", 3, "number of simulated players")
	level := flag.Int("level", 5, "level of the simulated players")
	seed := flag.Uint64("seed", 1, "random seed")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall simulation timeout")
	flag.Parse()

	var (
		cfg config.Config
		err error
	)
	if *configPath == "" {
		cfg, err = config.LoadFromViper(config.Defaults())
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	cfg.Server.Mode = config.ModeEphemeral
	// Compress pacing so a simulation finishes in seconds.
	cfg.Arena.SingleWaitMin = 100 * time.Millisecond
	cfg.Arena.SingleWaitMax = 300 * time.Millisecond
	cfg.Arena.AutostartInterval = 200 * time.Millisecond
	cfg.Arena.AutostartTimeout = time.Second
	cfg.Arena.TurnDelay = 0
	cfg.Arena.TurnTimeout = 5 * time.Second
	cfg.Arena.CreateRate = 0

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	roller := dice.NewLoggedRoller(dice.NewSeededSource(*seed), logger)
	ghosts, err := content.LoadGhosts(cfg.Content, cfg.Arena, roller, logger)
	if err != nil {
		logger.Fatal("loading ghost content", zap.Error(err))
	}
	defer ghosts.Close()

	snapshots := gameserver.NewStaticSnapshots()
	outcomes := gameserver.NewMemoryOutcomes()
	notifier := &channelNotifier{ch: make(chan message, 4096)}

	timings := gameserver.TimingsFrom(cfg.Arena)
	handler := gameserver.NewArenaHandler(gameserver.HandlerConfigFrom(cfg.Arena, 0), match.Options{
		Policies: match.DefaultPolicies(timings),
		Ghosts:   ghosts.Builder,
		Roller:   roller,
		Timings:  timings,
		Logger:   logger,
	}, snapshots, outcomes, notifier)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pending := make(map[string]bool, *players)
	for i := 1; i <= *players; i++ {
		id := fmt.Sprintf("sim-%d", i)
		snap, _ := ghosts.Builder.Snapshot(*level)
		snap.ParticipantID = id
		snap.Name = id
		snapshots.Put(snap)
		if _, err := handler.Join(ctx, match.Mode(*mode), id); err != nil {
			logger.Fatal("joining", zap.String("participant", id), zap.Error(err))
		}
		pending[id] = true
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			logger.Error("simulation timed out", zap.Int("unfinished", len(pending)))
			_ = handler.Stop(context.Background())
			os.Exit(1)
		case msg := <-notifier.ch:
			if err := react(handler, roller, msg); err != nil {
				logger.Debug("simulated player call rejected",
					zap.String("participant", msg.participant),
					zap.String("event", msg.key),
					zap.Error(err),
				)
			}
			switch match.EventKind(msg.key) {
			case match.EventFinished, match.EventRefused, match.EventCanceled:
				delete(pending, msg.participant)
			}
		}
	}
	_ = handler.Stop(context.Background())

	for _, o := range outcomes.All() {
		fmt.Fprintf(os.Stdout, "%s %-6s %-6s %-4s turns=%d gold=%d tokens=%d rating=%+d exp=%d\n",
			o.SessionID[:8], o.ParticipantID, o.Mode, o.Result, o.Turns,
			o.Rewards.Gold, o.Rewards.Tokens, o.Rewards.Rating, o.Rewards.Experience)
	}
	fmt.Fprintf(os.Stdout, "simulated %d players in %s mode [%s]\n", *players, *mode, time.Since(start))
}

// react answers the events a real client would act on.
func react(h *gameserver.ArenaHandler, r *dice.Roller, msg message) error {
	switch match.EventKind(msg.key) {
	case match.EventOpponentFound:
		return h.Confirm(msg.participant)
	case match.EventStarted, match.EventTurnResults:
		dec := ghost.Heuristic(r, nil, nil)
		req := gameserver.DecisionRequest{Attack: string(dec.Attack)}
		for _, a := range dec.Defense {
			req.Defense = append(req.Defense, string(a))
		}
		return h.Submit(msg.participant, req)
	}
	return nil
}
