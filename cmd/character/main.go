// Package main provides a CLI tool for creating arena characters and
// inspecting their balances and match history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/ghost"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	id := flag.String("id", "", "character id (required)")
	create := flag.Bool("create", false, "create the character with default stats for -level")
	name := flag.String("name", "", "display name for -create; defaults to the id")
	level := flag.Int("level", 1, "level for -create")
	training := flag.Bool("training", false, "mark the created character as a training character")
	history := flag.Int("history", 10, "number of recent match results to print")
	flag.Parse()

	if *id == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	snapshots := postgres.NewSnapshotRepository(pool.DB())
	outcomes := postgres.NewOutcomeRepository(pool.DB())

	if *create {
		snap := ghost.DefaultSnapshot(*level)
		snap.ParticipantID = *id
		snap.Name = *name
		if snap.Name == "" {
			snap.Name = *id
		}
		snap.Training = *training
		if err := snapshots.CreateCharacter(ctx, snap); err != nil {
			log.Fatalf("creating character %q: %v", *id, err)
		}
		fmt.Fprintf(os.Stdout, "created %s (%s) level=%d health=%d damage=%d-%d\n",
			snap.ParticipantID, snap.Name, snap.Level, snap.MaxHealth, snap.MinDamage, snap.MaxDamage)
	}

	bal, err := snapshots.Balance(ctx, *id)
	if err != nil {
		log.Fatalf("loading balance of %q: %v", *id, err)
	}
	fmt.Fprintf(os.Stdout, "%s gold=%d tokens=%d rating=%d experience=%d\n",
		*id, bal.Gold, bal.Tokens, bal.Rating, bal.Experience)

	if *history > 0 {
		results, err := outcomes.History(ctx, *id, *history)
		if err != nil {
			log.Fatalf("loading history of %q: %v", *id, err)
		}
		for _, o := range results {
			fmt.Fprintf(os.Stdout, "  %s %-6s %-4s turns=%d gold=%+d rating=%+d exp=%+d\n",
				o.CreatedAt.Format(time.RFC3339), o.Mode, o.Result, o.Turns,
				o.Rewards.Gold, o.Rewards.Rating, o.Rewards.Experience)
		}
	}

	fmt.Fprintf(os.Stdout, "[%s]\n", time.Since(start))
}
