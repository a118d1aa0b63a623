// Package main provides the arena server binary: it loads ghost content,
// connects storage and the notifier, and serves the arena over gRPC until signaled.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/content"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/gameserver"
	"github.com/cory-johannsen/arena/internal/notify"
	"github.com/cory-johannsen/arena/internal/observability"
	"github.com/cory-johannsen/arena/internal/server"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	queueSize := flag.Int("queue", 256, "event queue size; 0 dispatches events inline")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	src := dice.NewCryptoSource()
	if cfg.Arena.RNGSeed != 0 {
		src = dice.NewSeededSource(cfg.Arena.RNGSeed)
		logger.Warn("using seeded random source", zap.Uint64("seed", cfg.Arena.RNGSeed))
	}
	roller := dice.NewLoggedRoller(src, logger)

	// Ghost content
	contentStart := time.Now()
	ghosts, err := content.LoadGhosts(cfg.Content, cfg.Arena, roller, logger)
	if err != nil {
		logger.Fatal("loading ghost content", zap.Error(err))
	}
	defer ghosts.Close()
	logger.Info("ghost content loaded",
		zap.Int("archetypes", len(ghosts.Pools.Archetypes)),
		zap.Int("slots", len(ghosts.Pools.Slots())),
		zap.Int("companions", len(ghosts.Pools.Companions)),
		zap.Strings("tactics", ghosts.Scopes),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	lifecycle := server.NewLifecycle(logger, server.DefaultStopTimeout)

	var (
		snapshots gameserver.SnapshotLoader
		persister gameserver.OutcomePersister
		notifier  gameserver.Notifier
	)
	if cfg.Server.Persistent() {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		snapshots = postgres.NewSnapshotRepository(pool.DB())
		persister = postgres.NewOutcomeRepository(pool.DB())

		redisNotifier, err := notify.NewRedisNotifier(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		notifier = redisNotifier

		// Registered first so they are stopped last.
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		lifecycle.Add("redis", &server.FuncService{StopFn: func(context.Context) error {
			return redisNotifier.Close()
		}})
	} else {
		logger.Warn("ephemeral mode: snapshots are defaults and outcomes are kept in memory")
		snapshots = gameserver.NewStaticSnapshots()
		persister = gameserver.NewMemoryOutcomes()
		notifier = notify.NewLogNotifier(logger)
	}

	hub := gameserver.NewEventHub(notifier, cfg.GRPC.StreamBuffer, logger)
	timings := gameserver.TimingsFrom(cfg.Arena)
	handler := gameserver.NewArenaHandler(gameserver.HandlerConfigFrom(cfg.Arena, *queueSize), match.Options{
		Policies: match.DefaultPolicies(timings),
		Ghosts:   ghosts.Builder,
		Roller:   roller,
		Timings:  timings,
		Logger:   logger,
	}, snapshots, persister, hub)
	lifecycle.Add("arena", handler)

	svc := gameserver.NewGRPCService(handler, hub, logger)
	grpcServer := grpc.NewServer()
	gameserver.RegisterArenaServiceServer(grpcServer, svc)
	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr())
			if err != nil {
				return err
			}
			return grpcServer.Serve(lis)
		},
		StopFn: func(context.Context) error {
			svc.Close()
			grpcServer.GracefulStop()
			return nil
		},
	})

	logger.Info("arena server ready",
		zap.String("mode", cfg.Server.Mode),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.Duration("turn_timeout", cfg.Arena.TurnTimeout),
		zap.Duration("startup", time.Since(start)),
	)
	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("arena server stopped with error", zap.Error(err))
	}
}
