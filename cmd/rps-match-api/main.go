// rps-match-api is the process entry point: it loads configuration, wires
// the Postgres repository, Redis completion cache, Match Registry, Command
// Surface, and the HTTP + chat adapters, then serves until signalled.
// Grounded on merev-ds-game-api's cmd/game-api/main.go (config.Load, a
// pool, a blocking migration, a router, a signal-driven graceful shutdown);
// generalised here with an explicit background-jobs start and an optional
// websocket hub, since this domain's core runs real background work
// (the Timeout Scheduler, idle-match reaping) the darts API never needed.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rpsarena/match-engine/internal/config"
	"github.com/rpsarena/match-engine/internal/engine"
	"github.com/rpsarena/match-engine/internal/logging"
	"github.com/rpsarena/match-engine/internal/match"
	"github.com/rpsarena/match-engine/internal/rating"
	"github.com/rpsarena/match-engine/internal/registry"
	"github.com/rpsarena/match-engine/internal/store/matchcache"
	"github.com/rpsarena/match-engine/internal/store/postgres"
	"github.com/rpsarena/match-engine/internal/transport/chat"
	apphttp "github.com/rpsarena/match-engine/internal/transport/http"
	"github.com/rpsarena/match-engine/internal/transport/ws"
)

func main() {
	logger, err := logging.New(os.Getenv("APP_ENV") != "production")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	db, err := postgres.NewPool(cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := postgres.Migrate(migrateCtx, db); err != nil {
		cancel()
		logger.Fatal("migration failed", zap.Error(err))
	}
	cancel()

	ratingCfg := rating.Config{K: float64(cfg.RatingK), Min: cfg.RatingMin, Seed: cfg.RatingSeed}
	repo := postgres.NewRepository(db, cfg.RatingSeed)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	cache := matchcache.New(rdb, cfg.MatchCacheTTL, logger)

	reg := registry.New(registry.Config{
		Match:          match.Config{MoveTimeout: cfg.MoveTimeout, MaxBestOf: cfg.MaxBestOf},
		Rating:         ratingCfg,
		AbandonedGrace: cfg.AbandonedGrace,
	}, logger, repo, cache)

	var hub *ws.Hub
	if cfg.WSEnabled {
		hub = ws.NewHub(logger)
		reg.SetNotifier(hub)
	}

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	reg.StartBackgroundJobs(ctx, cfg.SweepInterval, cfg.FlushRetryInterval)

	eng := engine.New(reg, repo, cache, ratingCfg, cfg.DefaultBestOf)
	chatAdapter := chat.NewAdapter(eng)

	handler := apphttp.NewHandler(eng, chatAdapter, hub, logger)
	router := apphttp.NewRouter(handler)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("rps-match-api running", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down rps-match-api")
	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
