package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"verify-orchestrator/internal/auth"
	"verify-orchestrator/internal/config"
	"verify-orchestrator/internal/dispatch"
	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/queuectrl"
	"verify-orchestrator/internal/sweep"
	"verify-orchestrator/internal/targets"
	"verify-orchestrator/internal/telephony"
	"verify-orchestrator/internal/webhook"
	"verify-orchestrator/pkg/logger"
	"verify-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// sweepLimit bounds how many stale jobs one sweep pass reclaims.
const sweepLimit = 50

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// A worker id stable for the process lifetime; claims and sweeps are
	// attributed to it.
	workerID := workerIdentity()

	store := jobs.NewPostgresStore(db)
	targetRepo := targets.NewPostgresRepo(db)
	resolver := targets.NewResolver(targetRepo, cfg.Dispatch.DefaultRegion)
	provider := telephony.NewVapiProvider(cfg.Vapi)
	enroller := fallback.NewEnroller(fallback.NewPostgresRepo(db), targetRepo, store, cfg.Dispatch.Campaign)
	control := queuectrl.NewRedisControl(rdb)

	dispatcher := dispatch.New(store, resolver, provider, enroller, control, dispatch.Options{
		WorkerID: workerID,
		Workers:  cfg.Dispatch.Workers,
		Limiter:  dispatch.NewRedisCycleLimiter(rdb, 0, 0),
		Logger:   log,
	})
	sweeper := sweep.New(store, resolver, enroller, workerID, cfg.Dispatch.SweepAge, log)
	callbacks := webhook.NewService(webhook.NewPostgresEventRepo(db), store, targetRepo, resolver, enroller, log)

	if !provider.Configured() {
		log.Warn("call provider not configured; dispatched jobs will route to fallback")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW:     auth.RequireAccessToken(authManager),
		DB:         db,
		Dispatcher: dispatcher,
		Sweeper:    sweeper,
		Control:    control,
		Callbacks:  callbacks,
		Dispatch:   cfg.Dispatch,
	})

	go dispatchLoop(rootCtx, log, dispatcher, cfg.Dispatch)
	go sweepLoop(rootCtx, log, sweeper, cfg.Dispatch)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "worker_id", workerID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// dispatchLoop runs scheduled dispatch cycles until shutdown.
func dispatchLoop(ctx context.Context, log *slog.Logger, d *dispatch.Dispatcher, cfg config.DispatchConfig) {
	if cfg.Interval <= 0 {
		log.Info("scheduled dispatch disabled")
		return
	}
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sum, err := d.Run(ctx, cfg.BatchSize)
			if err != nil {
				log.Error("dispatch cycle failed", "err", err)
				continue
			}
			if sum.Claimed > 0 || sum.Paused || sum.Throttled {
				log.Info("dispatch cycle finished",
					"claimed", sum.Claimed, "dispatched", sum.Dispatched,
					"fallback", sum.Fallback, "paused", sum.Paused, "throttled", sum.Throttled)
			}
		}
	}
}

// sweepLoop periodically routes jobs with no callback to fallback.
func sweepLoop(ctx context.Context, log *slog.Logger, s *sweep.Sweeper, cfg config.DispatchConfig) {
	if cfg.SweepInterval <= 0 {
		log.Info("callback-timeout sweep disabled")
		return
	}
	t := time.NewTicker(cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			swept, err := s.Run(ctx, sweepLimit)
			if err != nil {
				log.Error("sweep failed", "err", err)
				continue
			}
			if swept > 0 {
				log.Info("sweep finished", "swept", swept)
			}
		}
	}
}

func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
