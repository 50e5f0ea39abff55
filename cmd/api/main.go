package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scrapco/scrapco-backend/api/routes"
	"github.com/scrapco/scrapco-backend/internal/cron"
	"github.com/scrapco/scrapco-backend/internal/dispatch"
	"github.com/scrapco/scrapco-backend/internal/pickups"
	"github.com/scrapco/scrapco-backend/internal/vendors"
	"github.com/scrapco/scrapco-backend/pkg/config"
	"github.com/scrapco/scrapco-backend/pkg/db"
	"github.com/scrapco/scrapco-backend/pkg/logger"
	"github.com/scrapco/scrapco-backend/pkg/metrics"
	"github.com/scrapco/scrapco-backend/pkg/migrate"
	"github.com/scrapco/scrapco-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	var sweepLock cron.Lock = cron.NoopLock{}
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		sweepLock, err = cron.NewRedisLock(redisClient, redisClient.LockKey("dispatch-sweep"), cfg.Dispatch.SweepInterval+5*time.Second)
		if err != nil {
			logg.Error(context.Background(), "failed to create sweep lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured, sweep lock disabled")
	}

	registry := prometheus.NewRegistry()
	dispatchMetrics := metrics.NewDispatchMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	pickupsRepo := pickups.NewRepository(dbClient.DB())
	vendorsRepo := vendors.NewRepository(dbClient.DB())

	allowLoopback := !cfg.App.IsProd()

	vendorsService, err := vendors.NewService(vendors.ServiceParams{
		Repo:          vendorsRepo,
		Logger:        logg,
		AllowLoopback: allowLoopback,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor service", err)
		os.Exit(1)
	}

	offerSender, err := dispatch.NewOfferSender(dispatch.OfferSenderParams{
		Timeout:       cfg.Vendor.OfferTimeout,
		Bearer:        cfg.Vendor.OutboundBearerToken(),
		AllowLoopback: allowLoopback,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create offer sender", err)
		os.Exit(1)
	}

	engine, err := dispatch.NewEngine(dispatch.EngineParams{
		Repo:       pickupsRepo,
		Vendors:    vendorsService,
		Sender:     offerSender,
		Metrics:    dispatchMetrics,
		Logger:     logg,
		OfferTTL:   cfg.Dispatch.OfferTTL,
		TimerSlack: cfg.Dispatch.TimerSlack,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch engine", err)
		os.Exit(1)
	}

	pickupsService, err := pickups.NewService(pickups.ServiceParams{
		Repo:       pickupsRepo,
		Vendors:    vendorsService,
		Tx:         dbClient,
		Dispatcher: engine,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pickup service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewExpiredOfferJob(cron.ExpiredOfferJobParams{
		Logger: logg,
		Reader: pickupsRepo,
		Engine: engine,
		Batch:  cfg.Dispatch.SweepBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expired offer job", err)
		os.Exit(1)
	}

	sweeper, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     sweepLock,
		Metrics:  cronMetrics,
		Interval: cfg.Dispatch.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "sweep service stopped unexpectedly", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:  cfg,
			Logger:  logg,
			DB:      dbClient,
			Redis:   redisClient,
			Pickups: pickupsService,
			Repo:    pickupsRepo,
			Vendors: vendorsService,
			Engine:  engine,
			Metrics: registry,
			Now:     time.Now,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(logCtx, "api server stopped")
}
