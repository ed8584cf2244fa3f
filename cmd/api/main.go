package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/focusmon/screenwatch/internal/application"
	"github.com/focusmon/screenwatch/internal/application/analysis"
	"github.com/focusmon/screenwatch/internal/config"
	"github.com/focusmon/screenwatch/internal/domain/jobs"
	"github.com/focusmon/screenwatch/internal/domain/screenshots"
	"github.com/focusmon/screenwatch/internal/domain/vision"
	"github.com/focusmon/screenwatch/internal/infra/ai/groq"
	mysqldb "github.com/focusmon/screenwatch/internal/infra/db/mysql"
	postgresdb "github.com/focusmon/screenwatch/internal/infra/db/postgres"
	"github.com/focusmon/screenwatch/internal/infra/httpserver"
	"github.com/focusmon/screenwatch/internal/infra/queue"
	"github.com/focusmon/screenwatch/internal/infra/ratelimit"
	"github.com/focusmon/screenwatch/internal/infra/storage"
	"github.com/focusmon/screenwatch/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}

	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&log.JSONFormatter{})

	ctx := context.Background()

	// connect database
	var db *sql.DB
	var repo screenshots.Repository
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqldb.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.WithError(err).Fatal("mysql connect error")
		}
		repo = mysqldb.NewScreenshotRepository(db)
	default:
		db, err = postgresdb.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.WithError(err).Fatal("postgres connect error")
		}
		repo = postgresdb.NewScreenshotRepository(db)
	}
	defer db.Close()

	// image source
	var source vision.ImageSource
	if cfg.Storage.Driver == "minio" {
		source, err = storage.NewMinio(ctx,
			cfg.Storage.Minio.Endpoint,
			cfg.Storage.Minio.Region,
			cfg.Storage.Minio.BucketName,
			cfg.Storage.Minio.AccessKey,
			cfg.Storage.Minio.SecretKey,
			cfg.Storage.Minio.UseSSL,
		)
		if err != nil {
			log.WithError(err).Fatal("minio init error")
		}
	} else {
		source = storage.NewLocal(cfg.Storage.LocalDir)
	}

	// vision adapter behind the per-minute call limiter
	limiter := ratelimit.New(cfg.Vision.RateLimitPerMinute, time.Minute)
	defer limiter.Close()

	analyzer := groq.New(groq.Options{
		APIKey:      cfg.Vision.APIKey,
		BaseURL:     cfg.Vision.BaseURL,
		Model:       cfg.Vision.Model,
		Temperature: cfg.Vision.Temperature,
		MaxTokens:   cfg.Vision.MaxTokens,
		MaxRetries:  cfg.Vision.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay(),
	}, limiter, source)

	// job broker
	var broker jobs.Broker
	var redisBroker *queue.RedisBroker
	if cfg.Queue.Broker == "redis" {
		redisBroker, err = queue.NewRedisBroker(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Queue.Prefix)
		if err != nil {
			log.WithError(err).Fatal("redis broker init error")
		}
		broker = redisBroker
	} else {
		broker = queue.NewMemoryBroker()
	}
	defer broker.Close()

	// init service
	svc := &analysis.Service{
		Repo:               repo,
		Broker:             broker,
		Analyzer:           analyzer,
		Clock:              application.SystemClock{},
		JobTimeout:         cfg.JobTimeout(),
		Priority:           1,
		CompletedRetention: cfg.CompletedRetention(),
		FailedRetention:    cfg.FailedRetention(),
	}

	// workers
	pool := queue.NewWorkerPool(broker, svc.ProcessJob, cfg.Queue.Concurrency, cfg.JobTimeout())
	pool.Start()

	// scheduled sweep + prune
	reconciler := &analysis.Reconciler{
		Service:       svc,
		SweepSchedule: cfg.Reconciler.SweepSchedule,
		PruneSchedule: cfg.Reconciler.PruneSchedule,
		SweepLimit:    cfg.Reconciler.SweepLimit,
	}
	if err := reconciler.Start(); err != nil {
		log.WithError(err).Fatal("reconciler start error")
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
		"vision":   middleware.NewCachedChecker(middleware.CheckerFunc(analyzer.CheckHealth), 5*time.Minute),
	}
	if redisBroker != nil {
		checkers["redis"] = middleware.CheckerFunc(redisBroker.Ping)
	}

	handler := httpserver.NewRouter(svc, httpserver.Options{
		RateLimitCapacity: cfg.Server.RateLimitCapacity,
		RateLimitRefill:   cfg.Server.RateLimitRefill,
		HealthCheckers:    checkers,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown error")
	}
	reconciler.Stop()
	pool.Stop(shutdownCtx)
	log.Info("shutdown complete")
}
