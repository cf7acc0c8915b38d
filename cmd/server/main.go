// Command server runs the workflow runtime: node registry, execution
// engine, worker pool, HTTP API, and WebSocket event stream.
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

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	// Register built-in nodes for discovery.
	_ "github.com/Narcis13/workscript/internal/node/builtin"

	"github.com/Narcis13/workscript/internal/engine"
	"github.com/Narcis13/workscript/internal/gateway/api"
	"github.com/Narcis13/workscript/internal/gateway/realtime"
	"github.com/Narcis13/workscript/internal/gateway/ws"
	"github.com/Narcis13/workscript/internal/monitoring"
	"github.com/Narcis13/workscript/internal/node"
	"github.com/Narcis13/workscript/internal/platform/auth"
	"github.com/Narcis13/workscript/internal/platform/config"
	"github.com/Narcis13/workscript/internal/platform/logger"
	"github.com/Narcis13/workscript/internal/platform/messaging/kafka"
	"github.com/Narcis13/workscript/internal/platform/telemetry"
	"github.com/Narcis13/workscript/internal/trigger"
	"github.com/Narcis13/workscript/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}

	registry := node.NewRegistry()
	discovered, err := registry.Discover("builtin")
	if err != nil {
		log.Fatal("failed to register built-in nodes", "error", err)
	}
	log.Info("node registry ready", "builtin", discovered, "total", registry.Size())

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
	}

	var store workflow.Store
	if redisClient != nil {
		store = workflow.NewRedisStore(redisClient, "")
		log.Info("using redis workflow store", "addr", cfg.Redis.Addr())
	} else {
		store = workflow.NewMemoryStore()
	}

	var history engine.ExecutionRepository = engine.NewInMemoryRepository()
	if cfg.Database.Enabled {
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			log.Fatal("failed to open database", "error", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		history, err = engine.NewPostgresRepository(db)
		if err != nil {
			log.Fatal("failed to initialize execution history", "error", err)
		}
		log.Info("using postgres execution history")
	}

	bus := realtime.NewBus()
	sampler := monitoring.NewSampler(5 * time.Second)

	hub := ws.NewHub(log, ws.HubConfig{
		ServerID:    cfg.Server.ServerID,
		SendTimeout: cfg.Engine.SendTimeout,
		Stats:       sampler.AsMap,
	})
	bus.AttachBroadcaster(hub)

	var kafkaPublisher *kafka.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err = kafka.NewEventPublisher(kafka.Config{
			Brokers:     cfg.Kafka.Brokers,
			TopicPrefix: cfg.Kafka.TopicPrefix,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to kafka", "error", err)
		}
		kafkaPublisher.Attach(bus)
		log.Info("kafka event mirror enabled", "brokers", cfg.Kafka.Brokers)
	}

	tokens := auth.NewTokenService(cfg.Auth)

	eng := engine.New(engine.Config{
		Registry:          registry,
		Store:             store,
		Bus:               bus,
		Logger:            log,
		Metrics:           engine.NewMetrics(tel.Registry()),
		Tracer:            tel.Tracer(),
		History:           history,
		MaxLoopIterations: cfg.Engine.MaxLoopIters,
		Env: map[string]string{
			"API_BASE_URL": cfg.Server.APIBaseURL,
			"SERVER_ID":    cfg.Server.ServerID,
		},
	})

	var queue engine.SubmissionQueue
	if redisClient != nil {
		queue, err = engine.NewRedisQueue(redisClient, "")
		if err != nil {
			log.Fatal("failed to initialize redis queue", "error", err)
		}
	} else {
		queue = engine.NewInMemoryQueue()
	}

	pool := engine.NewWorkerPool(eng, queue, log, engine.PoolConfig{Workers: cfg.Engine.MaxWorkers})
	pool.Start()

	var scheduler *trigger.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = trigger.NewScheduler(queue, tokens, log)
		scheduler.Start()
	}

	server := api.New(api.Deps{
		Engine:    eng,
		Registry:  registry,
		Store:     store,
		Queue:     queue,
		Scheduler: scheduler,
		Hub:       hub,
		Sampler:   sampler,
		Tokens:    tokens,
		Logger:    log,
		Config:    cfg.Server,
		Auth:      cfg.Auth,
		Metrics:   tel.MetricsHandler(),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("server listening", "port", cfg.Server.Port, "serverId", cfg.Server.ServerID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Periodically drop old executions from memory.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				eng.CleanupOld(cfg.Engine.HistoryRetention)
			case <-cleanupDone:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	close(cleanupDone)

	if scheduler != nil {
		scheduler.Stop()
	}
	pool.Stop(30 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warn("telemetry shutdown error", "error", err)
	}
}
