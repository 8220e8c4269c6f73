package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roadlog/internal/audit"
	"roadlog/internal/index"
	"roadlog/internal/kv"
	"roadlog/internal/platform/config"
	"roadlog/internal/platform/httpserver"
	"roadlog/internal/platform/logger"
	platformredis "roadlog/internal/platform/redis"
	"roadlog/internal/record"
	recordmetrics "roadlog/internal/record/metrics"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// The record services built here are consumed by the external HTTP transport;
// this process exposes only health and metrics endpoints.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	// Authoritative store: Redis in production, memory otherwise.
	var store kv.Store = kv.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		store = kv.NewRedis(redisClient.Client)
		log.Info("authoritative store: redis")
	} else {
		log.Warn("authoritative store: in-memory (ROADLOG_REDIS_URL not set)")
	}

	// Index storage: SQLite when a path is configured.
	var indexStorage index.Storage = index.NewInMemoryStorage()
	if cfg.IndexPath != "" {
		sqliteStorage, err := index.OpenSQLite(cfg.IndexPath)
		if err != nil {
			log.Error("index storage open failed", "error", err)
			os.Exit(1)
		}
		defer sqliteStorage.Close()
		indexStorage = sqliteStorage
		log.Info("index storage: sqlite", "path", cfg.IndexPath)
	}
	indexes := index.NewRegistry(indexStorage)

	// Audit trail: Postgres when configured, with an optional Kafka sink.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if cfg.AuditDatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.AuditDatabaseURL)
		if err != nil {
			log.Error("audit database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := audit.NewPostgres(db)
		if err := pgStore.Migrate(context.Background()); err != nil {
			log.Error("audit schema migration failed", "error", err)
			os.Exit(1)
		}
		auditStore = pgStore
		log.Info("audit store: postgres")
	}
	auditOpts := []audit.Option{audit.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka audit sink failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
		log.Info("audit sink: kafka", "topic", cfg.AuditTopic)
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)

	metrics := recordmetrics.New()

	services, err := record.NewServices(store, indexes,
		record.WithLogger(log),
		record.WithMetrics(metrics),
		record.WithAuditPublisher(publisher),
		record.WithRetention(cfg.Retention),
		record.WithMonthlyQuota(cfg.MonthlyQuota),
	)
	if err != nil {
		log.Error("record services init failed", "error", err)
		os.Exit(1)
	}
	log.Info("record services ready", "kinds", services.Kinds())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, mux)
	log.Info("starting roadlog", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
