package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskpulse/internal/audit"
	"taskpulse/internal/deadletter"
	"taskpulse/pkg/config"
	"taskpulse/pkg/db"
	"taskpulse/pkg/httpserver"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/mq"
	"taskpulse/pkg/redis"
	"taskpulse/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting audit-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis dedup fast path. Optional: when Redis is absent the unique
	// event_id constraint still guarantees idempotency.
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	// Repositories and handlers
	auditRepo := audit.NewRepository(dbConn, log)
	dlRepo := deadletter.NewRepository(dbConn)
	auditHandler := audit.NewHandler(auditRepo, deduper, dlRepo, log)

	// One queue bound to all four task lifecycle routing keys.
	log.Info("Initializing MQ consumer for task lifecycle events...",
		zap.String("queue", "audit.task.q"),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "audit.task.q", "task.*", log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumer.SetHandler(auditHandler.Handle)

	go func() {
		log.Info("Starting task lifecycle consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Audit consumer failed", zap.Error(err))
		}
	}()

	// HTTP server: health plus the audit query API.
	port := cfg.Server.Port
	router := httpserver.NewRouter(httpserver.DBCheck(dbConn))
	audit.NewQueryHandler(auditRepo, log).Register(router.Engine)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("audit-service is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down audit-service gracefully...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("audit-service shutdown complete")
}
