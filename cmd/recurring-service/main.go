package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/deadletter"
	"taskpulse/internal/recurring"
	"taskpulse/internal/task"
	"taskpulse/pkg/config"
	"taskpulse/pkg/db"
	"taskpulse/pkg/httpserver"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/mq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting recurring-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("task_api", cfg.TaskAPI.BaseURL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// MQ publisher, used to replay dead-lettered events.
	publisher, err := mq.NewPublisher(cfg.MQ.URL, log)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories and handlers
	taskRepo := task.NewRepository(dbConn, log)
	taskClient := task.NewClient(cfg.TaskAPI.BaseURL)
	dlRepo := deadletter.NewRepository(dbConn)
	handler := recurring.NewHandler(taskRepo, taskClient, dlRepo, log)

	log.Info("Initializing MQ consumer for recurrence.trigger...",
		zap.String("queue", "recurring.trigger.q"),
		zap.String("routing_key", contracts.EventRecurrenceTrigger),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "recurring.trigger.q", contracts.EventRecurrenceTrigger, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumer.SetHandler(handler.Handle)

	go func() {
		log.Info("Starting recurrence.trigger consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Recurrence consumer failed", zap.Error(err))
		}
	}()

	// HTTP server: health plus the dead-letter admin API.
	port := cfg.Server.Port
	router := httpserver.NewRouter(httpserver.DBCheck(dbConn))
	deadletter.NewAdminHandler(dlRepo, publisher, log).Register(router.Engine)

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

	log.Info("recurring-service is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down recurring-service gracefully...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("recurring-service shutdown complete")
}
