package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskpulse/internal/reminder"
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

	log.Info("Starting reminder-scheduler...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("interval_seconds", cfg.Scheduler.IntervalSeconds),
		zap.Int("batch_size", cfg.Scheduler.BatchSize),
	)

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL, log)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	reminderRepo := reminder.NewRepository(dbConn, log)
	scheduler := reminder.NewScheduler(
		reminderRepo,
		publisher,
		time.Duration(cfg.Scheduler.IntervalSeconds)*time.Second,
		cfg.Scheduler.BatchSize,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Start(ctx)

	// HTTP server for health; readiness also requires a live bus
	// connection since the scheduler is useless without one.
	port := cfg.Server.Port
	router := httpserver.NewRouter(
		httpserver.DBCheck(dbConn),
		httpserver.ReadyCheck{
			Name: "mq",
			Check: func(ctx context.Context) error {
				if !publisher.IsConnected() {
					return mq.ErrBusUnavailable
				}
				return nil
			},
		},
	)

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

	log.Info("reminder-scheduler is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down reminder-scheduler gracefully...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("reminder-scheduler shutdown complete")
}
