package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/deadletter"
	"taskpulse/internal/notify"
	"taskpulse/internal/user"
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

	log.Info("Starting notification-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("smtp_host", cfg.SMTP.Host),
	)

	// DB, needed only to resolve fallback recipients.
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	// Live channel registry and delivery paths.
	registry := notify.NewRegistry(log)
	userRepo := user.NewRepository(dbConn)
	dlRepo := deadletter.NewRepository(dbConn)
	emailSender := notify.NewEmailSender(cfg.SMTP, userRepo, log)
	handler := notify.NewHandler(registry, emailSender, deduper, dlRepo, log)

	log.Info("Initializing MQ consumer for reminder.due...",
		zap.String("queue", "notify.reminder.q"),
		zap.String("routing_key", contracts.EventReminderDue),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "notify.reminder.q", contracts.EventReminderDue, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumer.SetHandler(handler.Handle)

	go func() {
		log.Info("Starting reminder.due consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Reminder consumer failed", zap.Error(err))
		}
	}()

	// HTTP server: health plus the websocket endpoint.
	port := cfg.Server.Port
	router := httpserver.NewRouter(httpserver.DBCheck(dbConn))
	notify.NewWSHandler(registry, cfg.JWT.Secret, log).Register(router.Engine)
	router.Engine.GET("/connections", func(c *gin.Context) {
		c.JSON(200, gin.H{"count": registry.ConnectionCount()})
	})

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

	log.Info("notification-service is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification-service gracefully...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("notification-service shutdown complete")
}
