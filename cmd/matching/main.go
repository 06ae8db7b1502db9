package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openride/dispatch/internal/matching"
	"github.com/openride/dispatch/pkg/config"
	"github.com/openride/dispatch/pkg/database"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("matching")
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := database.Migrate(cfg.Database.DSN()); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := kafka.EnsureTopics(cfg.Kafka.BootstrapServers); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	producer := kafka.NewProducer(cfg.Kafka.BootstrapServers)
	consumer := kafka.NewConsumer(cfg.Kafka.BootstrapServers)

	repo := matching.NewRepository(pool)
	service := matching.NewService(repo, producer)
	service.Start(consumer)

	// The matching service has no API surface; health and metrics only.
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Metrics.Port, Handler: router}
	go func() {
		logger.Info("matching service listening", zap.String("port", cfg.Metrics.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	consumer.Close()
	producer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
}
