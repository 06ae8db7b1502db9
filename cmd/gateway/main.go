package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openride/dispatch/internal/gateway"
	"github.com/openride/dispatch/pkg/config"
	"github.com/openride/dispatch/pkg/database"
	"github.com/openride/dispatch/pkg/driverindex"
	"github.com/openride/dispatch/pkg/kafka"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/middleware"
	"github.com/openride/dispatch/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("gateway")
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()

	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	defer redisClient.Close()

	if err := kafka.EnsureTopics(cfg.Kafka.BootstrapServers); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	consumer := kafka.NewConsumer(cfg.Kafka.BootstrapServers)

	hub := gateway.NewHub()
	index := driverindex.New()
	repo := gateway.NewRepository(pool)
	service := gateway.NewService(hub, index, repo, redisClient)
	handler := gateway.NewHandler(service, hub)

	service.Start(consumer)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	handler.RegisterRoutes(router)

	metricsSrv := startMetricsServer(cfg.Metrics.Port)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		logger.Info("gateway listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	consumer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)
}

func corsConfig(origins string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowOrigins = splitOrigins(origins)
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	return c
}

func splitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func startMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		logger.Info("metrics listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
