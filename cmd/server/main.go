package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-gateway/internal/api/routes"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/database"
	"chat-gateway/internal/gateway"
	"chat-gateway/internal/kafka"
	"chat-gateway/internal/presence"
	"chat-gateway/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	logger.Info("Starting chat gateway")

	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	presenceRepo := presence.NewRedisRepository(redisClient.GetClient(), logger)
	messageStore := store.NewHTTPClient(
		cfg.MessageService.BaseURL,
		cfg.Gateway.ServiceToken,
		cfg.MessageService.Timeout,
		logger,
	)
	verifier := auth.NewJWTVerifier(cfg.JWT.Secret)

	var sink gateway.EventSink
	var publisher *kafka.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := kafka.InitProducer(cfg.Kafka.Brokers, "chat-gateway")
		if err != nil {
			logger.Error("Failed to connect to Kafka", "error", err)
			os.Exit(1)
		}
		publisher = kafka.NewEventPublisher(producer, cfg.Kafka.Topic, logger)
		sink = publisher
		defer publisher.Close()
	}

	hub := gateway.NewHub(messageStore, verifier, presenceRepo, sink, logger)

	router := routes.NewRouter(hub, redisClient.GetClient(), cfg, logger)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
