package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskhub/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	tokens, err := core.NewTokenService(cfg.TokenSecret, cfg.TokenLifetime)
	if err != nil {
		log.Fatalf("failed to construct token service: %v", err)
	}

	userRepo := core.NewPgUserRepository(db)
	taskRepo := core.NewPgTaskRepository(db)
	hasher := core.NewBcryptHasher()
	authService := core.NewAuthService(userRepo, hasher, tokens)
	recommendClient := core.NewHTTPRecommendClient(cfg.RecommendURL)
	recommendService := core.NewRecommendService(recommendClient, redisClient,
		time.Duration(cfg.RecommendCacheTTLSeconds)*time.Second)
	metricsService := core.NewMetricsService(redisClient)

	if err := core.BootstrapAdmin(ctx, userRepo, hasher, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	router := core.NewRouter(cfg, core.RouterDeps{
		Auth:      authService,
		Tokens:    tokens,
		Users:     userRepo,
		Tasks:     taskRepo,
		Recommend: recommendService,
		Metrics:   metricsService,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
