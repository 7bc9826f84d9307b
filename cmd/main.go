package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"driftwood/itemvault/internal/auth"
	"driftwood/itemvault/internal/config"
	"driftwood/itemvault/internal/handler"
	"driftwood/itemvault/internal/model"
	"driftwood/itemvault/internal/repository"
	"driftwood/itemvault/internal/service"
	"driftwood/itemvault/internal/store"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	var logger *zap.Logger
	if cfg.Log.Format == "json" {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// 3. Initialize document stores, one namespace per collection so the
	// item and user repositories never see each other's documents
	var itemKV, userKV store.KV
	switch cfg.Store.Backend {
	case "postgres":
		db, err := config.NewPostgresDB(cfg.Store.Postgres)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		itemKV, err = store.NewPostgres(db, "items", cfg.Store.PageSize)
		if err != nil {
			logger.Fatal("failed to initialize items store", zap.Error(err))
		}
		userKV, err = store.NewPostgres(db, "users", cfg.Store.PageSize)
		if err != nil {
			logger.Fatal("failed to initialize users store", zap.Error(err))
		}
		logger.Info("using Postgres document store")
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Store.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		itemKV = store.NewRedis(redisClient, cfg.Store.Redis.KeyPrefix+"items:", cfg.Store.PageSize)
		userKV = store.NewRedis(redisClient, cfg.Store.Redis.KeyPrefix+"users:", cfg.Store.PageSize)
		logger.Info("using Redis document store")
	case "memory":
		itemKV = store.NewMemory(cfg.Store.PageSize)
		userKV = store.NewMemory(cfg.Store.PageSize)
		logger.Info("using in-memory document store")
	default:
		logger.Fatal("unknown store backend", zap.String("backend", cfg.Store.Backend))
	}

	// 4. Initialize repositories
	itemRepo := repository.New[model.Item](itemKV)
	userRepo := repository.New[model.User](userKV)

	// 5. Initialize token verifier (oidc method only)
	var verifier auth.Verifier
	if cfg.Auth.Method == "oidc" {
		verifier = auth.NewKeySetVerifier(cfg.Auth.Issuer, cfg.Auth.ClientID, nil)
		logger.Info("token verifier initialized", zap.String("issuer", cfg.Auth.Issuer))
	}

	// 6. Initialize services and handlers
	userService := service.NewUserService(userRepo)
	itemHandler := handler.NewItemHandler(itemRepo)
	userHandler := handler.NewUserHandler(userService)

	// 7. Setup router
	router := handler.SetupRouter(cfg, logger, verifier, itemHandler, userHandler)

	// 8. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 10. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
