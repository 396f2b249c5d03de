package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cognify/backend/internal/api"
	"cognify/backend/internal/chat"
	"cognify/backend/internal/graph"
	"cognify/backend/internal/llm"
	"cognify/backend/internal/quiz"
	"cognify/backend/internal/rpc"
	"cognify/backend/internal/service"
	"cognify/backend/internal/store"
	"cognify/backend/internal/ws"
	"cognify/backend/pkg/cache"
	"cognify/backend/pkg/config"
	"cognify/backend/pkg/health"
	"cognify/backend/pkg/jwt"
	"cognify/backend/pkg/logger"
	"cognify/backend/pkg/secrets"
	"cognify/backend/shared/observability"
	sharedredis "cognify/backend/shared/redis"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.New()

	logConfig := logger.Config{
		Level:  cfg.Logging.Level,
		JSON:   cfg.Logging.Format == "json",
		Output: os.Stderr,
	}
	appLogger := logger.New(logConfig)
	logger.SetGlobal(appLogger)

	if err := secrets.Init(appLogger); err != nil {
		log.Fatalf("Failed to initialize secrets manager: %v", err)
	}

	// Tracing and metrics.
	shutdownTracing := observability.SetupTracing("cognify-backend")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	// Storage backend.
	st, dbPing, err := buildStore(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Model gateway. The API key comes from the secrets manager with an
	// environment fallback.
	ctx := context.Background()
	apiKey := secrets.GetSecretWithDefault(ctx, "llm_api_key", os.Getenv("LLM_API_KEY"))
	gateway, err := llm.New(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		APIKey:    apiKey,
		BaseURL:   cfg.LLM.BaseURL,
		Timeout:   cfg.LLM.Timeout,
		Streaming: cfg.LLM.Streaming,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize model gateway: %v", err)
	}

	jwtSecret := secrets.GetSecretWithDefault(ctx, "jwt_secret", cfg.JWT.Secret)
	jwtService := jwt.NewService(jwtSecret, cfg.JWT.ExpiryHours)

	userService := service.NewUserService(st, jwtService)
	orchestrator := chat.NewOrchestrator(st, gateway, appLogger, cfg.LLM.FallbackText)
	quizManager := quiz.NewManager(st, gateway, orchestrator, appLogger)

	var graphService *graph.Service
	if cfg.Features.EnableKnowledgeGraph {
		var redisClient *sharedredis.RedisClient
		if cfg.Redis.Enabled {
			redisClient = sharedredis.NewRedisClient()
		}
		l1 := cache.NewCache(cfg.Cache.TTL, cfg.Cache.PurgeWindow, cfg.Cache.MaxSize)
		graphService = graph.NewService(gateway, l1, redisClient, appLogger, cfg.Cache.TTL)
	}

	hub := ws.NewHub(st, orchestrator, quizManager, appLogger)
	go hub.Run()

	engine := api.NewRouter(api.Deps{
		Config:     cfg,
		Logger:     appLogger,
		Store:      st,
		JWTService: jwtService,
		Users:      userService,
		Orch:       orchestrator,
		Quiz:       quizManager,
		Graphs:     graphService,
		Hub:        hub,
		SchemaPath: "openapi.yaml",
	})

	checker := health.NewChecker(appLogger, 30*time.Second)
	if dbPing != nil {
		checker.RegisterDatabaseCheck(dbPing)
	}
	checker.Start()
	engine.GET("/healthz", gin.WrapF(checker.HTTPHandler()))

	var grpcHealth *rpc.HealthServer
	if cfg.Features.EnableGRPCHealth {
		grpcHealth = rpc.NewHealthServer(appLogger)
		grpcHealth.SetServing("", true)
		go func() {
			if err := grpcHealth.Serve("9090"); err != nil {
				appLogger.Error("gRPC health server stopped", "error", err.Error())
			}
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // streaming responses manage their own lifetime
	}

	go func() {
		appLogger.Info("Server listening", "port", cfg.Server.Port, "env", cfg.Server.Env, "storage", cfg.Storage.Backend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	appLogger.Info("Shutting down server")
	if grpcHealth != nil {
		grpcHealth.SetServing("", false)
		grpcHealth.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Failed to shutdown server: %v", err)
	}
	appLogger.Info("Server shutdown complete")
}

// buildStore selects the storage backend from configuration. The second
// return value pings the database, nil for the in-memory backend.
func buildStore(cfg *config.Config, appLogger *logger.Logger) (store.Store, func() error, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := config.NewDB()
		if err != nil {
			return nil, nil, err
		}
		st, err := store.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		appLogger.Info("Using postgres transcript store", "db", cfg.Database.Name)
		return st, func() error { return config.TestConnection(db) }, nil
	default:
		appLogger.Info("Using in-memory transcript store")
		return store.NewMemoryStore(), nil, nil
	}
}
