package api

import (
	"os"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/graph"
	"cognify/backend/internal/quiz"
	"cognify/backend/internal/service"
	"cognify/backend/internal/store"
	"cognify/backend/internal/ws"
	"cognify/backend/pkg/config"
	"cognify/backend/pkg/errors"
	"cognify/backend/pkg/jwt"
	"cognify/backend/pkg/logger"
	"cognify/backend/pkg/middleware"
	"cognify/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Deps carries everything the router wires into handlers
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Store      store.Store
	JWTService *jwt.Service
	Users      *service.UserService
	Orch       *chat.Orchestrator
	Quiz       *quiz.Manager
	Graphs     *graph.Service
	Hub        *ws.Hub
	// SchemaPath points at the OpenAPI document used for request validation.
	// Validation is skipped when the file is absent.
	SchemaPath string
}

// NewRouter builds the gin engine with the full middleware chain and all
// application routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every request gets a request-scoped logger.
	engine.Use(logger.Middleware(deps.Logger))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware())

	limiterOpts := middleware.DefaultRateLimiterOptions()
	limiterOpts.Limit = rate.Limit(deps.Config.Security.RateLimit)
	limiterOpts.Burst = deps.Config.Security.RateLimitBurst
	rateLimiter := middleware.NewRateLimiter(deps.Logger, limiterOpts)
	engine.Use(rateLimiter.Middleware())

	if deps.SchemaPath != "" {
		if _, err := os.Stat(deps.SchemaPath); err == nil {
			if v, err := validator.NewOpenAPIValidator(deps.SchemaPath); err == nil {
				engine.Use(v.Middleware())
			} else {
				deps.Logger.Warn("OpenAPI schema failed to load, skipping request validation", "error", err.Error())
			}
		}
	}

	jwtAuth := middleware.JWTAuthMiddleware(deps.JWTService, deps.Logger)

	authHandler := NewAuthHandler(deps.Users, deps.Logger)
	sessionHandler := NewSessionHandler(deps.Store, deps.Orch, deps.Graphs, deps.Logger)
	quizHandler := NewQuizHandler(deps.Quiz, deps.Logger)
	healthHandler := &Handler{}

	v1 := engine.Group("/api/v1")

	healthHandler.RegisterHealthRoutes(v1)

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/guest", authHandler.Guest)
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", jwtAuth, authHandler.Me)
	}

	protected := v1.Group("/")
	protected.Use(jwtAuth)
	{
		sessions := protected.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.POST("/:id/messages", sessionHandler.SendMessage)
		}

		quizzes := protected.Group("/quizzes")
		{
			quizzes.POST("", quizHandler.Start)
			quizzes.GET("/:id", quizHandler.Get)
			quizzes.POST("/:id/question", quizHandler.Question)
			quizzes.POST("/:id/answer", quizHandler.Answer)
		}

		if deps.Graphs != nil && deps.Config.Features.EnableKnowledgeGraph {
			graphHandler := NewGraphHandler(deps.Store, deps.Graphs, deps.Logger)
			protected.GET("/graph", graphHandler.Get)
			protected.GET("/sessions/:id/summary", graphHandler.Summary)
		}
	}

	if deps.Hub != nil && deps.Config.Features.EnableWebSockets {
		engine.GET("/ws", func(c *gin.Context) {
			ws.ServeWs(deps.Hub, deps.JWTService, c)
		})
	}

	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
