package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/bot"
	"github.com/PatricioTamez/orchestrator2.0/internal/chat"
	"github.com/PatricioTamez/orchestrator2.0/internal/config"
	"github.com/PatricioTamez/orchestrator2.0/internal/handlers"
	"github.com/PatricioTamez/orchestrator2.0/internal/identity"
	"github.com/PatricioTamez/orchestrator2.0/internal/middleware"
	mongorepo "github.com/PatricioTamez/orchestrator2.0/internal/repository/mongo"
	"github.com/PatricioTamez/orchestrator2.0/internal/store"
	"github.com/PatricioTamez/orchestrator2.0/internal/store/memory"
	"github.com/PatricioTamez/orchestrator2.0/internal/store/redisstore"
	"github.com/PatricioTamez/orchestrator2.0/internal/store/wire"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize MongoDB
	logger.Info("connecting to MongoDB")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongorepo.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database)
	cancel()
	if err != nil {
		logger.Fatal("MongoDB connection failed", zap.Error(err))
	}
	logger.Info("connected to MongoDB")

	repos := mongoClient.Repositories()

	// Live store backend
	liveStore, storeHealthy, err := newStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal("live store initialization failed",
			zap.String("kind", cfg.Store.Kind), zap.Error(err))
	}
	logger.Info("live store ready", zap.String("kind", cfg.Store.Kind))

	// Identity provider and chat clients
	provider := identity.NewProvider(repos.Users, cfg.JWT.Secret, cfg.JWT.Expiration, logger)
	responder := bot.FromConfig(cfg.Chatbot, logger)
	manager := chat.NewManager(liveStore, responder, logger)
	provider.OnChange(manager.HandleSession)

	handler := handlers.NewHandler(
		provider,
		manager,
		func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return mongoClient.Ping(ctx) == nil
		},
		storeHealthy,
		logger,
	)

	router := setupRouter(handler, provider, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	manager.Shutdown()

	if err := liveStore.Close(); err != nil {
		logger.Warn("error closing live store", zap.Error(err))
	}

	if err := mongoClient.Close(ctx); err != nil {
		logger.Warn("error closing MongoDB connection", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newStore builds the configured live store backend plus its health
// probe. The wire backend connects in the background and reconnects on
// its own, so a failed initial dial does not abort startup.
func newStore(cfg config.StoreConfig, logger *zap.Logger) (store.LiveStore, func() bool, error) {
	switch cfg.Kind {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := redisstore.New(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() bool { return true }, nil

	case "wire":
		client := wire.New(cfg.WireURL, logger)
		client.SetReconnectEnabled(true)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Connect(ctx); err != nil {
				logger.Warn("initial store connection failed, retrying in background",
					zap.Error(err))
			}
		}()
		return client, client.IsConnected, nil

	default:
		return memory.New(), func() bool { return true }, nil
	}
}

func setupRouter(h *handlers.Handler, provider *identity.Provider, cfg *config.Config) *gin.Engine {
	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(middleware.CORS(cfg.Server.CORSOrigin))

	// Public routes
	router.GET("/health", h.HealthCheck)
	router.POST("/signup", h.Signup)
	router.POST("/login", h.Login)
	router.POST("/login/external", h.LoginExternal)

	// Protected routes
	authorized := router.Group("/")
	authorized.Use(middleware.AuthMiddleware(provider))
	{
		authorized.POST("/logout", h.Logout)

		authorized.GET("/rooms", h.GetRooms)
		authorized.POST("/rooms", h.CreateRoom)
		authorized.DELETE("/rooms/:id", h.DeleteRoom)
		authorized.POST("/rooms/:id/select", h.SelectRoom)

		authorized.GET("/messages", h.GetMessages)
		authorized.POST("/message", h.SendMessage)

		authorized.GET("/draft", h.GetDraft)
		authorized.PUT("/draft", h.PutDraft)

		authorized.GET("/events", h.Events)
	}

	return router
}
