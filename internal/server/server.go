package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier-relay/config"
	"courier-relay/internal/handler"
	"courier-relay/internal/metrics"
	"courier-relay/internal/middleware"
	redisx "courier-relay/internal/redis"
	"courier-relay/internal/services"
	"courier-relay/internal/transport/httpdto"
	"courier-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Device       *handler.DeviceHandler
	Conversation *handler.ConversationHandler
	Attachment   *handler.AttachmentHandler
	WS           *WebSocketHandler
}

// HealthFunc reports whether the relay's backends are reachable.
type HealthFunc func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.App.Mode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.App.Mode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.App.Port),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redisx.RateLimiter, m *metrics.Metrics, health HealthFunc) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
	if limiter != nil {
		s.engine.Use(middleware.RateLimitMiddleware(limiter))
	}

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if m != nil {
		s.engine.GET("/metrics", gin.WrapH(m.Handler()))
	}

	auth := s.engine.Group("/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(authService))
	{
		v1.GET("/identities/:handle/devices", handlers.Device.List)
		v1.GET("/identities/:handle/presence", handlers.Device.Presence)
		v1.GET("/conversations", handlers.Conversation.List)
		v1.GET("/conversations/:peer/messages", handlers.Conversation.History)
		v1.POST("/attachments", handlers.Attachment.Upload)
		v1.GET("/attachments/:owner/:id", handlers.Attachment.Download)
	}

	// The socket authenticates in-band with an identify frame, so the
	// upgrade itself stays outside the auth middleware.
	s.engine.GET("/ws", handlers.WS.Handle)
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.App.Port)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.App.Port)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
