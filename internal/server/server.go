package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fightinglucida/FastMP/pkg/config"
	"github.com/fightinglucida/FastMP/pkg/credentials"
	"github.com/fightinglucida/FastMP/pkg/logger"
	"github.com/fightinglucida/FastMP/pkg/login"
	"github.com/fightinglucida/FastMP/pkg/store"
	"github.com/fightinglucida/FastMP/pkg/syncer"
)

// SyncRunner is the slice of the synchronizer the HTTP layer needs.
type SyncRunner interface {
	Sync(ctx context.Context, cred credentials.View, accountName string, maxItems int) <-chan syncer.Event
}

// Deps carries everything the HTTP surface serves.
type Deps struct {
	Machine   *login.Machine
	Manager   *credentials.Manager
	Scheduler *credentials.Scheduler
	Content   *store.ContentStore
	Syncer    SyncRunner
	Logger    logger.Logger
}

// Server is the HTTP front for login, credential management, and sync.
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	deps   Deps
	logger logger.Logger
}

// New builds the server and its routes.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	s := &Server{
		router: router,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/login/start", s.startLogin)
		v1.GET("/login/poll", s.pollLogin)

		v1.GET("/credentials", s.listCredentials)
		v1.GET("/credentials/current", s.currentCredential)
		v1.POST("/credentials/current", s.switchCredential)
		v1.DELETE("/credentials/:token", s.revokeCredential)
		v1.POST("/credentials/sweep", s.sweepCredentials)

		v1.GET("/sync", s.streamSync)

		v1.GET("/accounts", s.listAccounts)
		v1.GET("/accounts/:name/articles", s.listArticles)
		v1.DELETE("/accounts/:name", s.deleteAccount)
		v1.DELETE("/articles", s.deleteArticle)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWithFields("HTTP server listening", map[string]interface{}{
			"addr": httpServer.Addr,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
