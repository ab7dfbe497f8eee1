package printerd

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/remote"
)

// Server exposes a printer to bridges over websocket sessions.
type Server struct {
	router   *gin.Engine
	printer  remote.Printer
	locator  ipc.Locator
	upgrader websocket.Upgrader
	logger   *zap.Logger
	sessions atomic.Int64
}

// NewServer serves p under loc.
func NewServer(p remote.Printer, loc ipc.Locator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		printer: p,
		locator: loc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/services/:package/:component", s.handleSession)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  s.locator.String(),
			"sessions": s.sessions.Load(),
		})
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleSession(c *gin.Context) {
	loc := ipc.Locator{Package: c.Param("package"), Component: c.Param("component")}
	if loc != s.locator {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found: " + loc.String()})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	n := s.sessions.Add(1)
	defer s.sessions.Add(-1)
	logger := s.logger.With(zap.String("remote", c.Request.RemoteAddr))
	logger.Info("bridge session opened", zap.Int64("sessions", n))

	if err := ipc.Serve(ws, s.printer); err != nil {
		logger.Warn("bridge session ended", zap.Error(err))
		return
	}
	logger.Info("bridge session closed")
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("printer service listening", zap.String("addr", addr), zap.String("service", s.locator.String()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
