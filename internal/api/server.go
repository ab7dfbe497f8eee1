// Package api exposes the printer bridge over HTTP and WebSocket
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/bridge"
	"github.com/thereceipt/printer-bridge/internal/command"
	"github.com/thereceipt/printer-bridge/pkg/script"
)

// StatusClientClosedRequest is returned when the caller gave up waiting.
const StatusClientClosedRequest = 499

// Bridge is the facade the API drives.
type Bridge interface {
	command.Bridge
	WaitBound(ctx context.Context) error
	Watch() <-chan struct{}
	Pending() int
}

// Server is the API server
type Server struct {
	router   *gin.Engine
	bridge   Bridge
	executor *command.Executor
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new API server
func NewServer(b Bridge, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), corsMiddleware())

	server := &Server{
		router:   router,
		bridge:   b,
		executor: command.NewExecutor(b),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.POST("/bind", s.handleBind)
	s.router.POST("/unbind", s.handleUnbind)
	s.router.GET("/status", s.handleStatus)

	printing := s.router.Group("/print")
	printing.POST("/text", s.handlePrintText)
	printing.POST("/epson", s.handlePrintEpson)
	printing.POST("/bitmap", s.handlePrintBitmap)
	printing.POST("/barcode", s.handlePrintBarcode)
	printing.POST("/qrcode", s.handlePrintQRCode)
	printing.POST("/table", s.handlePrintTable)

	format := s.router.Group("/format")
	format.POST("/alignment", s.handleAlignment)
	format.POST("/size", s.handleTextSize)
	format.POST("/bold", s.handleBold)

	s.router.POST("/feed", s.handleFeed)
	s.router.POST("/command", s.handleCommand)
	s.router.POST("/script", s.handleScript)

	s.router.GET("/events", s.handleEvents)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// statusFor maps bridge errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrWaitCancelled):
		return StatusClientClosedRequest
	case errors.Is(err, bridge.ErrSerializerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, bridge.ErrRemoteFault):
		return http.StatusBadGateway
	case errors.Is(err, bridge.ErrInvalidArgument),
		errors.Is(err, bridge.ErrMalformedTableRow),
		errors.Is(err, bridge.ErrEmptyPayload),
		errors.Is(err, bridge.ErrDecodeFailed),
		errors.Is(err, bridge.ErrUnrecognizedImageFormat),
		errors.Is(err, bridge.ErrBitmapDecodeFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
}

func (s *Server) ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// bind decodes the JSON body into req, answering 400 on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return false
	}
	return true
}

// handleBind requests a connection. With ?wait=<duration> it also waits for
// the service to connect.
func (s *Server) handleBind(c *gin.Context) {
	if err := s.bridge.Bind(); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error(), "state": s.bridge.State().String()})
		return
	}

	if wait := c.Query("wait"); wait != "" {
		d, err := time.ParseDuration(wait)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid wait duration"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		if err := s.bridge.WaitBound(ctx); err != nil {
			status := statusFor(err)
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, gin.H{"success": false, "error": err.Error(), "state": s.bridge.State().String()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": s.bridge.State().String()})
}

func (s *Server) handleUnbind(c *gin.Context) {
	s.bridge.Unbind()
	c.JSON(http.StatusOK, gin.H{"success": true, "state": s.bridge.State().String()})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   s.bridge.State().String(),
		"pending": s.bridge.Pending(),
	})
}

func (s *Server) handlePrintText(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.PrintText(c.Request.Context(), req.Text))
}

func (s *Server) handlePrintEpson(c *gin.Context) {
	var req struct {
		Data string `json:"data"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.PrintEpsonFromBase64(c.Request.Context(), req.Data))
}

func (s *Server) handlePrintBitmap(c *gin.Context) {
	var req struct {
		Image string `json:"image"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.PrintBitmapFromBase64(c.Request.Context(), req.Image))
}

func (s *Server) handlePrintBarcode(c *gin.Context) {
	var req struct {
		Data      string `json:"data" binding:"required"`
		Symbology int    `json:"symbology"`
		Height    int    `json:"height"`
		Width     int    `json:"width"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.PrintBarCode(c.Request.Context(), req.Data, req.Symbology, req.Height, req.Width))
}

func (s *Server) handlePrintQRCode(c *gin.Context) {
	var req struct {
		Data       string `json:"data" binding:"required"`
		ModuleSize int    `json:"module_size"`
		ErrorLevel int    `json:"error_level"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.PrintQRCode(c.Request.Context(), req.Data, req.ModuleSize, req.ErrorLevel))
}

func (s *Server) handlePrintTable(c *gin.Context) {
	var req struct {
		Text      []string `json:"text"`
		Weight    []int    `json:"weight"`
		Alignment []int    `json:"alignment"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.PrintTableRow(c.Request.Context(), req.Text, req.Weight, req.Alignment))
}

func (s *Server) handleAlignment(c *gin.Context) {
	var req struct {
		Alignment int `json:"alignment"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.SetAlignment(c.Request.Context(), req.Alignment))
}

func (s *Server) handleTextSize(c *gin.Context) {
	var req struct {
		Size float64 `json:"size"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.SetTextSize(c.Request.Context(), req.Size))
}

func (s *Server) handleBold(c *gin.Context) {
	var req struct {
		Bold bool `json:"bold"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.SetTextBold(c.Request.Context(), req.Bold))
}

func (s *Server) handleFeed(c *gin.Context) {
	var req struct {
		Lines int `json:"lines"`
	}
	if !bind(c, &req) {
		return
	}
	s.respond(c, s.bridge.NextLine(c.Request.Context(), req.Lines))
}

func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c)
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "command is required"})
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)

	if !result.Success {
		c.JSON(statusFor(result.Err), gin.H{
			"success": false,
			"error":   result.Error,
		})
		return
	}

	response := gin.H{"success": true}
	if result.Message != "" {
		response["message"] = result.Message
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.JSON(http.StatusOK, response)
}

// handleScript runs a print script posted as JSON or YAML.
func (s *Server) handleScript(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	sc, err := script.Parse(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := script.Run(c.Request.Context(), s.bridge, sc); err != nil {
		response := gin.H{"success": false, "error": err.Error()}
		var stepErr *script.StepError
		if errors.As(err, &stepErr) {
			response["step"] = stepErr.Index
		}
		c.JSON(statusFor(err), response)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "steps": len(sc.Steps)})
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
		s.logger.Info("bridge API listening", zap.String("addr", addr))
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

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
