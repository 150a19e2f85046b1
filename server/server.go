// Package server exposes the import pipeline to UIs over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/domain"
	"github.com/MyRustyCage/pp-image-importer/observability"
	"github.com/MyRustyCage/pp-image-importer/services"
)

// Options configures the HTTP server.
type Options struct {
	Importer       services.Importer
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.Logger
	Debug          bool
}

// Server routes UI traffic to the importer. Imports run on the server context, not the
// request context: a UI that goes away does not cancel its import.
type Server struct {
	ctx      context.Context
	importer services.Importer
	logger   *zap.Logger
	engine   *gin.Engine
	upgrader *websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
	readers  sync.WaitGroup
	inflight sync.WaitGroup
}

type importRequest struct {
	URL       string `json:"url" binding:"required"`
	RequestID string `json:"request_id"`
}

type importResponse struct {
	domain.OutboundMessage
	Kind   string                   `json:"kind,omitempty"`
	Events []domain.OutboundMessage `json:"events"`
}

func New(ctx context.Context, opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		ctx:      ctx,
		importer: opts.Importer,
		logger:   logger,
		sessions: make(map[*session]struct{}),
		upgrader: &websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(logger))
	engine.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(observability.Handler(opts.Gatherer)))
	}
	engine.GET("/ws", s.handleWebsocket)
	engine.POST("/api/imports", s.handleImport)

	s.engine = engine
	context.AfterFunc(ctx, s.closeSessions)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Wait blocks until imports started from websocket sessions have finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Shutdown closes every open websocket session, refuses new ones and waits for the imports
// they started. Hijacked connections are not tracked by http.Server.Shutdown.
func (s *Server) Shutdown() {
	s.closeSessions()
	s.readers.Wait()
	s.Wait()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	s.Shutdown()
	return err
}

func (s *Server) handleImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var events []domain.OutboundMessage
	notifier := services.NotifierFunc(func(_ context.Context, event domain.ProgressEvent) error {
		events = append(events, domain.NewOutboundMessage(event, req.RequestID))
		return nil
	})

	err := s.importer.ImportImage(s.ctx, req.URL, notifier)
	resp := importResponse{Events: events}
	if len(events) > 0 {
		resp.OutboundMessage = events[len(events)-1]
	}
	if err != nil {
		resp.Kind = domain.KindName(err)
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || containsWildcard(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || containsWildcard(origins) {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
