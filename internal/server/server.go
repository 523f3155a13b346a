// Package server exposes the pipeline's operational endpoints: liveness,
// run status and Prometheus metrics. It is optional; batch runs work
// without it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chesstrainer/video-indexer/internal/metrics"
)

// Status is the live view reported by /status.
type Status struct {
	RunID          string `json:"run_id"`
	Phase          string `json:"phase"`
	QuotaUsed      int    `json:"quota_used"`
	QuotaRemaining int    `json:"quota_remaining"`
	VideosIndexed  int    `json:"videos_indexed"`
	Matches        int    `json:"matches"`
}

// StatusFunc supplies the current status snapshot.
type StatusFunc func() Status

// Server wraps the HTTP surface around a running pipeline.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds the server. The metrics registry backs /metrics; status backs
// /status.
func New(port int, m *metrics.Metrics, status StatusFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "UP",
			"time":   time.Now().UTC(),
		})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status())
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a background goroutine and returns immediately. Server
// errors other than a clean close are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
