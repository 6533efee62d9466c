// Package health exposes the sidecar HTTP surface shared by the queue
// consumers: a liveness endpoint and the Prometheus scrape endpoint.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artifactchain/relay/internal/middleware"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type Server struct {
	service string
	logger  *slog.Logger
	checks  map[string]Check
	engine  *gin.Engine
}

func NewServer(service string, logger *slog.Logger, checks map[string]Check) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{service: service, logger: logger, checks: checks}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggerMiddleware(logger))
	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine = engine
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// health reports degraded with HTTP 503 when any dependency check fails,
// so orchestrators can restart the consumer instead of letting it idle
// against a dead broker.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			deps[name] = err.Error()
			s.logger.Warn("dependency check failed", "dependency", name, "err", err)
		} else {
			deps[name] = "ok"
		}
	}

	body := gin.H{
		"status":    status,
		"service":   s.service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	c.JSON(code, body)
}

// ListenAndServe runs the sidecar server until ctx is canceled, then shuts
// it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	return srv.Shutdown(shutdownCtx)
}
