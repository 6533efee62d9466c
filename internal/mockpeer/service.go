// Package mockpeer serves a simulated blockchain peer over HTTP. The
// accept/reject decision is delegated to the engine, so outcomes are a
// deterministic function of the artifact text and test harnesses can force
// any path without restarting the service.
package mockpeer

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/artifactchain/relay/internal/engine"
	"github.com/artifactchain/relay/internal/metrics"
	"github.com/artifactchain/relay/pkg/domain"
)

const ServiceName = "mock-blockchain-peer"

// processingDelay models realistic peer latency so downstream timeout
// handling is exercised in integration setups.
const processingDelay = 300 * time.Millisecond

type Service struct {
	logger  *slog.Logger
	started time.Time
	delay   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithDelay overrides the simulated processing latency. Tests zero it.
func WithDelay(d time.Duration) Option {
	return func(s *Service) { s.delay = d }
}

func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger, started: time.Now(), delay: processingDelay}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the peer API onto an engine.
func (s *Service) Routes(r *gin.Engine) {
	r.POST("/submit-artifact", s.submitArtifact)
	r.GET("/health", s.health)
	r.GET("/test-patterns", s.testPatterns)
	r.GET("/stats", s.stats)
	r.GET("/", s.root)
}

type submitRequest struct {
	ArtifactID string         `json:"artifactId" binding:"required"`
	Data       map[string]any `json:"data"`
	Timestamp  string         `json:"timestamp"`
}

// submitArtifact decides one submission. Business failure travels in the
// body on HTTP 200; the status code only reflects transport-level problems
// with the request itself. Internal faults are likewise folded into a
// success:false body so callers never see a transport fault for them.
func (s *Service) submitArtifact(c *gin.Context) {
	start := time.Now()

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.SubmissionOutcome{
			Success:   false,
			Error:     "invalid request body",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("submission handler panic", "artifactId", req.ArtifactID, "panic", r)
			c.JSON(http.StatusOK, domain.SubmissionOutcome{
				Success:        false,
				Error:          "unexpected error during submission",
				PeerID:         engine.PeerID,
				Timestamp:      time.Now().UTC().Format(time.RFC3339),
				ProcessingTime: time.Since(start).Seconds(),
			})
		}
	}()

	s.logger.Info("received artifact submission", "artifactId", req.ArtifactID)
	time.Sleep(s.delay)

	decision := engine.DecideData(req.ArtifactID, req.Data)

	out := domain.SubmissionOutcome{
		Success:        decision.Accepted,
		PeerID:         engine.PeerID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		ProcessingTime: time.Since(start).Seconds(),
	}
	if decision.Accepted {
		out.TxID = decision.TxID
		metrics.PeerDecisionsTotal.WithLabelValues("accepted").Inc()
		s.logger.Info("artifact accepted", "artifactId", req.ArtifactID, "txId", decision.TxID)
	} else {
		out.Error = decision.Error
		metrics.PeerDecisionsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("artifact rejected", "artifactId", req.ArtifactID, "err", decision.Error)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

// testPatterns documents the failure-marker vocabulary for external test
// harnesses.
func (s *Service) testPatterns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"description":      "Use these markers in artifact title/description/keywords for predictable results",
		"success_patterns": engine.SuccessPatterns(),
		"failure_patterns": engine.FailurePatterns(),
		"default_behavior": "No markers present means the submission is always accepted",
	})
}

func (s *Service) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":      time.Since(s.started).Seconds(),
		"peer_id":             engine.PeerID,
		"processing_delay_ms": s.delay.Milliseconds(),
		"service_status":      "running",
		"documentation":       "/test-patterns",
	})
}

func (s *Service) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"version": "1.0.0",
		"peer_id": engine.PeerID,
		"endpoints": gin.H{
			"submit":   "/submit-artifact",
			"health":   "/health",
			"patterns": "/test-patterns",
			"stats":    "/stats",
		},
	})
}
