// Package peer wraps the single HTTP call to a blockchain peer's submission
// endpoint. Every failure mode is normalized into a SubmissionOutcome; no
// error ever escapes the client's boundary. Retry is deliberately absent:
// redelivery is the worker's concern, at the message level.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/artifactchain/relay/internal/metrics"
	"github.com/artifactchain/relay/internal/tracing"
	"github.com/artifactchain/relay/pkg/domain"
)

const (
	userAgent          = "submission-worker/1.0"
	healthCheckTimeout = 5 * time.Second
	maxErrorBodyBytes  = 4 << 10
)

// SubmitRequest is the body of one peer submission call.
type SubmitRequest struct {
	ArtifactID string         `json:"artifactId"`
	Data       map[string]any `json:"data"`
	Timestamp  string         `json:"timestamp"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a peer client. The http.Client is shared across calls
// for connection pooling; timeout bounds each submission call end to end.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Submit issues one POST to the peer's submission endpoint and normalizes
// whatever happens into a SubmissionOutcome. Business failure arrives as a
// 2xx with success:false in the body; transport and protocol failures are
// synthesized into the same shape.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) domain.SubmissionOutcome {
	url := c.baseURL + "/submit-artifact"

	ctx, span := tracing.Tracer("peer").Start(ctx, "peer.submit")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return c.failure(req.ArtifactID, fmt.Sprintf("unexpected error communicating with peer: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return c.failure(req.ArtifactID, fmt.Sprintf("unexpected error communicating with peer: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	tracing.InjectHeaders(ctx, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return c.failure(req.ArtifactID, fmt.Sprintf("timeout communicating with peer at %s", url))
		}
		return c.failure(req.ArtifactID, fmt.Sprintf("connection error communicating with peer at %s: %v", url, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return c.failure(req.ArtifactID, fmt.Sprintf("HTTP error %d from peer: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	// Success bodies are read in full; the byte cap applies to error
	// bodies only, so a large valid outcome is never truncated.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(req.ArtifactID, fmt.Sprintf("connection error communicating with peer at %s: %v", url, err))
	}

	outcome, err := decodeOutcome(raw)
	if err != nil {
		return c.failure(req.ArtifactID, fmt.Sprintf("invalid response from peer: %v", err))
	}

	if outcome.Success {
		metrics.PeerSubmissionsTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.PeerSubmissionsTotal.WithLabelValues("rejected").Inc()
	}
	c.logger.Info("peer submission result", "artifactId", req.ArtifactID, "success", outcome.Success)
	return outcome
}

// HealthCheck reports whether the peer answers its liveness probe. All
// failure classes collapse to false; it never returns an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("peer health check failed", "err", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) failure(artifactID, msg string) domain.SubmissionOutcome {
	metrics.PeerSubmissionsTotal.WithLabelValues("transport_error").Inc()
	c.logger.Error("peer submission failed", "artifactId", artifactID, "err", msg)
	return domain.SubmissionOutcome{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// decodeOutcome parses a peer response body. The body must be a JSON object
// carrying a boolean success field; anything else is a protocol violation.
func decodeOutcome(raw []byte) (domain.SubmissionOutcome, error) {
	var probe struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.SubmissionOutcome{}, fmt.Errorf("malformed body: %w", err)
	}
	if probe.Success == nil {
		return domain.SubmissionOutcome{}, errors.New("missing 'success' field")
	}
	var outcome domain.SubmissionOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return domain.SubmissionOutcome{}, fmt.Errorf("malformed body: %w", err)
	}
	return outcome, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
