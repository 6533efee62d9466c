// Package gateway is the client for the system-of-record's status endpoint.
// The update is idempotent per artifact, so duplicate deliveries of the same
// submitted event converge on the same stored state.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artifactchain/relay/internal/metrics"
	"github.com/artifactchain/relay/internal/tracing"
	"github.com/artifactchain/relay/pkg/domain"
)

const (
	userAgent         = "submission-listener/1.0"
	maxErrorBodyBytes = 4 << 10
)

type Client struct {
	baseURL     string
	apiKey      string
	serviceRole string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(baseURL, apiKey, serviceRole string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		serviceRole: serviceRole,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// UpdateStatus issues exactly one PATCH for the artifact. Any failure is
// returned as an error; the caller decides the message verdict. There is no
// retry here: redelivery could race a later, more current update.
func (c *Client) UpdateStatus(ctx context.Context, artifactID string, update domain.StatusUpdateRequest) error {
	url := c.baseURL + "/" + artifactID

	ctx, span := tracing.Tracer("gateway").Start(ctx, "gateway.update_status")
	defer span.End()

	body, err := json.Marshal(update)
	if err != nil {
		metrics.StatusUpdatesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("encode status update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		metrics.StatusUpdatesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("build status update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Service-Role", c.serviceRole)
	req.Header.Set("User-Agent", userAgent)
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.StatusUpdatesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("status update for %s: %w", artifactID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		metrics.StatusUpdatesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("status update for %s: HTTP %d: %s", artifactID, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	metrics.StatusUpdatesTotal.WithLabelValues("success").Inc()
	c.logger.Info("artifact status updated", "artifactId", artifactID, "state", update.SubmissionState)
	return nil
}
