// Package listener consumes artifact.submitted events, validates them
// against the v1 schema, and applies them to the system of record.
package listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/artifactchain/relay/internal/metrics"
	"github.com/artifactchain/relay/internal/schema"
	"github.com/artifactchain/relay/pkg/broker"
	"github.com/artifactchain/relay/pkg/domain"
)

// ConsumerTag names the listener's processing list on the broker.
const ConsumerTag = "submission-listener"

// StatusUpdater is the slice of the gateway client the handler needs.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, artifactID string, update domain.StatusUpdateRequest) error
}

type Handler struct {
	validator      *schema.Validator
	gateway        StatusUpdater
	queueSubmitted string
	logger         *slog.Logger
	now            func() time.Time
}

func NewHandler(v *schema.Validator, g StatusUpdater, queueSubmitted string, logger *slog.Logger, now func() time.Time) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{
		validator:      v,
		gateway:        g,
		queueSubmitted: queueSubmitted,
		logger:         logger,
		now:            now,
	}
}

// HandleSubmitted processes one artifact.submitted message.
//
// Schema-invalid bodies are dropped without touching the gateway: they will
// never become valid through redelivery. A failed status update is also
// dropped rather than requeued; automatic redelivery could race a later,
// more current update for the same artifact, so the message is parked for
// operator attention instead.
func (h *Handler) HandleSubmitted(ctx context.Context, body []byte) broker.Verdict {
	metrics.MessagesConsumedTotal.WithLabelValues(h.queueSubmitted).Inc()
	start := h.now()
	verdict := h.handle(ctx, body)
	metrics.MessagesSettledTotal.WithLabelValues(h.queueSubmitted, verdict.String()).Inc()
	metrics.MessageProcessingSeconds.WithLabelValues(h.queueSubmitted).Observe(time.Since(start).Seconds())
	return verdict
}

func (h *Handler) handle(ctx context.Context, body []byte) broker.Verdict {
	ev, err := h.validator.Validate(body)
	if err != nil {
		h.logger.Error("rejecting invalid submitted event", "err", err)
		return broker.RejectDrop
	}

	update := domain.StatusUpdateRequest{
		SubmissionState: ev.SubmissionState,
		SubmittedAt:     ev.SubmittedAt,
		BlockchainTxID:  ev.BlockchainTxID,
		PeerID:          ev.PeerID,
	}
	if err := h.gateway.UpdateStatus(ctx, ev.ArtifactID, update); err != nil {
		h.logger.Error("status update failed", "artifactId", ev.ArtifactID, "err", err)
		return broker.RejectDrop
	}

	h.logger.Info("artifact status applied", "artifactId", ev.ArtifactID, "state", ev.SubmissionState)
	return broker.Ack
}

// Run consumes the submitted queue until ctx is canceled.
func Run(ctx context.Context, b *broker.Broker, h *Handler) error {
	return b.Consume(ctx, h.queueSubmitted, ConsumerTag, h.HandleSubmitted)
}
