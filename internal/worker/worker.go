// Package worker consumes artifact.created events, drives the peer
// submission, and publishes exactly one artifact.submitted event per
// consumed message.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/artifactchain/relay/internal/metrics"
	"github.com/artifactchain/relay/internal/peer"
	"github.com/artifactchain/relay/pkg/broker"
	"github.com/artifactchain/relay/pkg/domain"
)

// ConsumerTag names the worker's processing list on the broker. It must be
// stable across restarts so unacknowledged deliveries are re-driven.
const ConsumerTag = "submission-worker"

// PeerSubmitter is the slice of the peer client the handler needs.
type PeerSubmitter interface {
	Submit(ctx context.Context, req peer.SubmitRequest) domain.SubmissionOutcome
}

type Handler struct {
	peer           PeerSubmitter
	publisher      broker.Publisher
	queueCreated   string
	queueSubmitted string
	logger         *slog.Logger
	now            func() time.Time
}

func NewHandler(p PeerSubmitter, pub broker.Publisher, queueCreated, queueSubmitted string, logger *slog.Logger, now func() time.Time) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{
		peer:           p,
		publisher:      pub,
		queueCreated:   queueCreated,
		queueSubmitted: queueSubmitted,
		logger:         logger,
		now:            now,
	}
}

// HandleCreated processes one artifact.created message.
//
// Malformed bodies are dropped: they cannot self-heal through redelivery.
// For well-formed bodies a submitted event is always published, carrying
// either the peer's real outcome or a synthesized failure, so the listener
// eventually observes a terminal state for every accepted creation event.
// The message is acknowledged once that publish succeeds; a failed publish
// drops the message rather than requeueing, since the peer call already
// happened and is not idempotent on the peer side.
func (h *Handler) HandleCreated(ctx context.Context, body []byte) broker.Verdict {
	metrics.MessagesConsumedTotal.WithLabelValues(h.queueCreated).Inc()
	start := h.now()
	verdict := h.handle(ctx, body)
	metrics.MessagesSettledTotal.WithLabelValues(h.queueCreated, verdict.String()).Inc()
	metrics.MessageProcessingSeconds.WithLabelValues(h.queueCreated).Observe(time.Since(start).Seconds())
	return verdict
}

func (h *Handler) handle(ctx context.Context, body []byte) broker.Verdict {
	ev, err := domain.ParseCreatedEvent(body)
	if err != nil {
		h.logger.Error("rejecting malformed creation event", "err", err)
		return broker.RejectDrop
	}

	h.logger.Info("processing artifact submission", "artifactId", ev.ArtifactID)
	outcome := h.submit(ctx, ev)

	submitted := domain.NewSubmittedEvent(ev.ArtifactID, outcome, h.now())
	payload, err := json.Marshal(submitted)
	if err != nil {
		h.logger.Error("encoding submitted event failed", "artifactId", ev.ArtifactID, "err", err)
		return broker.RejectDrop
	}
	if err := h.publisher.Publish(ctx, h.queueSubmitted, payload); err != nil {
		h.logger.Error("publishing submitted event failed", "artifactId", ev.ArtifactID, "err", err)
		return broker.RejectDrop
	}

	h.logger.Info("published submitted event",
		"artifactId", ev.ArtifactID, "state", submitted.SubmissionState)
	return broker.Ack
}

// submit calls the peer, converting any programming fault in the call path
// into a synthesized failure outcome so a submitted event still goes out.
func (h *Handler) submit(ctx context.Context, ev *domain.ArtifactCreatedEvent) (outcome domain.SubmissionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("peer submission panicked", "artifactId", ev.ArtifactID, "panic", r)
			outcome = domain.SubmissionOutcome{
				Success: false,
				Error:   fmt.Sprintf("submission processing failed: %v", r),
			}
		}
	}()
	return h.peer.Submit(ctx, peer.SubmitRequest{
		ArtifactID: ev.ArtifactID,
		Data:       ev.Payload,
		Timestamp:  h.now().UTC().Format(time.RFC3339),
	})
}

// Run consumes the creation queue until ctx is canceled.
func Run(ctx context.Context, b *broker.Broker, h *Handler) error {
	return b.Consume(ctx, h.queueCreated, ConsumerTag, h.HandleCreated)
}
