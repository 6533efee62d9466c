package domain

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SubmissionState string

const (
	StateSuccess SubmissionState = "SUCCESS"
	StateFailed  SubmissionState = "FAILED"
	StatePending SubmissionState = "PENDING"
)

// EventVersion tags every published submitted event; the listener schema
// rejects anything else.
const EventVersion = "v1"

var (
	_ encoding.BinaryMarshaler = SubmissionState("")
	_ encoding.TextMarshaler   = SubmissionState("")
)

func (s SubmissionState) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s SubmissionState) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

func (s SubmissionState) Valid() bool {
	switch s {
	case StateSuccess, StateFailed, StatePending:
		return true
	}
	return false
}

// ArtifactCreatedEvent is the message consumed from artifact.created.queue.
// Beyond artifactId the payload is opaque: whatever the producer attached is
// forwarded verbatim to the peer.
type ArtifactCreatedEvent struct {
	ArtifactID string
	Payload    map[string]any
}

// MarshalJSON emits the flat wire object ParseCreatedEvent expects: the
// payload fields at the top level with artifactId alongside them.
func (e ArtifactCreatedEvent) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["artifactId"] = e.ArtifactID
	return json.Marshal(flat)
}

// ParseCreatedEvent decodes a creation event body. A body that is not a JSON
// object or carries no artifactId is permanently malformed.
func ParseCreatedEvent(body []byte) (*ArtifactCreatedEvent, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	id, _ := payload["artifactId"].(string)
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("missing artifactId")
	}
	return &ArtifactCreatedEvent{ArtifactID: id, Payload: payload}, nil
}

// SubmissionOutcome is the normalized result of one peer call. It is never
// persisted; the worker projects it into an ArtifactSubmittedEvent.
type SubmissionOutcome struct {
	Success        bool    `json:"success"`
	TxID           string  `json:"txId,omitempty"`
	PeerID         string  `json:"peerId,omitempty"`
	Error          string  `json:"error,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
}

// ArtifactSubmittedEvent is published on artifact.submitted.queue.
// Invariant: BlockchainTxID is set iff SubmissionState is SUCCESS.
type ArtifactSubmittedEvent struct {
	ArtifactID      string          `json:"artifactId"`
	SubmissionState SubmissionState `json:"submissionState"`
	SubmittedAt     string          `json:"submittedAt"`
	BlockchainTxID  string          `json:"blockchainTxId,omitempty"`
	PeerID          string          `json:"peerId,omitempty"`
	Error           string          `json:"error,omitempty"`
	Version         string          `json:"version"`
}

// NewSubmittedEvent projects a peer outcome into the event the listener
// consumes. TxID is carried only on success, the error string only on
// failure.
func NewSubmittedEvent(artifactID string, outcome SubmissionOutcome, at time.Time) ArtifactSubmittedEvent {
	ev := ArtifactSubmittedEvent{
		ArtifactID:  artifactID,
		SubmittedAt: at.UTC().Format(time.RFC3339),
		Version:     EventVersion,
		PeerID:      outcome.PeerID,
	}
	if outcome.Success {
		ev.SubmissionState = StateSuccess
		ev.BlockchainTxID = outcome.TxID
	} else {
		ev.SubmissionState = StateFailed
		ev.Error = outcome.Error
	}
	return ev
}

// StatusUpdateRequest is the projection of a submitted event sent to the
// system-of-record PATCH endpoint.
type StatusUpdateRequest struct {
	SubmissionState SubmissionState `json:"submissionState"`
	SubmittedAt     string          `json:"submittedAt"`
	BlockchainTxID  string          `json:"blockchainTxId,omitempty"`
	PeerID          string          `json:"peerId,omitempty"`
}
