package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/artifactchain/relay/internal/schema"
	"github.com/artifactchain/relay/pkg/broker"
	"github.com/artifactchain/relay/pkg/domain"
)

type fakeGateway struct {
	err     error
	calls   int
	lastID  string
	lastReq domain.StatusUpdateRequest
}

func (f *fakeGateway) UpdateStatus(_ context.Context, artifactID string, update domain.StatusUpdateRequest) error {
	f.calls++
	f.lastID = artifactID
	f.lastReq = update
	return f.err
}

func newHandler(t *testing.T, g *fakeGateway) *Handler {
	t.Helper()
	v, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("schema.NewValidator() error = %v", err)
	}
	return NewHandler(v, g, broker.QueueSubmitted, nil, nil)
}

const validSuccess = `{
	"artifactId": "a-1",
	"submissionState": "SUCCESS",
	"submittedAt": "2025-03-01T12:00:00Z",
	"blockchainTxId": "0xabc",
	"peerId": "p-1",
	"version": "v1"
}`

func TestHandleSubmittedSuccess(t *testing.T) {
	g := &fakeGateway{}
	h := newHandler(t, g)

	v := h.HandleSubmitted(context.Background(), []byte(validSuccess))
	if v != broker.Ack {
		t.Fatalf("verdict = %v, want Ack", v)
	}
	if g.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", g.calls)
	}
	if g.lastID != "a-1" {
		t.Errorf("artifactId = %q", g.lastID)
	}
	if g.lastReq.SubmissionState != domain.StateSuccess || g.lastReq.BlockchainTxID != "0xabc" {
		t.Errorf("update = %+v", g.lastReq)
	}
}

func TestHandleSubmittedFailureEvent(t *testing.T) {
	g := &fakeGateway{}
	h := newHandler(t, g)

	body := `{
		"artifactId": "a-2",
		"submissionState": "FAILED",
		"submittedAt": "2025-03-01T12:00:00Z",
		"error": "Insufficient gas fees",
		"version": "v1"
	}`
	v := h.HandleSubmitted(context.Background(), []byte(body))
	if v != broker.Ack {
		t.Fatalf("verdict = %v, want Ack", v)
	}
	if g.lastReq.SubmissionState != domain.StateFailed {
		t.Errorf("state = %v", g.lastReq.SubmissionState)
	}
	if g.lastReq.BlockchainTxID != "" {
		t.Errorf("txId must be empty, got %q", g.lastReq.BlockchainTxID)
	}
}

func TestHandleSubmittedSchemaRejectionsSkipGateway(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `%%%`},
		{"missing submittedAt", `{"artifactId":"a-1","submissionState":"SUCCESS","version":"v1"}`},
		{"bad enum", `{"artifactId":"a-1","submissionState":"MAYBE","submittedAt":"2025-03-01T12:00:00Z","version":"v1"}`},
		{"wrong version", `{"artifactId":"a-1","submissionState":"SUCCESS","submittedAt":"2025-03-01T12:00:00Z","version":"v0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{}
			h := newHandler(t, g)

			v := h.HandleSubmitted(context.Background(), []byte(tt.body))
			if v != broker.RejectDrop {
				t.Errorf("verdict = %v, want RejectDrop", v)
			}
			if g.calls != 0 {
				t.Errorf("gateway must not be called, calls = %d", g.calls)
			}
		})
	}
}

func TestHandleSubmittedGatewayFailureDropsAfterOneCall(t *testing.T) {
	g := &fakeGateway{err: errors.New("HTTP 500")}
	h := newHandler(t, g)

	v := h.HandleSubmitted(context.Background(), []byte(validSuccess))
	if v != broker.RejectDrop {
		t.Fatalf("verdict = %v, want RejectDrop", v)
	}
	if g.calls != 1 {
		t.Errorf("gateway calls = %d, want exactly 1 (no automatic retry)", g.calls)
	}
}
