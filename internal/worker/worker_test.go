package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/artifactchain/relay/internal/peer"
	"github.com/artifactchain/relay/pkg/broker"
	"github.com/artifactchain/relay/pkg/domain"
)

type fakePeer struct {
	outcome domain.SubmissionOutcome
	panics  bool
	calls   int
	lastReq peer.SubmitRequest
}

func (f *fakePeer) Submit(_ context.Context, req peer.SubmitRequest) domain.SubmissionOutcome {
	f.calls++
	f.lastReq = req
	if f.panics {
		panic("peer client blew up")
	}
	return f.outcome
}

type fakePublisher struct {
	err    error
	queues []string
	bodies [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, queue string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.queues = append(f.queues, queue)
	f.bodies = append(f.bodies, body)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newHandler(p *fakePeer, pub *fakePublisher) *Handler {
	return NewHandler(p, pub, broker.QueueCreated, broker.QueueSubmitted, nil, fixedNow)
}

func lastEvent(t *testing.T, pub *fakePublisher) domain.ArtifactSubmittedEvent {
	t.Helper()
	if len(pub.bodies) == 0 {
		t.Fatal("no event published")
	}
	var ev domain.ArtifactSubmittedEvent
	if err := json.Unmarshal(pub.bodies[len(pub.bodies)-1], &ev); err != nil {
		t.Fatalf("published body: %v", err)
	}
	return ev
}

func TestHandleCreatedSuccess(t *testing.T) {
	p := &fakePeer{outcome: domain.SubmissionOutcome{Success: true, TxID: "0xabc", PeerID: "p-1"}}
	pub := &fakePublisher{}
	h := newHandler(p, pub)

	v := h.HandleCreated(context.Background(), []byte(`{"artifactId":"a-1","title":"ok"}`))
	if v != broker.Ack {
		t.Fatalf("verdict = %v, want Ack", v)
	}
	if p.calls != 1 {
		t.Errorf("peer calls = %d, want 1", p.calls)
	}
	if p.lastReq.Data["title"] != "ok" {
		t.Errorf("peer payload = %+v", p.lastReq.Data)
	}

	ev := lastEvent(t, pub)
	if ev.SubmissionState != domain.StateSuccess || ev.BlockchainTxID != "0xabc" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Error != "" {
		t.Errorf("error must be absent on success, got %q", ev.Error)
	}
	if pub.queues[0] != broker.QueueSubmitted {
		t.Errorf("published to %q", pub.queues[0])
	}
}

func TestHandleCreatedBusinessFailureStillAcks(t *testing.T) {
	p := &fakePeer{outcome: domain.SubmissionOutcome{Success: false, Error: "Insufficient gas fees", PeerID: "p-1"}}
	pub := &fakePublisher{}
	h := newHandler(p, pub)

	v := h.HandleCreated(context.Background(), []byte(`{"artifactId":"a-1","title":"please test_gas now"}`))
	if v != broker.Ack {
		t.Fatalf("verdict = %v, want Ack (failure outcome is still a processed message)", v)
	}

	ev := lastEvent(t, pub)
	if ev.SubmissionState != domain.StateFailed {
		t.Errorf("state = %v", ev.SubmissionState)
	}
	if ev.Error != "Insufficient gas fees" {
		t.Errorf("error = %q", ev.Error)
	}
	if ev.BlockchainTxID != "" {
		t.Errorf("txId must be absent on failure, got %q", ev.BlockchainTxID)
	}
}

func TestHandleCreatedMalformed(t *testing.T) {
	p := &fakePeer{}
	pub := &fakePublisher{}
	h := newHandler(p, pub)

	for _, body := range []string{`{{`, `{"title":"no id"}`, `{"artifactId":""}`} {
		v := h.HandleCreated(context.Background(), []byte(body))
		if v != broker.RejectDrop {
			t.Errorf("verdict for %q = %v, want RejectDrop", body, v)
		}
	}
	if p.calls != 0 {
		t.Errorf("peer must not be called for malformed input, calls = %d", p.calls)
	}
	if len(pub.bodies) != 0 {
		t.Errorf("nothing may be published for malformed input, published = %d", len(pub.bodies))
	}
}

func TestHandleCreatedPeerPanicPublishesSynthesizedFailure(t *testing.T) {
	p := &fakePeer{panics: true}
	pub := &fakePublisher{}
	h := newHandler(p, pub)

	v := h.HandleCreated(context.Background(), []byte(`{"artifactId":"a-1"}`))
	if v != broker.Ack {
		t.Fatalf("verdict = %v, want Ack after publishing synthesized failure", v)
	}
	ev := lastEvent(t, pub)
	if ev.SubmissionState != domain.StateFailed {
		t.Errorf("state = %v", ev.SubmissionState)
	}
	if ev.Error == "" || ev.Error == "Insufficient gas fees" {
		t.Errorf("error = %q, want synthesized description", ev.Error)
	}
}

func TestHandleCreatedPublishFailureDrops(t *testing.T) {
	p := &fakePeer{outcome: domain.SubmissionOutcome{Success: true, TxID: "0xabc"}}
	pub := &fakePublisher{err: errors.New("broker down")}
	h := newHandler(p, pub)

	v := h.HandleCreated(context.Background(), []byte(`{"artifactId":"a-1"}`))
	if v != broker.RejectDrop {
		t.Fatalf("verdict = %v, want RejectDrop when publish fails", v)
	}
}

func TestHandleCreatedEventTimestamps(t *testing.T) {
	p := &fakePeer{outcome: domain.SubmissionOutcome{Success: true, TxID: "0xabc"}}
	pub := &fakePublisher{}
	h := newHandler(p, pub)

	_ = h.HandleCreated(context.Background(), []byte(`{"artifactId":"a-1"}`))
	ev := lastEvent(t, pub)
	if ev.SubmittedAt != "2025-03-01T12:00:00Z" {
		t.Errorf("submittedAt = %q", ev.SubmittedAt)
	}
	if ev.Version != domain.EventVersion {
		t.Errorf("version = %q", ev.Version)
	}
}
