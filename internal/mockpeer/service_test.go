package mockpeer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/artifactchain/relay/internal/engine"
	"github.com/artifactchain/relay/pkg/domain"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewService(nil, WithDelay(0)).Routes(r)
	return r
}

func postSubmit(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/submit-artifact", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitArtifactAccepted(t *testing.T) {
	r := newTestRouter(t)

	w := postSubmit(t, r, `{"artifactId":"art-1","data":{"title":"quarterly report"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var out domain.SubmissionOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false, want true: %+v", out)
	}
	if out.TxID != engine.TxID("art-1") {
		t.Errorf("txId = %q, want %q", out.TxID, engine.TxID("art-1"))
	}
	if out.PeerID != engine.PeerID {
		t.Errorf("peerId = %q, want %q", out.PeerID, engine.PeerID)
	}
	if out.Error != "" {
		t.Errorf("error = %q, want empty", out.Error)
	}
}

func TestSubmitArtifactRejectedStaysHTTP200(t *testing.T) {
	r := newTestRouter(t)

	w := postSubmit(t, r, `{"artifactId":"art-2","data":{"title":"please test_gas now"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var out domain.SubmissionOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Success {
		t.Fatal("success = true, want false")
	}
	if out.Error != "Insufficient gas fees" {
		t.Errorf("error = %q, want %q", out.Error, "Insufficient gas fees")
	}
	if out.TxID != "" {
		t.Errorf("txId = %q, want empty on rejection", out.TxID)
	}
}

func TestSubmitArtifactBadBody(t *testing.T) {
	r := newTestRouter(t)

	for name, body := range map[string]string{
		"malformed json":     `{"artifactId":`,
		"missing artifactId": `{"data":{"title":"x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := postSubmit(t, r, body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var out domain.SubmissionOutcome
			if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if out.Success {
				t.Error("success = true, want false")
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["service"] != ServiceName {
		t.Errorf("service = %v, want %q", body["service"], ServiceName)
	}
}

func TestTestPatternsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/test-patterns", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	raw := w.Body.String()
	for _, pattern := range []string{"test_success", "test_gas", "test_rejected"} {
		if !strings.Contains(raw, pattern) {
			t.Errorf("response does not document pattern %q", pattern)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["peer_id"] != engine.PeerID {
		t.Errorf("peer_id = %v, want %q", body["peer_id"], engine.PeerID)
	}
	if body["service_status"] != "running" {
		t.Errorf("service_status = %v, want running", body["service_status"])
	}
}
