package engine

import (
	"strings"
	"testing"
)

func TestDecideFailureMarkers(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr string
	}{
		{"gas", "please test_gas now", "Insufficient gas fees"},
		{"gas forced", "FORCE_GAS payment doc", "Insufficient gas fees"},
		{"network", "a test_network run", "Network congestion - transaction rejected"},
		{"timeout", "test_timeout", "Peer connection timeout"},
		{"invalid", "force_invalid upload", "Invalid artifact data format"},
		{"general", "test_fail here", "Blockchain temporarily unavailable"},
		{"rejected", "x test_rejected y", "Transaction rejected by blockchain"},
		{"case folded", "TEST_GAS IN CAPS", "Insufficient gas fees"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide("a-1", tt.title, "", nil)
			if d.Accepted {
				t.Fatalf("Decide(%q) accepted, want failure", tt.title)
			}
			if d.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", d.Error, tt.wantErr)
			}
			if d.TxID != "" {
				t.Errorf("txId must be empty on failure, got %q", d.TxID)
			}
		})
	}
}

func TestDecideFirstMatchWins(t *testing.T) {
	// test_gas is declared before test_network; both present, gas wins.
	d := Decide("a-1", "test_network and test_gas", "", nil)
	if d.Error != "Insufficient gas fees" {
		t.Errorf("error = %q, want gas error (declaration order tie-break)", d.Error)
	}
}

func TestDecideSuccessMarkerOverridesFailure(t *testing.T) {
	d := Decide("a-1", "test_success but also test_gas", "", nil)
	if !d.Accepted {
		t.Fatalf("success marker must override failure marker, got error %q", d.Error)
	}
}

func TestDecideDescriptionScanned(t *testing.T) {
	d := Decide("a-1", "plain title", "contains test_timeout marker", nil)
	if d.Accepted || d.Error != "Peer connection timeout" {
		t.Errorf("description marker not honored: %+v", d)
	}
}

func TestDecideKeywords(t *testing.T) {
	if d := Decide("a-1", "", "", []string{"Test-Fail"}); d.Accepted || d.Error != "Blockchain temporarily unavailable" {
		t.Errorf("failure keyword not honored: %+v", d)
	}
	if d := Decide("a-1", "", "", []string{"test-success"}); !d.Accepted {
		t.Errorf("success keyword not honored: %+v", d)
	}
	// keywords match whole entries only
	if d := Decide("a-1", "", "", []string{"not-test-fail-really"}); !d.Accepted {
		t.Errorf("keyword substring must not match: %+v", d)
	}
}

func TestDecideNoMarkerAccepts(t *testing.T) {
	for _, title := range []string{"ok", "", "perfectly ordinary artifact"} {
		d := Decide("a-1", title, "", nil)
		if !d.Accepted {
			t.Errorf("Decide(%q) rejected: %q", title, d.Error)
		}
		if d.TxID == "" {
			t.Errorf("Decide(%q) accepted without txId", title)
		}
	}
}

func TestTxIDDeterministic(t *testing.T) {
	a := TxID("artifact-42")
	b := TxID("artifact-42")
	if a != b {
		t.Fatalf("TxID not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 66 {
		t.Errorf("TxID format = %q, want 0x + 64 hex chars", a)
	}
	if TxID("artifact-43") == a {
		t.Error("different artifacts must not share a txId")
	}
}

func TestDecideDataExtraction(t *testing.T) {
	d := DecideData("a-1", map[string]any{
		"title":    "test_gas doc",
		"keywords": []any{"x", 7, "y"},
	})
	if d.Accepted {
		t.Fatal("expected gas failure")
	}
	// mistyped fields are ignored, not fatal
	d = DecideData("a-1", map[string]any{"title": 99, "keywords": "nope"})
	if !d.Accepted {
		t.Errorf("mistyped fields should decide as accepted: %+v", d)
	}
}

func TestFailurePatternsVocabulary(t *testing.T) {
	pats := FailurePatterns()
	if got := pats["Insufficient gas fees"]; len(got) != 2 {
		t.Errorf("gas patterns = %v", got)
	}
	if len(SuccessPatterns()) == 0 {
		t.Error("success pattern vocabulary is empty")
	}
}
