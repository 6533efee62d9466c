// Package engine decides, deterministically, whether a simulated blockchain
// peer accepts an artifact submission. The decision is a pure function of the
// artifact's descriptive text, so test harnesses get reproducible outcomes
// without restarting anything.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PeerID is the fixed identifier of the simulated peer. It seeds transaction
// IDs, so changing it changes every txId.
const PeerID = "12D3KooWBhxQ7uXeY9zF8qG5nM4rL3pT6vN8wS2cK9jH1fX7yR4e"

// Decision is the outcome of analyzing one artifact.
type Decision struct {
	Accepted bool
	TxID     string // set iff Accepted
	Error    string // set iff !Accepted
}

// Marker maps a substring of the artifact text to a forced outcome.
// Markers are evaluated in declaration order; the first match wins.
type Marker struct {
	Pattern string
	Error   string // empty means forced acceptance
}

const (
	errGas      = "Insufficient gas fees"
	errNetwork  = "Network congestion - transaction rejected"
	errTimeout  = "Peer connection timeout"
	errInvalid  = "Invalid artifact data format"
	errUnavail  = "Blockchain temporarily unavailable"
	errRejected = "Transaction rejected by blockchain"
)

// successMarkers force acceptance and are checked before any failure marker,
// so "test_success please test_gas" still succeeds.
var successMarkers = []Marker{
	{Pattern: "test_success"},
	{Pattern: "force_success"},
	{Pattern: "should_pass"},
	{Pattern: "test-pass"},
	{Pattern: "guarantee_success"},
	{Pattern: "always_pass"},
}

var failureMarkers = []Marker{
	{Pattern: "test_gas", Error: errGas},
	{Pattern: "force_gas", Error: errGas},
	{Pattern: "test_network", Error: errNetwork},
	{Pattern: "force_network", Error: errNetwork},
	{Pattern: "test_timeout", Error: errTimeout},
	{Pattern: "force_timeout", Error: errTimeout},
	{Pattern: "test_invalid", Error: errInvalid},
	{Pattern: "force_invalid", Error: errInvalid},
	{Pattern: "test_fail", Error: errUnavail},
	{Pattern: "force_fail", Error: errUnavail},
	{Pattern: "test_rejected", Error: errRejected},
	{Pattern: "force_rejected", Error: errRejected},
}

// keyword markers match whole keyword entries, not substrings.
var successKeywords = []string{"test-success", "force-success", "should-pass"}

var failureKeywords = []Marker{
	{Pattern: "test-fail", Error: errUnavail},
	{Pattern: "force-fail", Error: errUnavail},
	{Pattern: "test-gas", Error: errGas},
	{Pattern: "test-network", Error: errNetwork},
}

// SuccessPatterns returns the forced-acceptance marker vocabulary.
func SuccessPatterns() []string {
	out := make([]string, 0, len(successMarkers))
	for _, m := range successMarkers {
		out = append(out, m.Pattern)
	}
	return out
}

// FailurePatterns returns the failure marker vocabulary keyed by error string.
func FailurePatterns() map[string][]string {
	out := make(map[string][]string)
	for _, m := range failureMarkers {
		out[m.Error] = append(out[m.Error], m.Pattern)
	}
	return out
}

// Decide analyzes one artifact. Title and description are scanned for
// substring markers (case-folded), keywords for exact entries. With no
// marker present the submission is unconditionally accepted; the txId is
// then a stable function of the artifact ID alone.
func Decide(artifactID, title, description string, keywords []string) Decision {
	title = strings.ToLower(title)
	description = strings.ToLower(description)

	for _, m := range successMarkers {
		if strings.Contains(title, m.Pattern) || strings.Contains(description, m.Pattern) {
			return accept(artifactID)
		}
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, want := range successKeywords {
			if kw == want {
				return accept(artifactID)
			}
		}
	}

	for _, m := range failureMarkers {
		if strings.Contains(title, m.Pattern) || strings.Contains(description, m.Pattern) {
			return Decision{Error: m.Error}
		}
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, m := range failureKeywords {
			if kw == m.Pattern {
				return Decision{Error: m.Error}
			}
		}
	}

	return accept(artifactID)
}

// DecideData extracts title, description and keywords from an arbitrary
// artifact payload and delegates to Decide. Missing or mistyped fields are
// treated as absent.
func DecideData(artifactID string, data map[string]any) Decision {
	title, _ := data["title"].(string)
	description, _ := data["description"].(string)

	var keywords []string
	if raw, ok := data["keywords"].([]any); ok {
		for _, k := range raw {
			if s, ok := k.(string); ok {
				keywords = append(keywords, s)
			}
		}
	}
	return Decide(artifactID, title, description, keywords)
}

func accept(artifactID string) Decision {
	return Decision{Accepted: true, TxID: TxID(artifactID)}
}

// TxID derives the deterministic pseudo transaction ID for an artifact:
// "0x" plus the 64 hex chars of SHA-256(artifactId + "-" + PeerID).
func TxID(artifactID string) string {
	sum := sha256.Sum256([]byte(artifactID + "-" + PeerID))
	return "0x" + hex.EncodeToString(sum[:])
}
