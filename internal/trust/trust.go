// Package trust decides whether and how a gateway connection must be
// authenticated. Resolve is the security boundary shared by every client
// platform: given the same inputs it must produce the same decision
// everywhere, and unauthenticated discovery hints must never become a trust
// anchor.
package trust

import (
	"strings"

	"github.com/theiaos/nodelink/internal/endpoint"
)

// Decision tells the transport layer how to open the connection. A nil
// *Decision means plaintext is permitted.
type Decision struct {
	// Required forces TLS negotiation; failure to negotiate is fatal to
	// the attempt.
	Required bool
	// ExpectedFingerprint is the pinned SHA-256 certificate fingerprint
	// the presented certificate must match, or empty when no pin exists
	// yet. A mismatch is fatal and must never downgrade to plaintext.
	ExpectedFingerprint string
	// AllowTOFU is always false: a missing pin hands control to the
	// explicit operator confirmation flow, never to silent
	// trust-on-first-use.
	AllowTOFU bool
	// StableID identifies the pin slot this decision was resolved
	// against.
	StableID string
}

// Resolve maps an endpoint, its stored pin and the manual-TLS toggle to a
// trust decision. First matching rule wins; the order is the correctness
// property:
//
//  1. Manual endpoints are plaintext unless the operator enabled TLS for
//     manual connections; with TLS on, a stored pin is enforced, otherwise
//     TLS is required with no pin (external confirmation flow).
//  2. On discovered endpoints a stored pin always wins, regardless of
//     anything discovery advertised.
//  3. A discovered endpoint hinting at TLS (flag or advertised fingerprint)
//     with no stored pin requires TLS with no pin. The advertised
//     fingerprint is discarded: TXT records are attacker-influenceable.
//  4. Otherwise plaintext.
//
// Resolve is pure and performs no I/O; callers load the stored fingerprint
// themselves and re-resolve on every connection attempt.
func Resolve(ep endpoint.Endpoint, storedFingerprint string, manualTLSEnabled bool) *Decision {
	stored := strings.TrimSpace(storedFingerprint)

	if ep.IsManual() {
		if !manualTLSEnabled {
			return nil
		}
		if stored != "" {
			return &Decision{Required: true, ExpectedFingerprint: stored, StableID: ep.StableID}
		}
		return &Decision{Required: true, StableID: ep.StableID}
	}

	if stored != "" {
		return &Decision{Required: true, ExpectedFingerprint: stored, StableID: ep.StableID}
	}

	if ep.TLSEnabled || strings.TrimSpace(ep.TLSFingerprintSHA256) != "" {
		return &Decision{Required: true, StableID: ep.StableID}
	}

	return nil
}
