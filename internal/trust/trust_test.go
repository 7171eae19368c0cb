package trust

import (
	"testing"

	"github.com/theiaos/nodelink/internal/endpoint"
)

func manualEP(t *testing.T) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Manual("gw.example.com", 443)
	if err != nil {
		t.Fatalf("manual endpoint: %v", err)
	}
	return ep
}

func discoveredEP(t *testing.T, tlsEnabled bool, advertised string) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Discovered("Office Gateway", "192.168.1.10", 18789, tlsEnabled, advertised)
	if err != nil {
		t.Fatalf("discovered endpoint: %v", err)
	}
	return ep
}

func TestManualWithoutManualTLSIsAlwaysPlaintext(t *testing.T) {
	t.Parallel()

	ep := manualEP(t)
	for _, stored := range []string{"", "   ", "AA:BB"} {
		if d := Resolve(ep, stored, false); d != nil {
			t.Fatalf("stored=%q: expected nil decision, got %+v", stored, d)
		}
	}
}

func TestManualWithTLSEnforcesStoredPin(t *testing.T) {
	t.Parallel()

	ep := manualEP(t)
	d := Resolve(ep, "AA:BB", true)
	if d == nil {
		t.Fatal("expected decision")
	}
	if !d.Required || d.ExpectedFingerprint != "AA:BB" || d.AllowTOFU {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.StableID != ep.StableID {
		t.Fatalf("decision stable id %q != endpoint %q", d.StableID, ep.StableID)
	}
}

func TestManualWithTLSAndNoPinRequiresCapture(t *testing.T) {
	t.Parallel()

	ep := manualEP(t)
	for _, stored := range []string{"", "  \t "} {
		d := Resolve(ep, stored, true)
		if d == nil {
			t.Fatalf("stored=%q: expected decision", stored)
		}
		if !d.Required || d.ExpectedFingerprint != "" || d.AllowTOFU {
			t.Fatalf("stored=%q: unexpected decision %+v", stored, d)
		}
	}
}

func TestStoredPinBeatsAdvertisedFingerprint(t *testing.T) {
	t.Parallel()

	// Discovery advertises a different fingerprint; the stored pin must win.
	ep := discoveredEP(t, true, "CC:DD")
	d := Resolve(ep, "AA:BB", false)
	if d == nil {
		t.Fatal("expected decision")
	}
	if d.ExpectedFingerprint != "AA:BB" {
		t.Fatalf("expected stored pin AA:BB, got %q", d.ExpectedFingerprint)
	}
	if !d.Required || d.AllowTOFU {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestAdvertisedFingerprintIsNeverCopied(t *testing.T) {
	t.Parallel()

	ep := discoveredEP(t, false, "CC:DD")
	d := Resolve(ep, "", false)
	if d == nil {
		t.Fatal("expected decision: advertised fingerprint implies TLS")
	}
	if !d.Required {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.ExpectedFingerprint != "" {
		t.Fatalf("advertised fingerprint leaked into decision: %q", d.ExpectedFingerprint)
	}
}

func TestDiscoveredTLSHintRequiresTLSWithoutPin(t *testing.T) {
	t.Parallel()

	ep := discoveredEP(t, true, "")
	d := Resolve(ep, "", false)
	if d == nil || !d.Required || d.ExpectedFingerprint != "" || d.AllowTOFU {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestDiscoveredPlaintextWhenNothingHintsAtTLS(t *testing.T) {
	t.Parallel()

	ep := discoveredEP(t, false, "")
	if d := Resolve(ep, "", false); d != nil {
		t.Fatalf("expected nil decision, got %+v", d)
	}
	// Whitespace advertised fingerprint counts as absent.
	ep = discoveredEP(t, false, "   ")
	if d := Resolve(ep, "  ", false); d != nil {
		t.Fatalf("expected nil decision, got %+v", d)
	}
}

func TestManualTLSToggleDoesNotAffectDiscovered(t *testing.T) {
	t.Parallel()

	ep := discoveredEP(t, false, "")
	if d := Resolve(ep, "", true); d != nil {
		t.Fatalf("manual TLS toggle leaked into discovered policy: %+v", d)
	}
}

func TestAllowTOFUIsAlwaysFalse(t *testing.T) {
	t.Parallel()

	endpoints := []endpoint.Endpoint{
		manualEP(t),
		discoveredEP(t, true, ""),
		discoveredEP(t, true, "CC:DD"),
		discoveredEP(t, false, "CC:DD"),
	}
	for _, ep := range endpoints {
		for _, stored := range []string{"", "AA:BB"} {
			for _, manualTLS := range []bool{false, true} {
				if d := Resolve(ep, stored, manualTLS); d != nil && d.AllowTOFU {
					t.Fatalf("AllowTOFU set for ep=%q stored=%q manualTLS=%v", ep.StableID, stored, manualTLS)
				}
			}
		}
	}
}
