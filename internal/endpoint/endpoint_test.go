package endpoint

import (
	"strings"
	"testing"
)

func TestManualStableIDScheme(t *testing.T) {
	t.Parallel()

	ep, err := Manual("gw.example.com", 443)
	if err != nil {
		t.Fatalf("manual endpoint: %v", err)
	}
	if ep.StableID != "manual|gw.example.com|443" {
		t.Fatalf("unexpected stable id %q", ep.StableID)
	}
	if !ep.IsManual() {
		t.Fatal("manual endpoint not recognised as manual")
	}
	if ep.Addr() != "gw.example.com:443" {
		t.Fatalf("unexpected addr %q", ep.Addr())
	}
}

func TestManualStableIDIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Manual("gw.local", 8443)
	if err != nil {
		t.Fatalf("manual endpoint: %v", err)
	}
	b, err := Manual("gw.local", 8443)
	if err != nil {
		t.Fatalf("manual endpoint: %v", err)
	}
	if a.StableID != b.StableID {
		t.Fatalf("stable id not deterministic: %q vs %q", a.StableID, b.StableID)
	}
}

func TestDiscoveredStableIDSurvivesAddressChurn(t *testing.T) {
	t.Parallel()

	first, err := Discovered("Office Gateway", "192.168.1.10", 18789, true, "")
	if err != nil {
		t.Fatalf("discovered endpoint: %v", err)
	}
	// Same physical gateway rediscovered at a new address.
	second, err := Discovered("Office Gateway", "192.168.1.44", 18790, true, "")
	if err != nil {
		t.Fatalf("discovered endpoint: %v", err)
	}
	if first.StableID != second.StableID {
		t.Fatalf("stable id changed across re-scan: %q vs %q", first.StableID, second.StableID)
	}
	if first.IsManual() {
		t.Fatal("discovered endpoint reported as manual")
	}
	if !strings.HasPrefix(first.StableID, "dnssd|") {
		t.Fatalf("unexpected discovered stable id %q", first.StableID)
	}
}

func TestManualAndDiscoveredIDsNeverCollide(t *testing.T) {
	t.Parallel()

	manual, err := Manual("gw.local", 18789)
	if err != nil {
		t.Fatalf("manual endpoint: %v", err)
	}
	discovered, err := Discovered("gw.local|18789", "gw.local", 18789, false, "")
	if err == nil && discovered.StableID == manual.StableID {
		t.Fatalf("discovered instance name forged a manual stable id: %q", discovered.StableID)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		host string
		port int
	}{
		{"empty host", "", 443},
		{"whitespace host", "   ", 443},
		{"separator in host", "a|b", 443},
		{"zero port", "gw.local", 0},
		{"negative port", "gw.local", -1},
		{"port overflow", "gw.local", 70000},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Manual(tc.host, tc.port); err == nil {
				t.Fatalf("Manual(%q, %d) accepted invalid input", tc.host, tc.port)
			}
			if _, err := Discovered("x", tc.host, tc.port, false, ""); err == nil {
				t.Fatalf("Discovered(%q, %d) accepted invalid input", tc.host, tc.port)
			}
		})
	}

	if _, err := Discovered("", "gw.local", 443, false, ""); err == nil {
		t.Fatal("Discovered accepted empty instance name")
	}
}
