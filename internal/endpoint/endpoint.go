// Package endpoint models candidate gateway addresses. An endpoint is
// either entered by the operator ("manual") or produced by local-network
// discovery ("discovered"); the distinction feeds directly into TLS trust
// policy, so it is encoded in the stable ID rather than carried as loose
// state.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Origin says how an endpoint was obtained.
type Origin string

const (
	OriginManual     Origin = "manual"
	OriginDiscovered Origin = "discovered"
)

// manualPrefix is the reserved stable-ID prefix for operator-entered
// endpoints. Discovery records can never produce an ID with this prefix.
const manualPrefix = "manual|"

// discoveredPrefix keys discovered endpoints by their DNS-SD service
// instance name, which survives IP and port churn across re-scans of the
// same physical gateway.
const discoveredPrefix = "dnssd|"

// Endpoint is a candidate gateway address. TLSEnabled and
// TLSFingerprintSHA256 are network-advertised hints on discovered
// endpoints; they are unauthenticated and must never be treated as a trust
// anchor (see the trust package).
type Endpoint struct {
	StableID             string
	Origin               Origin
	Host                 string
	Port                 int
	TLSEnabled           bool
	TLSFingerprintSHA256 string
}

// Manual builds an operator-entered endpoint. The stable ID is
// "manual|<host>|<port>" so the same target entered twice resolves to the
// same pin slot.
func Manual(host string, port int) (Endpoint, error) {
	if err := validateHostPort(host, port); err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: manual: %w", err)
	}
	return Endpoint{
		StableID: manualPrefix + host + "|" + strconv.Itoa(port),
		Origin:   OriginManual,
		Host:     host,
		Port:     port,
	}, nil
}

// Discovered builds an endpoint from a discovery record. instance is the
// DNS-SD service instance name; tlsEnabled and fingerprint are the
// advertised TXT hints, recorded verbatim but untrusted.
func Discovered(instance, host string, port int, tlsEnabled bool, fingerprint string) (Endpoint, error) {
	if strings.TrimSpace(instance) == "" {
		return Endpoint{}, fmt.Errorf("endpoint: discovered: empty service instance name")
	}
	if err := validateHostPort(host, port); err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: discovered: %w", err)
	}
	return Endpoint{
		StableID:             discoveredPrefix + instance,
		Origin:               OriginDiscovered,
		Host:                 host,
		Port:                 port,
		TLSEnabled:           tlsEnabled,
		TLSFingerprintSHA256: fingerprint,
	}, nil
}

// IsManual reports whether the endpoint was operator-entered. It checks the
// stable ID prefix rather than Origin so the answer stays correct for
// endpoints reconstructed from a persisted stable ID alone.
func (e Endpoint) IsManual() bool {
	return strings.HasPrefix(e.StableID, manualPrefix)
}

// Addr returns the host:port dial address.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func validateHostPort(host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("empty host")
	}
	if strings.ContainsAny(host, "|/ ") {
		return fmt.Errorf("invalid host %q", host)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}
