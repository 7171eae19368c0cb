// Package client dials the gateway on behalf of a node or operator. It
// resolves the trust decision for the target endpoint, opens a WebSocket
// honoring that decision, and sends the connect envelope as the first
// frame. It never relaxes trust on failure: a fingerprint mismatch or a
// failed TLS negotiation kills the attempt.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/theiaos/nodelink/internal/constants"
	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/endpoint"
	"github.com/theiaos/nodelink/internal/handshake"
	"github.com/theiaos/nodelink/internal/protocol"
	"github.com/theiaos/nodelink/internal/trust"
)

// PinReader is the slice of the pin store the connect path needs.
type PinReader interface {
	LoadFingerprint(ctx context.Context, stableID string) (string, error)
}

// PinConfirmationRequiredError reports that the endpoint requires TLS, no
// pin exists yet, and the gateway presented the given certificate. The
// connection was NOT completed: the caller must run the explicit
// confirmation flow, persist the pin, and connect again. Automatic
// trust-on-first-use is not available by design.
type PinConfirmationRequiredError struct {
	StableID    string
	Fingerprint string
}

func (e PinConfirmationRequiredError) Error() string {
	return fmt.Sprintf("client: endpoint %s requires TLS with no stored pin; presented certificate %s awaits explicit confirmation",
		e.StableID, e.Fingerprint)
}

// IsPinConfirmationRequired reports whether err is (or wraps) a
// PinConfirmationRequiredError.
func IsPinConfirmationRequired(err error) bool {
	var target PinConfirmationRequiredError
	return errors.As(err, &target)
}

// Connector builds connections to a gateway. All inputs are re-read on
// every Connect call: the feature snapshot, the stored pin and the
// manual-TLS toggle can all change between attempts.
type Connector struct {
	Pins      PinReader
	Features  device.Snapshotter
	Build     device.BuildInfoProvider
	Identity  handshake.Identity
	ManualTLS func() bool
}

// Connect resolves trust for ep, dials accordingly and performs the
// handshake for the given role. The returned Conn is ready for invocations.
func (c *Connector) Connect(ctx context.Context, ep endpoint.Endpoint, role protocol.Role) (*Conn, error) {
	stored, err := c.Pins.LoadFingerprint(ctx, ep.StableID)
	if err != nil {
		return nil, fmt.Errorf("client: load pin for %s: %w", ep.StableID, err)
	}

	manualTLS := false
	if c.ManualTLS != nil {
		manualTLS = c.ManualTLS()
	}
	decision := trust.Resolve(ep, stored, manualTLS)

	if decision != nil && decision.ExpectedFingerprint == "" {
		// TLS expected but nothing pinned yet. Capture the presented
		// certificate for the confirmation flow and stop; we never
		// proceed on an unverified certificate.
		fp, err := probeFingerprint(ctx, ep)
		if err != nil {
			return nil, trust.TLSRequiredError{StableID: ep.StableID, Cause: err}
		}
		return nil, PinConfirmationRequiredError{StableID: ep.StableID, Fingerprint: fp}
	}

	conn, err := c.dial(ctx, ep, decision)
	if err != nil {
		return nil, err
	}

	envelope := c.buildEnvelope(role)
	if err := conn.WriteJSON(envelope); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: send connect envelope: %w", err)
	}

	return newConn(conn, envelope), nil
}

// Envelope returns the connect envelope Connect would send for role,
// without opening a connection.
func (c *Connector) Envelope(role protocol.Role) handshake.ConnectOptions {
	return c.buildEnvelope(role)
}

func (c *Connector) buildEnvelope(role protocol.Role) handshake.ConnectOptions {
	build := c.Build.BuildInfo()
	if role == protocol.RoleOperator {
		return handshake.Operator(build, c.Identity)
	}
	return handshake.Node(c.Features.Snapshot(), build, c.Identity)
}

func (c *Connector) dial(ctx context.Context, ep endpoint.Endpoint, decision *trust.Decision) (*websocket.Conn, error) {
	scheme := "ws"
	dialer := websocket.Dialer{
		HandshakeTimeout: constants.ClientDialTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	if decision != nil {
		scheme = "wss"
		dialer.TLSClientConfig = pinnedTLSConfig(decision)
	}

	u := url.URL{Scheme: scheme, Host: ep.Addr(), Path: "/ws"}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		var untrusted trust.UntrustedCertificateError
		if errors.As(err, &untrusted) {
			return nil, untrusted
		}
		if decision != nil {
			return nil, trust.TLSRequiredError{StableID: decision.StableID, Cause: err}
		}
		return nil, fmt.Errorf("client: dial %s: %w", u.String(), err)
	}
	return conn, nil
}

// pinnedTLSConfig verifies the presented leaf certificate against the
// pinned fingerprint instead of the system trust store. Gateways typically
// run on self-signed certificates, so once the operator confirms a pin the
// fingerprint is the source of truth rather than a CA chain.
func pinnedTLSConfig(decision *trust.Decision) *tls.Config {
	expected := decision.ExpectedFingerprint
	stableID := decision.StableID
	return &tls.Config{
		InsecureSkipVerify: true, // replaced by the fingerprint check below
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return trust.UntrustedCertificateError{StableID: stableID, Expected: expected}
			}
			actual := FingerprintSHA256(rawCerts[0])
			if !fingerprintsEqual(expected, actual) {
				return trust.UntrustedCertificateError{StableID: stableID, Expected: expected, Actual: actual}
			}
			return nil
		},
	}
}

// probeFingerprint opens a raw TLS connection only to observe the leaf
// certificate, then closes it. Chain verification is skipped on purpose:
// the observed fingerprint goes to the operator for explicit confirmation
// and is trusted for nothing else.
func probeFingerprint(ctx context.Context, ep endpoint.Endpoint) (string, error) {
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}}
	rawConn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return "", fmt.Errorf("client: probe %s: %w", ep.Addr(), err)
	}
	defer rawConn.Close()

	tlsConn, ok := rawConn.(*tls.Conn)
	if !ok {
		return "", fmt.Errorf("client: probe %s: unexpected connection type", ep.Addr())
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", fmt.Errorf("client: probe %s: no certificate presented", ep.Addr())
	}
	return FingerprintSHA256(certs[0].Raw), nil
}
