package client

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/endpoint"
	"github.com/theiaos/nodelink/internal/gateway"
	"github.com/theiaos/nodelink/internal/handshake"
	"github.com/theiaos/nodelink/internal/pinstore"
	"github.com/theiaos/nodelink/internal/protocol"
	"github.com/theiaos/nodelink/internal/trust"
)

type staticBuild struct{ info device.BuildInfo }

func (b staticBuild) BuildInfo() device.BuildInfo { return b.info }

func testConnector(store pinstore.Store, manualTLS bool) *Connector {
	return &Connector{
		Pins: store,
		Features: device.SnapshotterFunc(func() device.FeatureState {
			return device.FeatureState{Class: device.ClassDevice, CameraEnabled: true}
		}),
		Build: staticBuild{info: device.BuildInfo{
			Version:   "1.0.0",
			Platform:  "android",
			OSVersion: "14",
		}},
		Identity:  handshake.Identity{InstanceID: "client-test", DisplayName: "Test"},
		ManualTLS: func() bool { return manualTLS },
	}
}

func serverHostPort(t *testing.T, tsURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(tsURL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func TestFingerprintSHA256Format(t *testing.T) {
	t.Parallel()

	fp := FingerprintSHA256([]byte("certificate bytes"))
	matched, err := regexp.MatchString(`^([0-9A-F]{2}:){31}[0-9A-F]{2}$`, fp)
	if err != nil {
		t.Fatalf("regexp: %v", err)
	}
	if !matched {
		t.Fatalf("unexpected fingerprint format %q", fp)
	}
	// Deterministic for the same input.
	if fp != FingerprintSHA256([]byte("certificate bytes")) {
		t.Fatal("fingerprint not deterministic")
	}
}

func TestFingerprintsEqualIgnoresFormatting(t *testing.T) {
	t.Parallel()

	if !fingerprintsEqual("aa:bb:cc", "AABBCC") {
		t.Fatal("case/separator-insensitive comparison failed")
	}
	if fingerprintsEqual("", "") {
		t.Fatal("empty fingerprints must never compare equal")
	}
	if fingerprintsEqual("AA:BB", "AA:BC") {
		t.Fatal("distinct fingerprints compared equal")
	}
}

func TestConnectPlaintextDiscovered(t *testing.T) {
	t.Parallel()

	srv := gateway.New(nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)

	host, port := serverHostPort(t, ts.URL)
	ep, err := endpoint.Discovered("Test Gateway", host, port, false, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}

	c := testConnector(pinstore.NewMemoryStore(), false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := c.Connect(ctx, ep, protocol.RoleNode)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	env := conn.Envelope()
	if env.Role != protocol.RoleNode || env.Client.InstanceID != "client-test" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestConnectWithMatchingPin(t *testing.T) {
	t.Parallel()

	srv := gateway.New(nil)
	ts := httptest.NewTLSServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)

	host, port := serverHostPort(t, ts.URL)
	ep, err := endpoint.Manual(host, port)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}

	store := pinstore.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pin := FingerprintSHA256(ts.Certificate().Raw)
	if err := store.SaveFingerprint(ctx, ep.StableID, pin); err != nil {
		t.Fatalf("save pin: %v", err)
	}

	c := testConnector(store, true)
	conn, err := c.Connect(ctx, ep, protocol.RoleNode)
	if err != nil {
		t.Fatalf("connect with pin: %v", err)
	}
	conn.Close()
}

func TestConnectWithWrongPinIsFatal(t *testing.T) {
	t.Parallel()

	srv := gateway.New(nil)
	ts := httptest.NewTLSServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)

	host, port := serverHostPort(t, ts.URL)
	ep, err := endpoint.Manual(host, port)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}

	store := pinstore.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrongPin := FingerprintSHA256([]byte("some other certificate"))
	if err := store.SaveFingerprint(ctx, ep.StableID, wrongPin); err != nil {
		t.Fatalf("save pin: %v", err)
	}

	c := testConnector(store, true)
	_, err = c.Connect(ctx, ep, protocol.RoleNode)
	if err == nil {
		t.Fatal("connection with wrong pin succeeded")
	}
	if !trust.IsUntrustedCertificate(err) && !trust.IsTLSRequired(err) {
		t.Fatalf("expected trust failure, got %v", err)
	}
}

func TestConnectWithoutPinRequiresConfirmation(t *testing.T) {
	t.Parallel()

	srv := gateway.New(nil)
	ts := httptest.NewTLSServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)

	host, port := serverHostPort(t, ts.URL)
	ep, err := endpoint.Manual(host, port)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}

	c := testConnector(pinstore.NewMemoryStore(), true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = c.Connect(ctx, ep, protocol.RoleNode)
	var confirm PinConfirmationRequiredError
	if !errors.As(err, &confirm) {
		t.Fatalf("expected PinConfirmationRequiredError, got %v", err)
	}
	want := FingerprintSHA256(ts.Certificate().Raw)
	if confirm.Fingerprint != want {
		t.Fatalf("captured fingerprint %q, want %q", confirm.Fingerprint, want)
	}
	if confirm.StableID != ep.StableID {
		t.Fatalf("captured stable id %q, want %q", confirm.StableID, ep.StableID)
	}
}

func TestManualWithoutTLSIgnoresStoredPin(t *testing.T) {
	t.Parallel()

	srv := gateway.New(nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)

	host, port := serverHostPort(t, ts.URL)
	ep, err := endpoint.Manual(host, port)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}

	store := pinstore.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.SaveFingerprint(ctx, ep.StableID, "AA:BB"); err != nil {
		t.Fatalf("save pin: %v", err)
	}

	// Manual TLS disabled: plaintext, pin irrelevant.
	c := testConnector(store, false)
	conn, err := c.Connect(ctx, ep, protocol.RoleNode)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.Close()
}
