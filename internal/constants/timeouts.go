package constants

import "time"

// Shared duration vocabulary used by timeouts, polling and retry checks.
// Keep these centralized to simplify system-wide timing tuning.
const (
	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
	Duration30Seconds = 30 * time.Second
	Duration60Seconds = 60 * time.Second
)

// Domain-level timeout constants.
const (
	// WSHandshakeTimeout bounds how long the gateway waits for the
	// connect envelope after the upgrade.
	WSHandshakeTimeout = Duration10Seconds

	// WSPingInterval keeps NAT mappings alive on mobile networks where
	// gateways drop idle connections after ~30-60s.
	WSPingInterval = Duration30Seconds
	WSPingTimeout  = Duration5Seconds

	ClientDialTimeout    = Duration10Seconds
	ClientRequestTimeout = Duration30Seconds
	NodeExecTimeout      = Duration60Seconds

	StoreBusyTimeout = Duration5Seconds
)
