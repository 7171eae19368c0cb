package version

import (
	"strings"
)

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// FormatVersion returns a display-friendly version string. For normal
// versions it ensures a "v" prefix (e.g. "0.3.0" becomes "v0.3.0"). Special
// values like "dev" and empty strings are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// WithDebugMarker normalizes a version string for the connect envelope.
// Debug builds must be distinguishable in gateway logs from the version
// string alone, so a "-dev" marker is appended unless the string already
// carries one. Empty versions resolve to "dev".
func WithDebugMarker(v string, debug bool) string {
	v = strings.TrimSpace(v)
	if v == "" {
		v = "dev"
	}
	if debug && !strings.Contains(strings.ToLower(v), "dev") {
		return v + "-dev"
	}
	return v
}
