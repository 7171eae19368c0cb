package client

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// FingerprintSHA256 returns the display form of a certificate fingerprint:
// the upper-case colon-separated SHA-256 digest of the DER encoding, the
// same form every client platform shows the operator during pinning.
func FingerprintSHA256(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// normalizeFingerprint reduces a fingerprint to bare upper-case hex so that
// pins recorded with or without colon separators compare equal.
func normalizeFingerprint(fp string) string {
	fp = strings.ToUpper(strings.TrimSpace(fp))
	fp = strings.ReplaceAll(fp, ":", "")
	return strings.ReplaceAll(fp, " ", "")
}

// fingerprintsEqual compares two fingerprints ignoring case and separators.
func fingerprintsEqual(a, b string) bool {
	return normalizeFingerprint(a) != "" && normalizeFingerprint(a) == normalizeFingerprint(b)
}
