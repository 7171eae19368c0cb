package trust

import (
	"errors"
	"fmt"
)

// UntrustedCertificateError reports that the certificate presented during
// TLS negotiation does not match the pinned fingerprint. Fatal to the
// connection attempt; the transport must not retry with relaxed trust.
type UntrustedCertificateError struct {
	StableID string
	Expected string
	Actual   string
}

func (e UntrustedCertificateError) Error() string {
	return fmt.Sprintf("trust: certificate fingerprint %s does not match pin %s for %s",
		e.Actual, e.Expected, e.StableID)
}

// IsUntrustedCertificate reports whether err is (or wraps) an
// UntrustedCertificateError.
func IsUntrustedCertificate(err error) bool {
	var target UntrustedCertificateError
	return errors.As(err, &target)
}

// TLSRequiredError reports that TLS could not be negotiated even though the
// trust decision requires it. Fatal to the connection attempt.
type TLSRequiredError struct {
	StableID string
	Cause    error
}

func (e TLSRequiredError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("trust: tls required but unavailable for %s", e.StableID)
	}
	return fmt.Sprintf("trust: tls required but unavailable for %s: %v", e.StableID, e.Cause)
}

func (e TLSRequiredError) Unwrap() error { return e.Cause }

// IsTLSRequired reports whether err is (or wraps) a TLSRequiredError.
func IsTLSRequired(err error) bool {
	var target TLSRequiredError
	return errors.As(err, &target)
}
