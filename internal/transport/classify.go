package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"syscall"
)

// Failure tells how a request that got no usable response ended.
type Failure int

const (
	FailureNone Failure = iota
	// FailureTimeout: the request timeout elapsed.
	FailureTimeout
	// FailureNotSent: the request never reached the target, e.g. DNS
	// failure, refused connection, TLS rejection, malformed request or a
	// closed transport.
	FailureNotSent
	// FailureOther: any other transport error, cancellation included.
	FailureOther
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailureNotSent:
		return "not_sent"
	case FailureOther:
		return "other"
	}
	return "unknown"
}

var errInvalidRequest = errors.New("invalid request")

// Classify maps a transport error to a Failure. Timeouts win over every
// other cause.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}
	if isTimeout(err) {
		return FailureTimeout
	}
	if notSent(err) {
		return FailureNotSent
	}
	return FailureOther
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func notSent(err error) bool {
	if errors.Is(err, ErrClosed) || errors.Is(err, errInvalidRequest) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return true
	}
	// crypto/tls reports an alert from the peer as a "remote error" op
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "remote error") {
		return true
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostname         x509.HostnameError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
		alert            tls.AlertError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verification) ||
		errors.As(err, &recordHeader) ||
		errors.As(err, &alert)
}
