// Package netutil builds HTTP clients for outbound calls and classifies
// transient network failures.
package netutil

import (
	"context"
	"errors"
	"net"
)

// ShouldRetry reports whether err looks transient: a timeout, a failed dial
// or a temporary DNS failure. Cancellation is never retried.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsTemporary
}
