package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/currencybot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// redact hides bot tokens that transport errors embed in request URLs.
func redact(err error) string {
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func transient(err error) bool {
	if netutil.ShouldRetry(err) {
		return true
	}
	return statusCode(err) >= 500
}

// floodWait extracts the retry_after of a 429 answer.
func floodWait(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	return 0, false
}

// errorKind buckets err for the send.fail log line.
func errorKind(err error) string {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
		alert  tls.AlertError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert):
		return "tls"
	}
	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return "flood"
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// statusCode returns the Bot API error code carried by err, or 0. Errors
// telebot does not type end in "(code)".
func statusCode(err error) int {
	var apiErr *tele.Error
	var flood tele.FloodError
	var group tele.GroupError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &group):
		return http.StatusBadRequest
	}
	msg := strings.TrimSpace(err.Error())
	open := strings.LastIndexByte(msg, '(')
	if open < 0 || !strings.HasSuffix(msg, ")") {
		return 0
	}
	code, convErr := strconv.Atoi(msg[open+1 : len(msg)-1])
	if convErr != nil {
		return 0
	}
	return code
}
