package logger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Status maps err to the status value used in log records.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// Took returns the rounded duration since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins up to limit values and reports whether any were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}

// Sanitize drops control and format runes except newline and tab.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildRID formats the update correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot-separated base36 numbers.
// Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
