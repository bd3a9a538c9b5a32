package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets keep out of every period events through. A zero period
// disables sampling.
type sampler struct {
	keep   atomic.Uint64
	period atomic.Uint64
	seen   atomic.Uint64
}

func (s *sampler) configure(keep, period uint64) {
	if keep > period {
		keep = period
	}
	s.keep.Store(keep)
	s.period.Store(period)
	s.seen.Store(0)
}

func (s *sampler) allow() bool {
	period := s.period.Load()
	if period == 0 {
		return true
	}
	n := (s.seen.Add(1) - 1) % period
	return n < s.keep.Load()
}

// parseSampleRate accepts "keep/period" or a bare period meaning 1/period.
// "0" and "off" disable sampling.
func parseSampleRate(raw string) (keep, period uint64, ok bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return 0, 0, false
	case "0", "off", "none":
		return 0, 0, true
	}
	k, p, frac := strings.Cut(raw, "/")
	if !frac {
		k, p = "1", raw
	}
	kv, err := strconv.ParseUint(strings.TrimSpace(k), 10, 64)
	if err != nil || kv == 0 {
		return 0, 0, false
	}
	pv, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
	if err != nil || pv == 0 {
		return 0, 0, false
	}
	return kv, pv, true
}
