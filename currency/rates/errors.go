package rates

import (
	"errors"
	"fmt"
)

// ErrLookup matches every *LookupError via errors.Is.
var ErrLookup = errors.New("rates: lookup failed")

// Kind classifies why a lookup failed.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindStatus      Kind = "status"
	KindDecode      Kind = "decode"
	KindMissingRate Kind = "missing_rate"
)

// LookupError reports a failed rate lookup for a currency pair.
type LookupError struct {
	Source string
	Target string
	Kind   Kind
	Err    error
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rates: %s %s->%s", e.Kind, e.Source, e.Target)
	}
	return fmt.Sprintf("rates: %s %s->%s: %v", e.Kind, e.Source, e.Target, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrLookup) hold for any lookup failure.
func (e *LookupError) Is(target error) bool { return target == ErrLookup }
