package state

import (
	"context"
	"errors"
	"time"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// ErrNilStore is returned when a nil store is wired where one is required.
var ErrNilStore = errors.New("state: nil store")

// Session stores conversation state and small string values for a user.
type Session struct {
	State     State             `json:"state"`
	Data      map[string]string `json:"data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession returns an empty session in the given state.
func NewSession(st State) Session {
	return Session{State: st, Data: make(map[string]string)}
}

// Value returns the stored value for key or "".
func (s Session) Value(key string) string {
	if s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// Set stores a value, allocating the map on first use.
func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// Clone returns a deep copy so stores never share maps with callers.
func (s Session) Clone() Session {
	out := s
	out.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}

// Idle reports whether the session has no active conversation.
func (s Session) Idle() bool {
	return s.State == "" || s.State == StateIdle
}

// expired reports whether a session last written at updated is older than ttl.
func expired(updated time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && !updated.IsZero() && now.Sub(updated) > ttl
}

// Store persists sessions keyed by Telegram user id.
// Get returns an idle session, not an error, when nothing is stored.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Put(ctx context.Context, userID int64, s Session) error
	Clear(ctx context.Context, userID int64) error
}

// Counter is implemented by stores that can report how many sessions they hold.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

// Closer is implemented by stores owning external connections.
type Closer interface {
	Close() error
}
