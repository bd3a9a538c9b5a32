// Package state keeps per-user conversation sessions. A Store persists them
// in memory, Redis or PostgreSQL, and a Locker serializes handlers that touch
// the same user's session.
package state
