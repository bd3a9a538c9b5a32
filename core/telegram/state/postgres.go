package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	selectSessionSQL = `SELECT state, data, updated_at FROM bot_sessions WHERE user_id = $1`
	upsertSessionSQL = `
INSERT INTO bot_sessions (user_id, state, data, updated_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (user_id) DO UPDATE
SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	deleteSessionSQL = `DELETE FROM bot_sessions WHERE user_id = $1`
	countSessionsSQL = `SELECT COUNT(*) FROM bot_sessions WHERE state <> 'idle' AND updated_at > $1`
)

type sessionRow struct {
	State     string    `db:"state"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

type postgresStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore keeps sessions in the bot_sessions table created by the
// bundled migrations. Rows older than ttl read back as idle.
func NewPostgresStore(db *sqlx.DB, ttl time.Duration) (Store, error) {
	if db == nil {
		return nil, errors.New("state: nil database")
	}
	return &postgresStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (p *postgresStore) Get(ctx context.Context, userID int64) (Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, selectSessionSQL, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewSession(StateIdle), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("state: select session %d: %w", userID, err)
	}
	if expired(row.UpdatedAt, p.ttl, p.now()) {
		return NewSession(StateIdle), nil
	}

	sess := NewSession(State(row.State))
	sess.UpdatedAt = row.UpdatedAt
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &sess.Data); err != nil {
			return Session{}, fmt.Errorf("state: decode session %d: %w", userID, err)
		}
	}
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	if sess.State == "" {
		sess.State = StateIdle
	}
	return sess, nil
}

func (p *postgresStore) Put(ctx context.Context, userID int64, s Session) error {
	data := s.Data
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("state: encode session %d: %w", userID, err)
	}
	st := s.State
	if st == "" {
		st = StateIdle
	}
	if _, err := p.db.ExecContext(ctx, upsertSessionSQL, userID, string(st), string(raw), p.now().UTC()); err != nil {
		return fmt.Errorf("state: upsert session %d: %w", userID, err)
	}
	return nil
}

func (p *postgresStore) Clear(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, deleteSessionSQL, userID); err != nil {
		return fmt.Errorf("state: delete session %d: %w", userID, err)
	}
	return nil
}

// Len counts active, unexpired sessions.
func (p *postgresStore) Len(ctx context.Context) (int, error) {
	var n int
	cutoff := time.Unix(0, 0).UTC()
	if p.ttl > 0 {
		cutoff = p.now().Add(-p.ttl).UTC()
	}
	if err := p.db.GetContext(ctx, &n, countSessionsSQL, cutoff); err != nil {
		return 0, fmt.Errorf("state: count sessions: %w", err)
	}
	return n, nil
}

func (p *postgresStore) Close() error {
	return p.db.Close()
}
