package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SessionStore persists sessions. Save fails with ErrStaleSession when the
// stored version moved since the session was loaded, and bumps Version on success.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	raw, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if raw, ok := m.sessions[s.ID]; ok {
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if stored.Version != s.Version {
			return ErrStaleSession
		}
	} else if s.Version != 0 {
		return ErrStaleSession
	}

	s.Version++
	raw, err := json.Marshal(s)
	if err != nil {
		s.Version--
		return fmt.Errorf("encode session: %w", err)
	}
	m.sessions[s.ID] = raw
	return nil
}

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps each session as a JSONB document with a version column.
type PostgresStore struct {
	pool DBPool
}

func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		raw     []byte
		version int64
	)
	err := p.pool.QueryRow(ctx, `
		SELECT data, version FROM checkout_sessions WHERE id=$1
	`, id).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.Version = version
	return &s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	next := *s
	next.Version = s.Version + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	var tag pgconn.CommandTag
	if s.Version == 0 {
		tag, err = p.pool.Exec(ctx, `
			INSERT INTO checkout_sessions (id, user_id, state, data, version, updated_at)
			VALUES ($1, $2, $3, $4, 1, now())
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.UserID, string(s.State), raw)
	} else {
		tag, err = p.pool.Exec(ctx, `
			UPDATE checkout_sessions
			SET state=$3, data=$4, version=version+1, updated_at=now()
			WHERE id=$1 AND version=$2
		`, s.ID, s.Version, string(s.State), raw)
	}
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleSession
	}
	s.Version = next.Version
	return nil
}
