package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/modelcouncil/council/pkg/council"
)

// SQLStore is a database/sql-backed Store. It works unmodified against
// either lib/pq (Postgres) or modernc.org/sqlite, since both speak
// standard database/sql and this store's schema uses only portable SQL
// (a JSON payload column rather than engine-specific array/JSONB types).
type SQLStore struct {
	db     *sql.DB
	locker *DBLocker
}

// NewSQLStore wraps db. If locker is non-nil, AppendTurn acquires a
// per-conversation lease from it before writing, serializing concurrent
// turns on the same conversation across multiple processes; if nil,
// AppendTurn relies on the single transaction's atomicity only (safe for
// a single-process deployment).
func NewSQLStore(db *sql.DB, locker *DBLocker) *SQLStore {
	return &SQLStore{db: db, locker: locker}
}

// Schema is the portable DDL this store expects. Callers run it once at
// startup (or via migration tooling); the store itself never creates
// tables implicitly.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);
CREATE TABLE IF NOT EXISTS conversation_turns (
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	seq INTEGER NOT NULL,
	turn_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);
`

func (s *SQLStore) Load(ctx context.Context, id string) (*council.Conversation, error) {
	conv := &council.Conversation{ID: id}
	row := s.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM conversations WHERE id = $1`, id)
	if err := row.Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msgRows, err := s.db.QueryContext(ctx, `SELECT role, content, created_at FROM conversation_messages WHERE conversation_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer msgRows.Close()
	for msgRows.Next() {
		var m council.ChatMessage
		var role string
		if err := msgRows.Scan(&role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = council.Role(role)
		conv.Messages = append(conv.Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	turnRows, err := s.db.QueryContext(ctx, `SELECT payload FROM conversation_turns WHERE conversation_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer turnRows.Close()
	for turnRows.Next() {
		var payload string
		if err := turnRows.Scan(&payload); err != nil {
			return nil, err
		}
		var turn council.CouncilTurn
		if err := json.Unmarshal([]byte(payload), &turn); err != nil {
			return nil, err
		}
		conv.Turns = append(conv.Turns, turn)
	}
	return conv, turnRows.Err()
}

func (s *SQLStore) Create(ctx context.Context) (*council.Conversation, error) {
	now := time.Now()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $2)`, id, now)
	if err != nil {
		return nil, err
	}
	return &council.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLStore) AppendTurn(ctx context.Context, id string, userMsg council.ChatMessage, turn council.CouncilTurn, assistantMsg council.ChatMessage) error {
	if s.locker != nil {
		if err := s.locker.Lock(ctx, id); err != nil {
			return err
		}
		defer s.locker.Unlock(id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var msgSeq, turnSeq int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = $1`, id)
	if err := row.Scan(&msgSeq); err != nil {
		return err
	}
	row = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_turns WHERE conversation_id = $1`, id)
	if err := row.Scan(&turnSeq); err != nil {
		return err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, msgSeq, string(userMsg.Role), userMsg.Content, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, msgSeq+1, string(assistantMsg.Role), assistantMsg.Content, now); err != nil {
		return err
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_turns (conversation_id, seq, turn_id, payload) VALUES ($1, $2, $3, $4)`,
		id, turnSeq, turn.TurnID, string(payload)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, now, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE conversation_id = $1`, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = $1`, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

func (s *SQLStore) List(ctx context.Context) ([]*council.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*council.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
