package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DBLockerConfig tunes a DBLocker's lease lifetime and polling behavior.
type DBLockerConfig struct {
	OwnerID         string
	TTL             time.Duration
	RefreshInterval time.Duration
	AcquireTimeout  time.Duration
	PollInterval    time.Duration
}

// DefaultDBLockerConfig returns sensible defaults, minting a fresh owner
// id for this process.
func DefaultDBLockerConfig() DBLockerConfig {
	return DBLockerConfig{
		OwnerID:         uuid.NewString(),
		TTL:             2 * time.Minute,
		RefreshInterval: 30 * time.Second,
		AcquireTimeout:  10 * time.Second,
		PollInterval:    200 * time.Millisecond,
	}
}

// DBLockerSchema is the portable DDL a DBLocker expects.
const DBLockerSchema = `
CREATE TABLE IF NOT EXISTS conversation_locks (
	conversation_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
`

// DBLocker serializes AppendTurn per conversation across multiple
// processes sharing one database, via a leased-row upsert: a process
// holds the lease until it releases it or the lease expires, whichever
// comes first, and renews it in the background while held.
type DBLocker struct {
	db     *sql.DB
	config DBLockerConfig

	mu    sync.Mutex
	renew map[string]context.CancelFunc
}

// NewDBLocker builds a DBLocker over db.
func NewDBLocker(db *sql.DB, config DBLockerConfig) *DBLocker {
	if config.OwnerID == "" {
		config.OwnerID = uuid.NewString()
	}
	if config.TTL <= 0 {
		config.TTL = 2 * time.Minute
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 30 * time.Second
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 10 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 200 * time.Millisecond
	}
	return &DBLocker{db: db, config: config, renew: make(map[string]context.CancelFunc)}
}

// Lock acquires the lease for conversationID, polling until acquired or
// AcquireTimeout elapses.
func (l *DBLocker) Lock(ctx context.Context, conversationID string) error {
	deadline := time.Now().Add(l.config.AcquireTimeout)
	for {
		ok, err := l.tryAcquire(ctx, conversationID)
		if err != nil {
			return err
		}
		if ok {
			l.startRenew(conversationID)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("store: timed out acquiring lock for conversation %s", conversationID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.config.PollInterval):
		}
	}
}

// tryAcquire attempts a single upsert-with-ownership-check: it succeeds if
// no lease exists, the existing lease has expired, or this owner already
// holds it.
func (l *DBLocker) tryAcquire(ctx context.Context, conversationID string) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(l.config.TTL)

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO conversation_locks (conversation_id, owner_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, expires_at = EXCLUDED.expires_at
		WHERE conversation_locks.expires_at < $4 OR conversation_locks.owner_id = $2
	`, conversationID, l.config.OwnerID, expiresAt, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *DBLocker) startRenew(conversationID string) {
	ctx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if existing, ok := l.renew[conversationID]; ok {
		existing()
	}
	l.renew[conversationID] = cancel
	l.mu.Unlock()

	go l.renewLoop(ctx, conversationID)
}

func (l *DBLocker) renewLoop(ctx context.Context, conversationID string) {
	ticker := time.NewTicker(l.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = l.tryAcquire(context.Background(), conversationID)
		}
	}
}

func (l *DBLocker) stopRenew(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.renew[conversationID]; ok {
		cancel()
		delete(l.renew, conversationID)
	}
}

// Unlock stops renewal and deletes the lease row if still owned by this
// locker.
func (l *DBLocker) Unlock(conversationID string) {
	l.stopRenew(conversationID)
	_, _ = l.db.ExecContext(context.Background(), `DELETE FROM conversation_locks WHERE conversation_id = $1 AND owner_id = $2`, conversationID, l.config.OwnerID)
}

// Close stops every active renewal goroutine without releasing leases;
// used on shutdown when leases should simply expire.
func (l *DBLocker) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, cancel := range l.renew {
		cancel()
		delete(l.renew, id)
	}
}
