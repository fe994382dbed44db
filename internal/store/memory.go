package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modelcouncil/council/pkg/council"
)

// MemoryStore is an in-process Store backed by a map. Every read and
// write goes through Clone so callers can never mutate the store's
// internal state through a returned pointer, matching the
// clone-on-read/write discipline used by this codebase's other
// in-memory stores.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*council.Conversation
	writeLocks    map[string]*sync.Mutex
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*council.Conversation),
		writeLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*council.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context) (*council.Conversation, error) {
	now := time.Now()
	c := &council.Conversation{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.conversations[c.ID] = c.Clone()
	s.mu.Unlock()

	return c.Clone(), nil
}

// lockFor returns the per-conversation mutex serializing AppendTurn,
// creating it on first use. This gives AppendTurn atomicity per
// conversation without requiring a single global lock.
func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.writeLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.writeLocks[id] = l
	}
	return l
}

func (s *MemoryStore) AppendTurn(ctx context.Context, id string, userMsg council.ChatMessage, turn council.CouncilTurn, assistantMsg council.ChatMessage) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	existing, ok := s.conversations[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	updated := existing.Clone()
	updated.Messages = append(updated.Messages, userMsg, assistantMsg)
	updated.Turns = append(updated.Turns, turn)
	updated.UpdatedAt = time.Now()

	s.mu.Lock()
	s.conversations[id] = updated
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	delete(s.writeLocks, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*council.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*council.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	return out, nil
}
