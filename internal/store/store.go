// Package store implements the ConversationStore capability: an
// append-only record of conversations keyed by id.
package store

import (
	"context"
	"errors"

	"github.com/modelcouncil/council/pkg/council"
)

// ErrNotFound is returned by Load when no conversation exists for the
// given id.
var ErrNotFound = errors.New("store: conversation not found")

// Store is the capability the orchestrator uses to load and persist
// conversations. append_turn is the only mutating operation that must be
// atomic with respect to concurrent turns on the same conversation;
// implementations may serialize it with a per-conversation lock or a
// single-writer actor.
type Store interface {
	Load(ctx context.Context, id string) (*council.Conversation, error)
	Create(ctx context.Context) (*council.Conversation, error)
	AppendTurn(ctx context.Context, id string, userMsg council.ChatMessage, turn council.CouncilTurn, assistantMsg council.ChatMessage) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*council.Conversation, error)
}
