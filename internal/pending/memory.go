package pending

import (
	"context"
	"sync"
	"time"

	"fiado/backend/internal/domain"
)

// MemoryStore is process-local. The mutex only protects the map itself;
// two messages of the same conversation racing each other still resolve
// last-write-wins.
type MemoryStore struct {
	mu  sync.Mutex
	ops map[opKey]domain.PendingOperation
	now func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ops: make(map[opKey]domain.PendingOperation),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, accountID string, conversationID string) (*domain.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := opKey{accountID: accountID, conversationID: conversationID}
	op, ok := s.ops[key]
	if !ok {
		return nil, nil
	}
	if op.Expired(s.now()) {
		delete(s.ops, key)
		return nil, ErrExpired
	}
	return &op, nil
}

func (s *MemoryStore) Set(_ context.Context, op domain.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[opKey{accountID: op.AccountID, conversationID: op.ConversationID}] = op
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, accountID string, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, opKey{accountID: accountID, conversationID: conversationID})
	return nil
}

// Len reports stored operations, expired ones included until they are read.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}
