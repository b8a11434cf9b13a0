// Package tokenstore keeps the revoked token IDs (JWT "jti") until the tokens expire.
package tokenstore

import (
	"context"
	"sync"
	"time"
)

var nowFunc = time.Now // mockable

// Store is a token denylist.
type Store interface {
	// Revoke denies the token until expiresAt. Tokens already expired are ignored.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryStore is a process-local Store, used when no redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revoked: make(map[string]time.Time)}
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	now := nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	if expiresAt.After(now) {
		s.revoked[tokenID] = expiresAt
	}
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.revoked[tokenID]
	return ok && exp.After(nowFunc()), nil
}
